// Package paystack is the payment provider client used by the workers and
// the admin refund endpoint.
package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"aura-payments/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.paystack.co"
	defaultTimeout = 10 * time.Second
)

var (
	// ErrTransient marks failures worth retrying on a later run: timeouts,
	// connection errors and 5xx responses.
	ErrTransient = errors.New("paystack: transient failure")
	// ErrRejected is returned when the provider answers with status=false.
	ErrRejected = errors.New("paystack: request rejected")
)

var Module = fx.Module("paystack.client",
	fx.Provide(
		New,
		func(c *Client) Provider { return c },
	),
)

// Provider is the subset of the Paystack API the pipeline calls.
type Provider interface {
	Refund(ctx context.Context, req RefundRequest) (*Response, error)
	SubmitDisputeEvidence(ctx context.Context, disputeID string, ev Evidence) (*Response, error)
}

type RefundRequest struct {
	Transaction string `json:"transaction"`
	// Amount is in minor units.
	Amount int64 `json:"amount"`
}

type Evidence struct {
	CustomerEmail   string `json:"customer_email"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	ServiceDetails  string `json:"service_details"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	DeliveryDate    string `json:"delivery_date,omitempty"`
}

// Response is the provider envelope. Raw holds the body verbatim.
type Response struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type Client struct {
	http    *resty.Client
	timeout time.Duration
}

func New(cfg *config.Config) *Client {
	return NewClient(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.Timeout)
}

func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(secretKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{http: rc, timeout: timeout}
}

func (c *Client) Refund(ctx context.Context, req RefundRequest) (*Response, error) {
	return c.post(ctx, "/refund", req)
}

func (c *Client) SubmitDisputeEvidence(ctx context.Context, disputeID string, ev Evidence) (*Response, error) {
	return c.post(ctx, fmt.Sprintf("/dispute/%s/evidence", disputeID), ev)
}

func (c *Client) post(ctx context.Context, path string, body any) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		if isTransport(err) {
			zap.L().Warn("[Paystack] transient request failure", zap.String("path", path), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", ErrTransient, path, err)
		}
		return nil, fmt.Errorf("paystack: %s: %w", path, err)
	}

	out := &Response{Raw: json.RawMessage(resp.Body())}
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil && resp.IsSuccess() {
			return out, fmt.Errorf("paystack: %s: decode response: %w", path, err)
		}
		out.Raw = json.RawMessage(resp.Body())
	}

	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return out, fmt.Errorf("%w: %s returned %d", ErrTransient, path, resp.StatusCode())
	}
	if resp.IsError() || !out.Status {
		return out, fmt.Errorf("%w: %s returned %d: %s", ErrRejected, path, resp.StatusCode(), out.Message)
	}

	return out, nil
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// IsTransient reports whether err should be retried on a later run.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
