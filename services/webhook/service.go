package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db"
	"aura-payments/pkg/paystack"
	"aura-payments/pkg/signature"
	"aura-payments/services/audit"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"
	"aura-payments/services/dispute"
	"aura-payments/services/refund"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrUnknownProvider  = errors.New("webhook: unknown provider")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrHandling wraps any failure after the event was recorded. The
	// delivery has been captured to the dead-letter queue.
	ErrHandling = errors.New("webhook: handling failed")
)

var received = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_events_total",
	Help: "Inbound provider events by kind and outcome.",
}, []string{"provider", "kind", "outcome"})

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Delivery is one HTTP delivery of a provider event.
type Delivery struct {
	Provider  string
	Body      []byte
	Signature string
	Headers   http.Header
}

type Result struct {
	Outcome Outcome
	EventID string
	Kind    paystack.EventKind
	Links   audit.Links
}

type Service struct {
	node     *snowflake.Node
	now      func() time.Time
	cfg      *config.Config
	audit    audit.Store
	dlq      *deadletter.Service
	commerce commerce.Repository
	refunds  *refund.Service
	disputes *dispute.Service
}

type Params struct {
	fx.In
	Node       *snowflake.Node
	Config     *config.Config
	Audit      audit.Store
	DeadLetter *deadletter.Service
	Commerce   commerce.Repository
	Refunds    *refund.Service
	Disputes   *dispute.Service
}

func NewService(p Params) *Service {
	return &Service{
		node:     p.Node,
		now:      time.Now,
		cfg:      p.Config,
		audit:    p.Audit,
		dlq:      p.DeadLetter,
		commerce: p.Commerce,
		refunds:  p.Refunds,
		disputes: p.Disputes,
	}
}

// Receive authenticates, records and applies one delivery. Redeliveries of
// an already processed event return OutcomeDuplicate without side effects.
func (s *Service) Receive(ctx context.Context, d Delivery) (*Result, error) {
	provider := strings.ToLower(d.Provider)

	secret := s.cfg.WebhookSecret(provider)
	if secret == "" {
		received.WithLabelValues(provider, string(paystack.KindUnknown), string(OutcomeRejected)).Inc()
		return &Result{Outcome: OutcomeRejected}, ErrUnknownProvider
	}
	if !signature.Verify(d.Body, secret, d.Signature) {
		zap.L().Warn("[Webhook] signature verification failed", zap.String("provider", provider))
		received.WithLabelValues(provider, string(paystack.KindUnknown), string(OutcomeRejected)).Inc()
		return &Result{Outcome: OutcomeRejected}, ErrInvalidSignature
	}

	headers := headersJSON(d.Headers)

	env, err := paystack.ParseEnvelope(d.Body)
	if err != nil {
		s.capture(ctx, provider, nil, "", d, headers, err)
		received.WithLabelValues(provider, string(paystack.KindUnknown), string(OutcomeRejected)).Inc()
		return &Result{Outcome: OutcomeRejected}, err
	}

	kind := env.Kind()
	eventID := env.EventID()
	if eventID == "" {
		sum := sha256.Sum256(d.Body)
		eventID = env.Event + ":" + hex.EncodeToString(sum[:16])
	}

	res := &Result{EventID: eventID, Kind: kind}
	log := zap.L().With(
		zap.String("provider", provider),
		zap.String("event", env.Event),
		zap.String("provider_event_id", eventID),
	)

	existing, err := s.audit.Get(ctx, provider, eventID)
	if err != nil {
		return s.fail(ctx, provider, env, eventID, d, headers, res, fmt.Errorf("load audit record: %w", err))
	}

	var record *audit.InboundEvent
	switch {
	case existing != nil && existing.Processed:
		if err := s.audit.RecordDelivery(ctx, existing.ID); err != nil {
			log.Warn("[Webhook] failed to count redelivery", zap.Error(err))
		}
		log.Info("[Webhook] duplicate delivery ignored")
		received.WithLabelValues(provider, string(kind), string(OutcomeDuplicate)).Inc()
		res.Outcome = OutcomeDuplicate
		return res, nil

	case existing != nil:
		// recorded by an earlier delivery that never finished handling
		if err := s.audit.RecordDelivery(ctx, existing.ID); err != nil {
			log.Warn("[Webhook] failed to count redelivery", zap.Error(err))
		}
		record = existing

	default:
		record = &audit.InboundEvent{
			ID:              s.node.Generate().String(),
			Provider:        provider,
			ProviderEventID: eventID,
			EventType:       env.Event,
			Kind:            string(kind),
			Reference:       env.Data.OrderReference(),
			Payload:         datatypes.JSON(d.Body),
			Headers:         headers,
			Signature:       d.Signature,
			Deliveries:      1,
			ReceivedAt:      s.now(),
		}
		if err := s.audit.Record(ctx, record); err != nil {
			if errors.Is(err, audit.ErrAlreadyRecorded) {
				log.Info("[Webhook] concurrent duplicate delivery ignored")
				received.WithLabelValues(provider, string(kind), string(OutcomeDuplicate)).Inc()
				res.Outcome = OutcomeDuplicate
				return res, nil
			}
			return s.fail(ctx, provider, env, eventID, d, headers, res, fmt.Errorf("record event: %w", err))
		}
	}

	links, err := s.dispatch(ctx, env, eventID)
	if err != nil {
		return s.fail(ctx, provider, env, eventID, d, headers, res, err)
	}
	res.Links = links

	if err := s.audit.MarkProcessed(ctx, record.ID, s.now(), links); err != nil {
		return s.fail(ctx, provider, env, eventID, d, headers, res, fmt.Errorf("mark processed: %w", err))
	}

	log.Info("[Webhook] event processed", zap.String("kind", string(kind)))
	received.WithLabelValues(provider, string(kind), string(OutcomeProcessed)).Inc()
	res.Outcome = OutcomeProcessed
	return res, nil
}

func (s *Service) dispatch(ctx context.Context, env *paystack.Envelope, eventID string) (audit.Links, error) {
	switch env.Kind() {
	case paystack.KindPaymentSuccess:
		return s.paymentSucceeded(ctx, env)
	case paystack.KindPaymentFailure:
		return s.paymentFailed(ctx, env)
	case paystack.KindRefund:
		order, err := s.orderFor(ctx, env)
		if err != nil {
			return audit.Links{}, err
		}
		rf, err := s.refunds.ApplyProviderEvent(ctx, env, eventID, order)
		if err != nil {
			return audit.Links{}, fmt.Errorf("apply refund event: %w", err)
		}
		return audit.Links{OrderID: rf.OrderID, RefundID: rf.ID}, nil
	case paystack.KindDispute:
		order, err := s.orderFor(ctx, env)
		if err != nil {
			return audit.Links{}, err
		}
		d, err := s.disputes.ApplyProviderEvent(ctx, env, eventID, order)
		if err != nil {
			return audit.Links{}, fmt.Errorf("apply dispute event: %w", err)
		}
		return audit.Links{OrderID: d.OrderID, DisputeID: d.ID}, nil
	case paystack.KindUnknown:
		zap.L().Info("[Webhook] ignoring unhandled event type", zap.String("event", env.Event))
		return audit.Links{}, nil
	default:
		return audit.Links{}, fmt.Errorf("no handler for event kind %q", env.Kind())
	}
}

func (s *Service) paymentSucceeded(ctx context.Context, env *paystack.Envelope) (audit.Links, error) {
	reference := env.Data.OrderReference()
	if reference == "" {
		return audit.Links{}, fmt.Errorf("%w: charge without reference", paystack.ErrMalformedEvent)
	}
	raw := datatypes.JSON(env.Data.Raw)
	now := s.now()

	txn, err := s.commerce.TransactionByReference(ctx, reference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return audit.Links{}, err
	}

	if txn == nil {
		order, err := s.ensureOrder(ctx, env, reference, now)
		if err != nil {
			return audit.Links{}, err
		}

		txn = &commerce.Transaction{
			ID:                s.node.Generate().String(),
			OrderID:           order.ID,
			ProviderReference: reference,
			Amount:            float64(env.Data.MinorAmount()) / 100,
			Currency:          currencyOr(env.Data.Currency, order.Currency),
			Status:            commerce.TransactionStatusSuccess,
			ProviderResponse:  raw,
		}
		if err := s.commerce.CreateTransaction(ctx, txn); err != nil {
			if !db.IsUniqueViolation(err) {
				return audit.Links{}, fmt.Errorf("create transaction: %w", err)
			}
			if txn, err = s.commerce.TransactionByReference(ctx, reference); err != nil {
				return audit.Links{}, err
			}
		}
	}

	if txn.Status != commerce.TransactionStatusSuccess {
		if _, err := s.commerce.MarkTransactionSuccess(ctx, txn.ID, raw); err != nil {
			return audit.Links{}, fmt.Errorf("mark transaction success: %w", err)
		}
	}
	if _, err := s.commerce.MarkOrderPaid(ctx, txn.OrderID, now); err != nil {
		return audit.Links{}, fmt.Errorf("mark order paid: %w", err)
	}
	return audit.Links{OrderID: txn.OrderID}, nil
}

// ensureOrder returns the order for reference, creating a minimal paid one
// when the storefront never wrote it.
func (s *Service) ensureOrder(ctx context.Context, env *paystack.Envelope, reference string, now time.Time) (*commerce.Order, error) {
	order, err := s.commerce.OrderByReference(ctx, reference)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	total := float64(env.Data.MinorAmount()) / 100
	order = &commerce.Order{
		ID:            s.node.Generate().String(),
		Reference:     reference,
		Status:        commerce.OrderStatusPaid,
		CustomerEmail: env.Data.Customer.Email,
		Subtotal:      total,
		GrandTotal:    total,
		Currency:      currencyOr(env.Data.Currency, "NGN"),
		PaidAt:        &now,
	}
	if err := s.commerce.CreateOrder(ctx, order); err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create order: %w", err)
		}
		zap.L().Info("[Webhook] order created concurrently, reusing it", zap.String("reference", reference))
		return s.commerce.OrderByReference(ctx, reference)
	}
	return order, nil
}

func (s *Service) paymentFailed(ctx context.Context, env *paystack.Envelope) (audit.Links, error) {
	reference := env.Data.OrderReference()
	links := audit.Links{}

	order, err := s.commerce.OrderByReference(ctx, reference)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		zap.L().Info("[Webhook] skip charge failure, order not found", zap.String("reference", reference))
	case err != nil:
		return links, err
	default:
		links.OrderID = order.ID
		if _, err := s.commerce.MarkOrderFailed(ctx, order.ID); err != nil {
			return links, fmt.Errorf("mark order failed: %w", err)
		}
	}

	txn, err := s.commerce.TransactionByReference(ctx, reference)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return links, nil
	case err != nil:
		return links, err
	}
	if _, err := s.commerce.MarkTransactionFailed(ctx, txn.ID, datatypes.JSON(env.Data.Raw)); err != nil {
		return links, fmt.Errorf("mark transaction failed: %w", err)
	}
	if links.OrderID == "" {
		links.OrderID = txn.OrderID
	}
	return links, nil
}

// orderFor resolves the order an event refers to, or nil when it is not
// known yet.
func (s *Service) orderFor(ctx context.Context, env *paystack.Envelope) (*commerce.Order, error) {
	reference := env.Data.OrderReference()
	if reference == "" {
		return nil, nil
	}
	order, err := s.commerce.OrderByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zap.L().Info("[Webhook] order not found for event", zap.String("event", env.Event), zap.String("reference", reference))
		return nil, nil
	}
	return order, err
}

func (s *Service) fail(ctx context.Context, provider string, env *paystack.Envelope, eventID string, d Delivery, headers datatypes.JSON, res *Result, cause error) (*Result, error) {
	s.capture(ctx, provider, env, eventID, d, headers, cause)
	received.WithLabelValues(provider, string(res.Kind), string(OutcomeFailed)).Inc()
	res.Outcome = OutcomeFailed
	return res, fmt.Errorf("%w: %w", ErrHandling, cause)
}

func (s *Service) capture(ctx context.Context, provider string, env *paystack.Envelope, eventID string, d Delivery, headers datatypes.JSON, cause error) {
	entry := &deadletter.Entry{
		Provider:        provider,
		ProviderEventID: eventID,
		Payload:         datatypes.JSON(d.Body),
		RawPayload:      d.Body,
		Headers:         headers,
		ErrorMessage:    cause.Error(),
		Kind:            string(paystack.KindUnknown),
	}
	if env != nil {
		entry.EventType = env.Event
		entry.Kind = string(env.Kind())
		entry.Reference = env.Data.OrderReference()
	}
	if !json.Valid(d.Body) {
		entry.Payload = nil
	}

	if err := s.dlq.Capture(context.WithoutCancel(ctx), entry); err != nil {
		zap.L().Error("[Webhook] dead-letter capture failed", zap.String("provider_event_id", eventID), zap.Error(err))
	}
}

// headersJSON keeps the delivery headers minus credentials.
func headersJSON(h http.Header) datatypes.JSON {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		switch http.CanonicalHeaderKey(k) {
		case "Authorization", "Cookie":
			continue
		}
		out[k] = strings.Join(v, ", ")
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func currencyOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return strings.ToUpper(v)
}
