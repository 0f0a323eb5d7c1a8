package webhook

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"aura-payments/pkg/paystack"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhook/:provider", h.Receive)
}

// Receive answers the provider with a bare status: 200 when the event is
// handled or already seen, 400 when it is not authentic, 500 otherwise so
// the provider delivers it again.
func (h *Handler) Receive(c *gin.Context) {
	provider := strings.ToLower(c.Param("provider"))

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		zap.L().Warn("[Webhook] failed to read body", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": OutcomeRejected})
		return
	}

	res, err := h.svc.Receive(c.Request.Context(), Delivery{
		Provider:  provider,
		Body:      body,
		Signature: c.GetHeader("x-" + provider + "-signature"),
		Headers:   c.Request.Header,
	})

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": res.Outcome})
	case errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, paystack.ErrMalformedEvent) && !errors.Is(err, ErrHandling):
		c.JSON(http.StatusBadRequest, gin.H{"status": OutcomeRejected})
	default:
		zap.L().Error("[Webhook] event handling failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": OutcomeFailed})
	}
}
