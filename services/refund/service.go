package refund

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db"
	"aura-payments/pkg/errutil"
	"aura-payments/pkg/lease"
	"aura-payments/pkg/paystack"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "refund_provider_calls_total",
	Help: "Refund calls to the payment provider by outcome.",
}, []string{"outcome"})

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	now      func() time.Time
	cfg      config.Workers
	refunds  Repository
	commerce commerce.Repository
	dlq      *deadletter.Service
	provider paystack.Provider
}

type Params struct {
	fx.In
	DB         *gorm.DB
	Node       *snowflake.Node
	Config     *config.Config
	Commerce   commerce.Repository
	DeadLetter *deadletter.Service
	Provider   paystack.Provider
}

func NewService(p Params) *Service {
	workers := p.Config.Workers
	workers.ApplyDefaults()

	return &Service{
		db:       p.DB,
		node:     p.Node,
		now:      time.Now,
		cfg:      workers,
		refunds:  NewRepository(p.DB),
		commerce: p.Commerce,
		dlq:      p.DeadLetter,
		provider: p.Provider,
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Refund, error) {
	rf, err := s.refunds.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("refund not found", err)
	}
	return rf, err
}

type IssueRequest struct {
	OrderID string  `json:"-"`
	Amount  float64 `json:"amount" binding:"required,gt=0"`
	Reason  string  `json:"reason"`
}

// Issue records a requested refund and calls the provider right away. A
// failed provider call leaves the refund requested for the worker to retry.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Refund, error) {
	order, err := s.commerce.OrderByID(ctx, req.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errutil.NotFound("order not found", err)
	}
	if err != nil {
		return nil, err
	}

	if req.Amount <= 0 || round2(req.Amount) > order.GrandTotal {
		return nil, errutil.ValidationFailed("invalid refund amount", nil, errutil.WithDetails(errutil.Detail{
			Field:   "amount",
			Message: fmt.Sprintf("must be greater than 0 and at most %.2f", order.GrandTotal),
		}))
	}

	rf := &Refund{
		ID:         s.node.Generate().String(),
		OrderID:    order.ID,
		Amount:     round2(req.Amount),
		Currency:   order.Currency,
		Reason:     req.Reason,
		Status:     StatusRequested,
		AdminNotes: "issued by admin",
		CreatedAt:  s.now(),
	}
	if err := s.refunds.Create(ctx, rf); err != nil {
		return nil, err
	}

	txn, err := s.commerce.LatestTransaction(ctx, order.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if txn == nil || txn.ProviderReference == "" {
		zap.L().Warn("[Refund] skip provider call, order has no transaction", zap.String("refund_id", rf.ID), zap.String("order_id", order.ID))
		return rf, nil
	}

	resp, callErr := s.provider.Refund(ctx, paystack.RefundRequest{
		Transaction: txn.ProviderReference,
		Amount:      rf.MinorAmount(),
	})

	fields := map[string]any{"provider_response": rawResponse(resp)}
	if callErr != nil {
		providerCalls.WithLabelValues(outcome(callErr)).Inc()
		fields["attempts"] = 1
		fields["last_error"] = callErr.Error()
		if _, err := s.refunds.Transition(ctx, rf.ID, []Status{StatusRequested}, fields); err != nil {
			return nil, err
		}
		rf.Attempts = 1
		rf.LastError = callErr.Error()
		rf.ProviderResponse = rawResponse(resp)

		if paystack.IsTransient(callErr) {
			return rf, nil
		}
		return rf, errutil.BadGateway("provider rejected refund", callErr, errutil.WithDetails(errutil.Detail{
			Field:   "refund_id",
			Message: rf.ID,
		}))
	}

	providerCalls.WithLabelValues("success").Inc()
	fields["status"] = StatusProcessing
	if _, err := s.refunds.Transition(ctx, rf.ID, []Status{StatusRequested}, fields); err != nil {
		return nil, err
	}
	rf.Status = StatusProcessing
	rf.ProviderResponse = rawResponse(resp)
	return rf, nil
}

// Summary is what one reconciliation run did.
type Summary struct {
	DeadLettersReplayed int `json:"dead_letters_replayed"`
	RefundsCreated      int `json:"refunds_created"`
	Submitted           int `json:"submitted"`
	Retrying            int `json:"retrying"`
	Failed              int `json:"failed"`
	Skipped             int `json:"skipped"`
}

func (s *Service) Reconcile(ctx context.Context) (*Summary, error) {
	owner := lease.NewOwner()
	summary := &Summary{}

	if err := s.replayDeadLetters(ctx, owner, summary); err != nil {
		return summary, fmt.Errorf("replay dead letters: %w", err)
	}
	if err := s.settlePending(ctx, owner, summary); err != nil {
		return summary, fmt.Errorf("settle pending refunds: %w", err)
	}

	zap.L().Info("[Refund] reconciliation finished",
		zap.Int("dead_letters_replayed", summary.DeadLettersReplayed),
		zap.Int("refunds_created", summary.RefundsCreated),
		zap.Int("submitted", summary.Submitted),
		zap.Int("retrying", summary.Retrying),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func (s *Service) replayDeadLetters(ctx context.Context, owner string, summary *Summary) error {
	entries, err := s.dlq.ClaimReplayable(ctx, deadletter.ReplayCriteria{
		Kind:        string(paystack.KindRefund),
		Since:       s.now().Add(-s.cfg.Refund.DeadLetterWindow),
		MaxAttempts: s.cfg.Refund.MaxAttempts,
		Limit:       s.cfg.Refund.DeadLetterBatch,
	}, owner, s.cfg.LeaseTTL)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(entries))
	defer func() {
		if err := s.dlq.Release(context.WithoutCancel(ctx), ids, owner); err != nil {
			zap.L().Error("[Refund] failed to release dead letters", zap.Error(err))
		}
	}()

	for _, entry := range entries {
		ids = append(ids, entry.ID)

		created, replayErr := s.replayEntry(ctx, entry)
		if created {
			summary.RefundsCreated++
		}
		if replayErr != nil {
			zap.L().Warn("[Refund] dead letter replay failed", zap.String("entry_id", entry.ID), zap.Error(replayErr))
		}

		if err := s.dlq.RecordAttempt(ctx, entry.ID, replayErr); err != nil {
			return err
		}
		summary.DeadLettersReplayed++
	}
	return nil
}

// replayEntry turns a dead-lettered refund event into a pending refund. An
// event that already produced a refund, by an earlier replay or a webhook
// redelivery, is left alone.
func (s *Service) replayEntry(ctx context.Context, entry *deadletter.Entry) (bool, error) {
	if entry.ProviderEventID != "" {
		seen, err := s.refunds.BySourceEvent(ctx, entry.ProviderEventID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return false, err
		}
		if seen != nil {
			zap.L().Info("[Refund] skip dead letter, event already has a refund", zap.String("entry_id", entry.ID), zap.String("refund_id", seen.ID))
			return false, nil
		}
	}

	env, err := paystack.ParseEnvelope(entry.Payload)
	if err != nil {
		return false, err
	}

	reference := env.Data.OrderReference()
	if reference == "" {
		reference = entry.Reference
	}

	order, err := s.commerce.OrderByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zap.L().Info("[Refund] skip dead letter, order not found yet", zap.String("entry_id", entry.ID), zap.String("reference", reference))
		return false, fmt.Errorf("order %q not found", reference)
	}
	if err != nil {
		return false, err
	}

	amount := round2(float64(env.Data.MinorAmount()) / 100)
	if amount <= 0 {
		amount = order.GrandTotal
	}

	rf := &Refund{
		ID:            s.node.Generate().String(),
		OrderID:       order.ID,
		Amount:        amount,
		Currency:      order.Currency,
		Status:        StatusPending,
		Reason:        "replayed " + env.Event,
		SourceEventID: sourceEvent(entry.ProviderEventID),
		CreatedAt:     s.now(),
	}
	if err := s.refunds.Create(ctx, rf); err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) settlePending(ctx context.Context, owner string, summary *Summary) error {
	candidates, err := s.refunds.ListRetryable(ctx, s.cfg.Refund.BatchSize)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, 0, len(candidates))
	for _, rf := range candidates {
		ids = append(ids, rf.ID)
	}

	won, err := lease.Claim(ctx, s.db, &Refund{}, ids, owner, s.cfg.LeaseTTL, s.now())
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx), s.db, &Refund{}, won, owner); err != nil {
			zap.L().Error("[Refund] failed to release refunds", zap.Error(err))
		}
	}()

	refunds, err := s.refunds.ByIDs(ctx, won)
	if err != nil {
		return err
	}

	for i := range refunds {
		if err := s.settle(ctx, &refunds[i], summary); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) settle(ctx context.Context, rf *Refund, summary *Summary) error {
	log := zap.L().With(zap.String("refund_id", rf.ID), zap.String("order_id", rf.OrderID))
	maxAttempts := s.cfg.Refund.MaxAttempts

	if rf.Attempts >= maxAttempts {
		if _, err := s.refunds.Transition(ctx, rf.ID, Retryable, map[string]any{"status": StatusFailed}); err != nil {
			return err
		}
		summary.Failed++
		return nil
	}

	txn, err := s.commerce.LatestTransaction(ctx, rf.OrderID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if txn == nil || txn.ProviderReference == "" {
		log.Info("[Refund] skip refund, no transaction reference yet")
		summary.Skipped++
		return nil
	}

	resp, callErr := s.provider.Refund(ctx, paystack.RefundRequest{
		Transaction: txn.ProviderReference,
		Amount:      rf.MinorAmount(),
	})

	if callErr == nil {
		providerCalls.WithLabelValues("success").Inc()
		_, err := s.refunds.Transition(ctx, rf.ID, Retryable, map[string]any{
			"status":            StatusProcessing,
			"provider_response": rawResponse(resp),
			"last_error":        "",
		})
		if err != nil {
			return err
		}
		summary.Submitted++
		return nil
	}

	providerCalls.WithLabelValues(outcome(callErr)).Inc()
	attempts := rf.Attempts + 1
	next := StatusPending
	if attempts >= maxAttempts {
		next = StatusFailed
	}

	log.Warn("[Refund] provider refund failed",
		zap.Int("attempts", attempts),
		zap.String("next_status", string(next)),
		zap.Bool("transient", paystack.IsTransient(callErr)),
		zap.Error(callErr),
	)

	fields := map[string]any{
		"status":     next,
		"attempts":   attempts,
		"last_error": callErr.Error(),
	}
	if resp != nil {
		fields["provider_response"] = rawResponse(resp)
	}
	if _, err := s.refunds.Transition(ctx, rf.ID, Retryable, fields); err != nil {
		return err
	}

	if next == StatusFailed {
		summary.Failed++
	} else {
		summary.Retrying++
	}
	return nil
}

// ApplyProviderEvent records a refund webhook against the order's open
// refund, whatever stage it is in. Without one, the event is recorded as a
// new refund: created for pending and processing events, so the worker
// submits it, and already settled for processed or failed events.
func (s *Service) ApplyProviderEvent(ctx context.Context, env *paystack.Envelope, eventID string, order *commerce.Order) (*Refund, error) {
	if eventID != "" {
		seen, err := s.refunds.BySourceEvent(ctx, eventID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if seen != nil {
			return seen, nil
		}
	}

	orderID := ""
	currency := env.Data.Currency
	if order != nil {
		orderID = order.ID
		if currency == "" {
			currency = order.Currency
		}
	}

	if orderID != "" {
		open, err := s.refunds.LatestByOrder(ctx, orderID, Open...)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if open != nil {
			return s.settleOpen(ctx, open, env, eventID)
		}
	}

	status := StatusCreated
	switch env.Event {
	case paystack.EventRefundProcessed:
		status = StatusCompleted
	case paystack.EventRefundFailed:
		status = StatusFailed
	}

	rf := &Refund{
		ID:               s.node.Generate().String(),
		OrderID:          orderID,
		Amount:           round2(float64(env.Data.MinorAmount()) / 100),
		Currency:         currency,
		Status:           status,
		Reason:           env.Event,
		ProviderResponse: datatypes.JSON(env.Data.Raw),
		SourceEventID:    sourceEvent(eventID),
		CreatedAt:        s.now(),
	}
	if err := s.refunds.Create(ctx, rf); err != nil {
		if eventID != "" && db.IsUniqueViolation(err) {
			return s.refunds.BySourceEvent(ctx, eventID)
		}
		return nil, err
	}
	return rf, nil
}

// settleOpen applies a provider event to the order's open refund. Processed
// and failed settle it; pending and processing mean the provider holds it, so
// a refund still waiting for submission moves to processing and is never
// sent again.
func (s *Service) settleOpen(ctx context.Context, open *Refund, env *paystack.Envelope, eventID string) (*Refund, error) {
	fields := map[string]any{"provider_response": datatypes.JSON(env.Data.Raw)}
	var next Status
	switch env.Event {
	case paystack.EventRefundProcessed:
		next = StatusCompleted
		fields["last_error"] = ""
	case paystack.EventRefundFailed:
		next = StatusFailed
		fields["last_error"] = "provider reported " + env.Event
	default:
		next = StatusProcessing
	}
	fields["status"] = next
	if open.SourceEventID == nil && eventID != "" {
		fields["source_event_id"] = eventID
	}

	ok, err := s.refunds.Transition(ctx, open.ID, Open, fields)
	if err != nil {
		if _, has := fields["source_event_id"]; has && db.IsUniqueViolation(err) {
			// the event id already belongs to another refund
			delete(fields, "source_event_id")
			ok, err = s.refunds.Transition(ctx, open.ID, Open, fields)
		}
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return s.refunds.Get(ctx, open.ID)
	}

	zap.L().Info("[Refund] provider event settled open refund",
		zap.String("refund_id", open.ID),
		zap.String("event", env.Event),
		zap.String("from", string(open.Status)),
		zap.String("to", string(next)),
	)
	open.Status = next
	if v, has := fields["source_event_id"]; has {
		open.SourceEventID = sourceEvent(v.(string))
	}
	return open, nil
}

func rawResponse(resp *paystack.Response) datatypes.JSON {
	if resp == nil || len(resp.Raw) == 0 {
		return nil
	}
	return datatypes.JSON(resp.Raw)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case paystack.IsTransient(err):
		return "transient"
	default:
		return "rejected"
	}
}
