package dispute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/lease"
	"aura-payments/pkg/paystack"
	"aura-payments/services/commerce"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dispute_transitions_total",
	Help: "Dispute status changes made by the automation worker.",
}, []string{"status"})

// Archive stores rendered evidence packages and returns a file reference.
type Archive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	now      func() time.Time
	cfg      config.Workers
	disputes Repository
	commerce commerce.Repository
	provider paystack.Provider
	archive  Archive
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Commerce commerce.Repository
	Provider paystack.Provider
	Archive  Archive `optional:"true"`
}

func NewService(p Params) *Service {
	workers := p.Config.Workers
	workers.ApplyDefaults()

	return &Service{
		db:       p.DB,
		node:     p.Node,
		now:      time.Now,
		cfg:      workers,
		disputes: NewRepository(p.DB),
		commerce: p.Commerce,
		provider: p.Provider,
		archive:  p.Archive,
	}
}

type Summary struct {
	Submitted int `json:"submitted"`
	Escalated int `json:"escalated"`
	Expired   int `json:"expired"`
	Deferred  int `json:"deferred"`
}

func (s *Service) Reconcile(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	owner := lease.NewOwner()

	candidates, err := s.disputes.ListActive(ctx, s.cfg.Dispute.BatchSize)
	if err != nil {
		return summary, err
	}
	if len(candidates) == 0 {
		return summary, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, d := range candidates {
		ids = append(ids, d.ID)
	}

	won, err := lease.Claim(ctx, s.db, &Dispute{}, ids, owner, s.cfg.LeaseTTL, s.now())
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx), s.db, &Dispute{}, won, owner); err != nil {
			zap.L().Error("[Dispute] failed to release disputes", zap.Error(err))
		}
	}()

	disputes, err := s.disputes.ByIDs(ctx, won)
	if err != nil {
		return summary, err
	}

	for i := range disputes {
		if err := s.reconcile(ctx, &disputes[i], summary); err != nil {
			return summary, err
		}
	}

	zap.L().Info("[Dispute] reconciliation finished",
		zap.Int("submitted", summary.Submitted),
		zap.Int("escalated", summary.Escalated),
		zap.Int("expired", summary.Expired),
		zap.Int("deferred", summary.Deferred),
	)
	return summary, nil
}

func (s *Service) reconcile(ctx context.Context, d *Dispute, summary *Summary) error {
	now := s.now()
	age := now.Sub(d.CreatedAt)
	log := zap.L().With(zap.String("dispute_id", d.ID), zap.Duration("age", age))

	if age >= s.cfg.Dispute.TTL {
		fields := map[string]any{
			"status":         StatusEscalated,
			"ttl_expired_at": now,
			"admin_notes":    appendNote(d.AdminNotes, now, fmt.Sprintf("dispute open past %s, escalated for manual review", s.cfg.Dispute.TTL)),
		}
		if err := s.submit(ctx, d, now); err != nil {
			log.Warn("[Dispute] evidence submission failed after ttl", zap.Error(err))
		} else {
			fields["evidence_submitted"] = true
			fields["last_submitted_at"] = now
		}

		if _, err := s.disputes.Transition(ctx, d.ID, Active, fields); err != nil {
			return err
		}
		transitions.WithLabelValues(string(StatusEscalated)).Inc()
		summary.Expired++
		return nil
	}

	if err := s.submit(ctx, d, now); err != nil && !errors.Is(err, paystack.ErrRejected) {
		log.Warn("[Dispute] evidence submission failed, retrying next run", zap.Error(err))
		summary.Deferred++
		return nil
	}

	next := StatusSubmitted
	if age > s.cfg.Dispute.EscalateAfter {
		next = StatusEscalated
	}

	_, err := s.disputes.Transition(ctx, d.ID, Active, map[string]any{
		"status":             next,
		"evidence_submitted": true,
		"last_submitted_at":  now,
	})
	if err != nil {
		return err
	}
	transitions.WithLabelValues(string(next)).Inc()

	if next == StatusEscalated {
		summary.Escalated++
	} else {
		summary.Submitted++
	}
	return nil
}

// submit gathers, archives and sends the evidence package for d.
func (s *Service) submit(ctx context.Context, d *Dispute, at time.Time) error {
	pkg, err := s.collect(ctx, d)
	if err != nil {
		return fmt.Errorf("collect evidence: %w", err)
	}
	doc := pkg.Render(at)

	if s.archive != nil && !pkg.Changed() {
		zap.L().Debug("[Dispute] evidence unchanged since last archive", zap.String("dispute_id", d.ID))
	} else if s.archive != nil {
		key := fmt.Sprintf("%s/%s/evidence-%s.txt", s.cfg.Dispute.EvidencePrefix, d.ID, at.UTC().Format("20060102T150405"))
		ref, err := s.archive.Put(ctx, key, []byte(doc), "text/plain")
		if err != nil {
			zap.L().Warn("[Dispute] failed to archive evidence", zap.String("dispute_id", d.ID), zap.Error(err))
		} else if err := s.disputes.AddEvidence(ctx, &Evidence{
			ID:            s.node.Generate().String(),
			DisputeID:     d.ID,
			Description:   "evidence package submitted to provider",
			FileReference: ref,
			Generated:     true,
			Checksum:      pkg.Checksum(),
			UploadedAt:    at,
		}); err != nil {
			return fmt.Errorf("record evidence: %w", err)
		}
	}

	_, err = s.provider.SubmitDisputeEvidence(ctx, d.ProviderReference, paystack.Evidence{
		CustomerEmail:  pkg.CustomerEmail(),
		ServiceDetails: doc,
	})
	return err
}

func (s *Service) collect(ctx context.Context, d *Dispute) (*Package, error) {
	pkg := &Package{Dispute: d}

	evidence, err := s.disputes.Evidence(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for _, ev := range evidence {
		if ev.Generated {
			pkg.archived = ev.Checksum
			continue
		}
		pkg.Prior = append(pkg.Prior, ev)
	}

	if d.OrderID == "" {
		return pkg, nil
	}

	order, err := s.commerce.OrderByID(ctx, d.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkg, nil
	}
	if err != nil {
		return nil, err
	}
	pkg.Order = order

	if pkg.Items, err = s.commerce.OrderItems(ctx, order.ID); err != nil {
		return nil, err
	}

	txn, err := s.commerce.LatestTransaction(ctx, order.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	pkg.Transaction = txn
	return pkg, nil
}

// ApplyProviderEvent records a dispute webhook. Create and remind events
// open the dispute once; resolve events close it.
func (s *Service) ApplyProviderEvent(ctx context.Context, env *paystack.Envelope, eventID string, order *commerce.Order) (*Dispute, error) {
	reference := env.Data.ID.String()
	if reference == "" {
		reference = eventID
	}

	existing, err := s.disputes.ByProviderReference(ctx, reference)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if env.Event == paystack.EventChargeDisputeResolve {
		final := resolution(env.Data.Resolution)
		if existing != nil {
			if existing.Status.Terminal() {
				return existing, nil
			}
			_, err := s.disputes.Transition(ctx, existing.ID, Active, map[string]any{
				"status":  final,
				"details": datatypes.JSON(env.Data.Raw),
			})
			if err != nil {
				return nil, err
			}
			existing.Status = final
			return existing, nil
		}
		return s.open(ctx, env, reference, order, final)
	}

	if existing != nil {
		return existing, nil
	}
	return s.open(ctx, env, reference, order, StatusOpen)
}

func (s *Service) open(ctx context.Context, env *paystack.Envelope, reference string, order *commerce.Order, status Status) (*Dispute, error) {
	d := &Dispute{
		ID:                s.node.Generate().String(),
		ProviderReference: reference,
		Status:            status,
		Details:           datatypes.JSON(env.Data.Raw),
		CreatedAt:         s.now(),
	}
	if order != nil {
		d.OrderID = order.ID
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Dispute, error) {
	return s.disputes.Get(ctx, id)
}

// resolution maps the provider's resolution onto a terminal status.
func resolution(v string) Status {
	switch strings.ToLower(v) {
	case "declined", "merchant-won", "won":
		return StatusWon
	case "merchant-accepted", "lost":
		return StatusLost
	default:
		return StatusResolved
	}
}

func appendNote(notes string, at time.Time, note string) string {
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
