package deadletter

import (
	"context"
	"time"

	"aura-payments/pkg/db/option"
	"aura-payments/pkg/db/pagination"
	"aura-payments/pkg/lease"
	"aura-payments/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	entries repository.Repository[Entry]
}

type Params struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		now:     time.Now,
		entries: repository.ProvideStore[Entry](p.DB),
	}
}

// Capture stores a failed handling attempt with attempts=1.
func (s *Service) Capture(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = s.node.Generate().String()
	}
	e.Attempts = 1
	now := s.now()
	e.LastAttemptAt = &now
	e.CreatedAt = now

	if err := s.entries.Create(ctx, e); err != nil {
		zap.L().Error("[DLQ] failed to capture entry",
			zap.String("event_type", e.EventType),
			zap.String("provider_event_id", e.ProviderEventID),
			zap.Error(err),
		)
		return err
	}

	zap.L().Warn("[DLQ] captured failed event",
		zap.String("id", e.ID),
		zap.String("event_type", e.EventType),
		zap.String("error", e.ErrorMessage),
	)
	return nil
}

// ReplayCriteria selects entries eligible for another attempt.
type ReplayCriteria struct {
	Kind        string
	Since       time.Time
	MaxAttempts int
	Limit       int
}

// ClaimReplayable leases up to Limit eligible entries, oldest error first.
func (s *Service) ClaimReplayable(ctx context.Context, c ReplayCriteria, owner string, ttl time.Duration) ([]*Entry, error) {
	candidates, err := s.entries.Find(ctx, &Entry{Kind: c.Kind},
		option.ApplyOperator(
			option.Condition{Field: "created_at", Operator: option.GTE, Value: c.Since},
			option.Condition{Field: "attempts", Operator: option.LT, Value: c.MaxAttempts},
		),
		option.WithSortBy(option.QuerySortBy{SortBy: "last_attempt_at", OrderBy: "asc"}),
		option.WithLimit(c.Limit),
	)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, e := range candidates {
		ids = append(ids, e.ID)
	}

	won, err := lease.Claim(ctx, s.db, &Entry{}, ids, owner, ttl, s.now())
	if err != nil {
		return nil, err
	}

	claimed := make(map[string]bool, len(won))
	for _, id := range won {
		claimed[id] = true
	}

	out := make([]*Entry, 0, len(won))
	for _, e := range candidates {
		if claimed[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// RecordAttempt counts one more replay attempt, successful or not.
func (s *Service) RecordAttempt(ctx context.Context, id string, attemptErr error) error {
	updates := map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_attempt_at": s.now(),
	}
	if attemptErr != nil {
		updates["error_message"] = attemptErr.Error()
	}
	return s.entries.Update(ctx, id, updates)
}

func (s *Service) Release(ctx context.Context, ids []string, owner string) error {
	return lease.Release(ctx, s.db, &Entry{}, ids, owner)
}

func (s *Service) List(ctx context.Context, page pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	entries, err := s.entries.Find(ctx, nil, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	info := pagination.BuildCursorPageInfo(entries, int32(limit), func(e *Entry) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID})
		return c
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, info, nil
}
