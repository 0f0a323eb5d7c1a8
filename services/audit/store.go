package audit

import (
	"context"
	"errors"
	"time"

	"aura-payments/pkg/db"

	"gorm.io/gorm"
)

// ErrAlreadyRecorded is returned by Record when another delivery of the same
// provider event won the insert.
var ErrAlreadyRecorded = errors.New("audit: event already recorded")

type Store interface {
	Get(ctx context.Context, provider, providerEventID string) (*InboundEvent, error)
	Record(ctx context.Context, ev *InboundEvent) error
	RecordDelivery(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string, at time.Time, links Links) error
}

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Get returns nil without error when the event has not been seen.
func (s *gormStore) Get(ctx context.Context, provider, providerEventID string) (*InboundEvent, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var ev InboundEvent
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *gormStore) Record(ctx context.Context, ev *InboundEvent) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return ErrAlreadyRecorded
		}
		return err
	}
	return nil
}

func (s *gormStore) RecordDelivery(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	return s.db.WithContext(ctx).Model(&InboundEvent{}).
		Where("id = ?", id).
		UpdateColumn("deliveries", gorm.Expr("deliveries + 1")).Error
}

func (s *gormStore) MarkProcessed(ctx context.Context, id string, at time.Time, links Links) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}

	updates := map[string]any{
		"processed":    true,
		"processed_at": at,
	}
	if links.OrderID != "" {
		updates["order_id"] = links.OrderID
	}
	if links.RefundID != "" {
		updates["refund_id"] = links.RefundID
	}
	if links.DisputeID != "" {
		updates["dispute_id"] = links.DisputeID
	}

	res := s.db.WithContext(ctx).Model(&InboundEvent{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
