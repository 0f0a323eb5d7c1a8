package refund

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Create(ctx context.Context, r *Refund) error
	Get(ctx context.Context, id string) (*Refund, error)
	ListRetryable(ctx context.Context, limit int) ([]Refund, error)
	ByIDs(ctx context.Context, ids []string) ([]Refund, error)
	LatestByOrder(ctx context.Context, orderID string, statuses ...Status) (*Refund, error)
	BySourceEvent(ctx context.Context, eventID string) (*Refund, error)
	// Transition applies fields only while the refund is in one of from.
	Transition(ctx context.Context, id string, from []Status, fields map[string]any) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTrx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, rf *Refund) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(rf).Error
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Refund, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rf Refund
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rf).Error; err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *gormRepository) ListRetryable(ctx context.Context, limit int) ([]Refund, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var out []Refund
	err := r.db.WithContext(ctx).
		Where("status IN ?", Retryable).
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) ByIDs(ctx context.Context, ids []string) ([]Refund, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var out []Refund
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) LatestByOrder(ctx context.Context, orderID string, statuses ...Status) (*Refund, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	q := r.db.WithContext(ctx).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var rf Refund
	if err := q.Order("created_at DESC").Order("id DESC").First(&rf).Error; err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *gormRepository) Transition(ctx context.Context, id string, from []Status, fields map[string]any) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Refund{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) BySourceEvent(ctx context.Context, eventID string) (*Refund, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var rf Refund
	if err := r.db.WithContext(ctx).Where("source_event_id = ?", eventID).First(&rf).Error; err != nil {
		return nil, err
	}
	return &rf, nil
}
