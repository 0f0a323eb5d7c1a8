package dispute

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	WithTrx(tx *gorm.DB) Repository
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id string) (*Dispute, error)
	ByProviderReference(ctx context.Context, reference string) (*Dispute, error)
	// ListActive returns disputes the worker still owns, oldest first.
	ListActive(ctx context.Context, limit int) ([]Dispute, error)
	ByIDs(ctx context.Context, ids []string) ([]Dispute, error)
	Transition(ctx context.Context, id string, from []Status, fields map[string]any) (bool, error)
	Evidence(ctx context.Context, disputeID string) ([]Evidence, error)
	AddEvidence(ctx context.Context, ev *Evidence) error
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

func (r *gormRepository) Create(ctx context.Context, d *Dispute) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormRepository) Get(ctx context.Context, id string) (*Dispute, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var d Dispute
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) ByProviderReference(ctx context.Context, reference string) (*Dispute, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var d Dispute
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", reference).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *gormRepository) ListActive(ctx context.Context, limit int) ([]Dispute, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var out []Dispute
	err := r.db.WithContext(ctx).
		Where("status IN ?", Active).
		Where("ttl_expired_at IS NULL").
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) ByIDs(ctx context.Context, ids []string) ([]Dispute, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var out []Dispute
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) Transition(ctx context.Context, id string, from []Status, fields map[string]any) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Dispute{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) Evidence(ctx context.Context, disputeID string) ([]Evidence, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var out []Evidence
	err := r.db.WithContext(ctx).
		Where("dispute_id = ?", disputeID).
		Order("uploaded_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddEvidence is a no-op when the file reference is already recorded.
func (r *gormRepository) AddEvidence(ctx context.Context, ev *Evidence) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "file_reference"}}, DoNothing: true}).
		Create(ev).Error
}
