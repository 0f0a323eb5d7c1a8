// Package lease claims batches of rows for a single worker run so that two
// overlapping runs never mutate the same row.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Columns every leasable table carries.
type Columns struct {
	ClaimOwner string     `gorm:"column:claim_owner;type:varchar(64);index" json:"-"`
	ClaimedAt  *time.Time `gorm:"column:claimed_at" json:"-"`
}

// NewOwner returns a fresh owner token for one worker run.
func NewOwner() string {
	return uuid.NewString()
}

// Claim marks the candidate rows of model as owned by owner, skipping rows
// another owner claimed less than ttl ago. It returns the ids actually won.
func Claim(ctx context.Context, db *gorm.DB, model any, ids []string, owner string, ttl time.Duration, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	expired := now.Add(-ttl)
	err := db.WithContext(ctx).Model(model).
		Where("id IN ?", ids).
		Where("(claim_owner IS NULL OR claim_owner = '' OR claim_owner = ? OR claimed_at IS NULL OR claimed_at < ?)", owner, expired).
		Updates(map[string]any{
			"claim_owner": owner,
			"claimed_at":  now,
		}).Error
	if err != nil {
		return nil, err
	}

	var won []string
	err = db.WithContext(ctx).Model(model).
		Where("id IN ? AND claim_owner = ?", ids, owner).
		Pluck("id", &won).Error
	if err != nil {
		return nil, err
	}
	return won, nil
}

// Release drops owner's claim on the given rows.
func Release(ctx context.Context, db *gorm.DB, model any, ids []string, owner string) error {
	if len(ids) == 0 {
		return nil
	}

	return db.WithContext(ctx).Model(model).
		Where("id IN ? AND claim_owner = ?", ids, owner).
		Updates(map[string]any{
			"claim_owner": "",
			"claimed_at":  nil,
		}).Error
}
