package dispute

import (
	"time"

	"aura-payments/pkg/lease"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusOpen        Status = "open"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusEscalated   Status = "escalated"
	StatusWon         Status = "won"
	StatusLost        Status = "lost"
	StatusResolved    Status = "resolved"
)

// Active statuses are reconciled on every run until the TTL expires.
var Active = []Status{StatusOpen, StatusSubmitted, StatusUnderReview, StatusEscalated}

func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost || s == StatusResolved
}

type Dispute struct {
	ID                string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrderID           string         `gorm:"column:order_id;index" json:"order_id"`
	ProviderReference string         `gorm:"column:provider_reference;uniqueIndex;type:varchar(100);not null" json:"provider_reference"`
	Status            Status         `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	EvidenceSubmitted bool           `gorm:"column:evidence_submitted;not null;default:false" json:"evidence_submitted"`
	Details           datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	AdminNotes        string         `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	LastSubmittedAt   *time.Time     `gorm:"column:last_submitted_at" json:"last_submitted_at,omitempty"`
	// ExpiredAt is set once the TTL branch has escalated the dispute.
	ExpiredAt *time.Time `gorm:"column:ttl_expired_at;index" json:"ttl_expired_at,omitempty"`
	lease.Columns
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Evidence is one archived artifact for a dispute. Rows are never updated.
// Generated rows are packages the worker archived itself.
type Evidence struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	DisputeID     string    `gorm:"column:dispute_id;index;not null" json:"dispute_id"`
	Description   string    `gorm:"column:description;type:text" json:"description"`
	FileReference string    `gorm:"column:file_reference;uniqueIndex;type:varchar(255)" json:"file_reference"`
	Generated     bool      `gorm:"column:auto_generated;not null;default:false" json:"auto_generated"`
	Checksum      string    `gorm:"column:checksum;type:varchar(64)" json:"checksum,omitempty"`
	UploadedAt    time.Time `gorm:"column:uploaded_at" json:"uploaded_at"`
}

func (Evidence) TableName() string {
	return "dispute_evidence"
}

func Models() []any {
	return []any{&Dispute{}, &Evidence{}}
}
