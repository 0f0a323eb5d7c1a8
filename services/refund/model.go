package refund

import (
	"time"

	"aura-payments/pkg/lease"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusRequested  Status = "requested"
	StatusCreated    Status = "created"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Retryable statuses are the ones the reconciliation worker sends to the
// provider. processing waits for the provider's own webhook.
var Retryable = []Status{StatusRequested, StatusCreated, StatusPending}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Refund struct {
	ID                string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	OrderID           string         `gorm:"column:order_id;index;not null" json:"order_id"`
	Amount            float64        `gorm:"column:amount;not null" json:"amount"`
	Currency          string         `gorm:"column:currency;type:varchar(3)" json:"currency"`
	Reason            string         `gorm:"column:reason;type:text" json:"reason"`
	Status            Status         `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Attempts          int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	AdminNotes        string         `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	ProviderReference string         `gorm:"column:provider_reference;type:varchar(100)" json:"provider_reference"`
	ProviderResponse  datatypes.JSON `gorm:"column:provider_response" json:"provider_response,omitempty"`
	LastError         string         `gorm:"column:last_error;type:text" json:"last_error"`
	SourceEventID     *string        `gorm:"column:source_event_id;type:varchar(191);uniqueIndex" json:"source_event_id,omitempty"`
	lease.Columns
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Open statuses are the ones a provider settlement event may close.
var Open = append(append([]Status{}, Retryable...), StatusProcessing)

// MinorAmount is the refund amount in the provider's minor units.
func (r *Refund) MinorAmount() int64 {
	return int64(r.Amount*100 + 0.5)
}

func sourceEvent(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
