package deadletter

import (
	"time"

	"aura-payments/pkg/lease"

	"gorm.io/datatypes"
)

// Entry is one failed handling attempt. Entries are kept after a
// successful replay as a forensic record. RawPayload holds the delivery
// body byte for byte, JSON or not.
type Entry struct {
	ID              string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Provider        string         `gorm:"column:provider;type:varchar(32)" json:"provider"`
	EventType       string         `gorm:"column:event_type;type:varchar(100);index" json:"event_type"`
	Kind            string         `gorm:"column:kind;type:varchar(32);index" json:"kind"`
	ProviderEventID string         `gorm:"column:provider_event_id;type:varchar(191)" json:"provider_event_id"`
	Reference       string         `gorm:"column:reference;type:varchar(100)" json:"reference"`
	Payload         datatypes.JSON `gorm:"column:payload" json:"payload"`
	RawPayload      []byte         `gorm:"column:raw_payload" json:"-"`
	Headers         datatypes.JSON `gorm:"column:headers" json:"headers"`
	ErrorMessage    string         `gorm:"column:error_message;type:text" json:"error_message"`
	Attempts        int            `gorm:"column:attempts;not null;default:1" json:"attempts"`
	LastAttemptAt   *time.Time     `gorm:"column:last_attempt_at;index" json:"last_attempt_at"`
	lease.Columns
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Entry) TableName() string {
	return "dead_letter_entries"
}
