package audit

import (
	"time"

	"gorm.io/datatypes"
)

// InboundEvent is the audit record of one provider event. Rows are never
// deleted; redeliveries of the same provider event bump Deliveries.
type InboundEvent struct {
	ID              string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Provider        string         `gorm:"column:provider;type:varchar(32);not null;uniqueIndex:idx_inbound_provider_event" json:"provider"`
	ProviderEventID string         `gorm:"column:provider_event_id;type:varchar(191);not null;uniqueIndex:idx_inbound_provider_event" json:"provider_event_id"`
	EventType       string         `gorm:"column:event_type;type:varchar(100);index" json:"event_type"`
	Kind            string         `gorm:"column:kind;type:varchar(32)" json:"kind"`
	Reference       string         `gorm:"column:reference;type:varchar(100);index" json:"reference"`
	Payload         datatypes.JSON `gorm:"column:payload" json:"payload"`
	Headers         datatypes.JSON `gorm:"column:headers" json:"headers"`
	Signature       string         `gorm:"column:signature;type:text" json:"signature"`
	Deliveries      int            `gorm:"column:deliveries;not null;default:1" json:"deliveries"`
	Processed       bool           `gorm:"column:processed;not null;default:false" json:"processed"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at" json:"processed_at"`
	OrderID         string         `gorm:"column:order_id;type:varchar(32)" json:"order_id"`
	RefundID        string         `gorm:"column:refund_id;type:varchar(32)" json:"refund_id"`
	DisputeID       string         `gorm:"column:dispute_id;type:varchar(32)" json:"dispute_id"`
	ReceivedAt      time.Time      `gorm:"column:received_at;not null" json:"received_at"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Links are the entities an event ended up touching.
type Links struct {
	OrderID   string
	RefundID  string
	DisputeID string
}
