package sla

import "time"

// SupplierMetric is one scoring snapshot. Rows are only ever appended.
type SupplierMetric struct {
	ID                 string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	SupplierName       string    `gorm:"column:supplier_name;index;not null" json:"supplier_name"`
	WindowStart        time.Time `gorm:"column:window_start" json:"window_start"`
	WindowEnd          time.Time `gorm:"column:window_end" json:"window_end"`
	TotalOrders        int       `gorm:"column:total_orders" json:"total_orders"`
	FulfillmentRate    float64   `gorm:"column:fulfillment_rate" json:"fulfillment_rate"`
	OnTimeDeliveryRate float64   `gorm:"column:on_time_delivery_rate" json:"on_time_delivery_rate"`
	CancellationRate   float64   `gorm:"column:cancellation_rate" json:"cancellation_rate"`
	ReturnRate         float64   `gorm:"column:return_rate" json:"return_rate"`
	SatisfactionScore  float64   `gorm:"column:satisfaction_score" json:"satisfaction_score"`
	Score              float64   `gorm:"column:score" json:"score"`
	Grade              string    `gorm:"column:grade;type:varchar(1)" json:"grade"`
	CalculatedAt       time.Time `gorm:"column:calculated_at;index" json:"calculated_at"`
}

func Models() []any {
	return []any{&SupplierMetric{}}
}
