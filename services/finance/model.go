package finance

import "time"

type EntryType string

const (
	EntryAuraNet        EntryType = "aura_net"
	EntryPaystackFee    EntryType = "paystack_fee"
	EntryPlatformFee    EntryType = "platform_fee"
	EntrySupplierPayout EntryType = "supplier_payout"
)

type Category string

const (
	CategoryRevenue Category = "revenue"
	CategoryExpense Category = "expense"
)

// LedgerEntry is one signed money movement derived from a paid order.
type LedgerEntry struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	EntryDate   time.Time `gorm:"column:entry_date;index" json:"entry_date"`
	EntryType   EntryType `gorm:"column:entry_type;type:varchar(32);uniqueIndex:idx_ledger_order_type,priority:2" json:"entry_type"`
	Amount      float64   `gorm:"column:amount;not null" json:"amount"`
	Category    Category  `gorm:"column:category;type:varchar(16)" json:"category"`
	OrderID     string    `gorm:"column:order_id;type:varchar(32);uniqueIndex:idx_ledger_order_type,priority:1" json:"order_id"`
	Description string    `gorm:"column:description;type:text" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

type SettlementStatus string

const SettlementProposed SettlementStatus = "proposed"

// SupplierSettlement is the proposed payout to one supplier for one period.
type SupplierSettlement struct {
	ID           string           `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	SupplierName string           `gorm:"column:supplier_name;uniqueIndex:idx_settlement_supplier_period,priority:1;not null" json:"supplier_name"`
	PeriodStart  time.Time        `gorm:"column:period_start;uniqueIndex:idx_settlement_supplier_period,priority:2" json:"period_start"`
	PeriodEnd    time.Time        `gorm:"column:period_end" json:"period_end"`
	TotalAmount  float64          `gorm:"column:total_amount" json:"total_amount"`
	OrderCount   int              `gorm:"column:order_count" json:"order_count"`
	Status       SettlementStatus `gorm:"column:status;type:varchar(20);default:'proposed'" json:"status"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func Models() []any {
	return []any{&LedgerEntry{}, &SupplierSettlement{}}
}
