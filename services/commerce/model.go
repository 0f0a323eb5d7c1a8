package commerce

import (
	"time"

	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Settled statuses are orders whose payment went through and was not
// reversed.
var Settled = []OrderStatus{OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered}

// Order is a customer purchase. Amounts are in major currency units.
type Order struct {
	ID            string      `gorm:"column:id;primaryKey;type:varchar(32)"`
	Reference     string      `gorm:"column:reference;uniqueIndex;type:varchar(100);not null"`
	Status        OrderStatus `gorm:"column:status;type:varchar(20);index;default:'pending'"`
	CustomerEmail string      `gorm:"column:customer_email;type:varchar(255)"`
	Subtotal      float64     `gorm:"column:subtotal"`
	Tax           float64     `gorm:"column:tax"`
	Shipping      float64     `gorm:"column:shipping"`
	Discount      float64     `gorm:"column:discount"`
	GrandTotal    float64     `gorm:"column:grand_total;not null"`
	Cost          float64     `gorm:"column:cost"`
	Profit        float64     `gorm:"column:profit"`
	Currency      string      `gorm:"column:currency;type:varchar(3);default:'NGN'"`
	PaidAt        *time.Time  `gorm:"column:paid_at;index"`
	CreatedAt     time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time   `gorm:"column:updated_at;autoUpdateTime"`
	Items         []OrderItem `gorm:"foreignKey:OrderID"`
}

type OrderItem struct {
	ID          string    `gorm:"column:id;primaryKey;type:varchar(32)"`
	OrderID     string    `gorm:"column:order_id;index;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	Quantity    int       `gorm:"column:quantity;not null;default:1"`
	UnitPrice   float64   `gorm:"column:unit_price;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusFailed   TransactionStatus = "failed"
	TransactionStatusRefunded TransactionStatus = "refunded"
)

// Transaction is one provider charge attempt for an Order.
type Transaction struct {
	ID                string            `gorm:"column:id;primaryKey;type:varchar(32)"`
	OrderID           string            `gorm:"column:order_id;index;not null"`
	ProviderReference string            `gorm:"column:provider_reference;uniqueIndex;type:varchar(100)"`
	Amount            float64           `gorm:"column:amount;not null"`
	Currency          string            `gorm:"column:currency;type:varchar(3);default:'NGN'"`
	Status            TransactionStatus `gorm:"column:status;type:varchar(20);default:'pending'"`
	ProviderResponse  datatypes.JSON    `gorm:"column:provider_response"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

type SupplierOrderStatus string

const (
	SupplierOrderPending   SupplierOrderStatus = "pending"
	SupplierOrderShipped   SupplierOrderStatus = "shipped"
	SupplierOrderDelivered SupplierOrderStatus = "delivered"
	SupplierOrderCancelled SupplierOrderStatus = "cancelled"
	SupplierOrderClosed    SupplierOrderStatus = "closed"
)

// SupplierOrder maps an Order's items to a marketplace fulfillment order.
type SupplierOrder struct {
	ID                 string              `gorm:"column:id;primaryKey;type:varchar(32)"`
	OrderID            string              `gorm:"column:order_id;index;not null"`
	SupplierName       string              `gorm:"column:supplier_name;index;not null"`
	MarketplaceOrderID string              `gorm:"column:marketplace_order_id;type:varchar(100)"`
	Status             SupplierOrderStatus `gorm:"column:status;type:varchar(20);default:'pending'"`
	SupplierCost       float64             `gorm:"column:supplier_cost"`
	Quantity           int                 `gorm:"column:quantity;default:1"`
	LastStatusUpdate   *time.Time          `gorm:"column:last_status_update;index"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Payable is what the supplier is owed for this order.
func (s *SupplierOrder) Payable() float64 {
	return s.SupplierCost * float64(s.Quantity)
}

// Models lists the tables owned by this package, for migrations and tests.
func Models() []any {
	return []any{&Order{}, &OrderItem{}, &Transaction{}, &SupplierOrder{}}
}
