package commerce

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository describes the order/transaction queries the pipeline needs.
// Lookups return gorm.ErrRecordNotFound when nothing matches.
type Repository interface {
	WithTrx(tx *gorm.DB) Repository

	OrderByID(ctx context.Context, id string) (*Order, error)
	OrderByReference(ctx context.Context, reference string) (*Order, error)
	CreateOrder(ctx context.Context, order *Order) error
	MarkOrderPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
	MarkOrderFailed(ctx context.Context, orderID string) (bool, error)
	OrderItems(ctx context.Context, orderID string) ([]OrderItem, error)
	PaidOrdersBetween(ctx context.Context, start, end time.Time) ([]Order, error)
	OrdersByIDs(ctx context.Context, ids []string) ([]Order, error)

	TransactionByReference(ctx context.Context, reference string) (*Transaction, error)
	LatestTransaction(ctx context.Context, orderID string) (*Transaction, error)
	CreateTransaction(ctx context.Context, txn *Transaction) error
	MarkTransactionSuccess(ctx context.Context, id string, response datatypes.JSON) (bool, error)
	MarkTransactionFailed(ctx context.Context, id string, response datatypes.JSON) (bool, error)

	SupplierOrdersByOrders(ctx context.Context, orderIDs []string) ([]SupplierOrder, error)
	DeliveredSupplierOrdersBetween(ctx context.Context, start, end time.Time) ([]SupplierOrder, error)
	SupplierNamesSince(ctx context.Context, since time.Time) ([]string, error)
	SupplierOrdersSince(ctx context.Context, supplier string, since time.Time) ([]SupplierOrder, error)
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

func (r *gormRepository) OrderByID(ctx context.Context, id string) (*Order, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var order Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) OrderByReference(ctx context.Context, reference string) (*Order, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var order Order
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) CreateOrder(ctx context.Context, order *Order) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

// MarkOrderPaid moves a pending or failed order to paid. It reports false
// when the order was already past that point.
func (r *gormRepository) MarkOrderPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status IN ?", orderID, []OrderStatus{OrderStatusPending, OrderStatusFailed}).
		Updates(map[string]any{
			"status":  OrderStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkOrderFailed only fails orders that are still pending.
func (r *gormRepository) MarkOrderFailed(ctx context.Context, orderID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", orderID, OrderStatusPending).
		Update("status", OrderStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) OrderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var items []OrderItem
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *gormRepository) PaidOrdersBetween(ctx context.Context, start, end time.Time) ([]Order, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND paid_at >= ? AND paid_at < ?", Settled, start, end).
		Order("paid_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *gormRepository) OrdersByIDs(ctx context.Context, ids []string) ([]Order, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var orders []Order
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *gormRepository) TransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var txn Transaction
	if err := r.db.WithContext(ctx).Where("provider_reference = ?", reference).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) LatestTransaction(ctx context.Context, orderID string) (*Transaction, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var txn Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").Order("id DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) CreateTransaction(ctx context.Context, txn *Transaction) error {
	if r == nil || r.db == nil {
		return gorm.ErrInvalidDB
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

// MarkTransactionSuccess is a no-op for a transaction that already succeeded.
func (r *gormRepository) MarkTransactionSuccess(ctx context.Context, id string, response datatypes.JSON) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND status IN ?", id, []TransactionStatus{TransactionStatusPending, TransactionStatusFailed}).
		Updates(map[string]any{
			"status":            TransactionStatusSuccess,
			"provider_response": response,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkTransactionFailed never regresses a successful transaction.
func (r *gormRepository) MarkTransactionFailed(ctx context.Context, id string, response datatypes.JSON) (bool, error) {
	if r == nil || r.db == nil {
		return false, gorm.ErrInvalidDB
	}

	res := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND status = ?", id, TransactionStatusPending).
		Updates(map[string]any{
			"status":            TransactionStatusFailed,
			"provider_response": response,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) SupplierOrdersByOrders(ctx context.Context, orderIDs []string) ([]SupplierOrder, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	if len(orderIDs) == 0 {
		return nil, nil
	}

	var out []SupplierOrder
	if err := r.db.WithContext(ctx).Where("order_id IN ?", orderIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) DeliveredSupplierOrdersBetween(ctx context.Context, start, end time.Time) ([]SupplierOrder, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var out []SupplierOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND last_status_update >= ? AND last_status_update < ?", SupplierOrderDelivered, start, end).
		Order("supplier_name ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *gormRepository) SupplierNamesSince(ctx context.Context, since time.Time) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var names []string
	err := r.db.WithContext(ctx).Model(&SupplierOrder{}).
		Where("created_at >= ? AND supplier_name <> ''", since).
		Distinct("supplier_name").
		Order("supplier_name ASC").
		Pluck("supplier_name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *gormRepository) SupplierOrdersSince(ctx context.Context, supplier string, since time.Time) ([]SupplierOrder, error) {
	if r == nil || r.db == nil {
		return nil, gorm.ErrInvalidDB
	}

	var out []SupplierOrder
	err := r.db.WithContext(ctx).
		Where("supplier_name = ? AND created_at >= ?", supplier, since).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
