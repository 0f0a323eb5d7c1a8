package finance

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"aura-payments/pkg/config"
	"aura-payments/services/commerce"
	"aura-payments/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var runAt = time.Date(2025, 4, 2, 1, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	models := append(commerce.Models(), Models()...)
	db := testutil.NewTestDB(t, models...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Node:     node,
		Config:   &config.Config{},
		Commerce: commerce.NewRepository(db),
	})
	svc.now = func() time.Time { return runAt }
	return svc, db
}

func seedPaidOrder(t *testing.T, db *gorm.DB, id string, total float64, paidAt time.Time, status commerce.OrderStatus) {
	t.Helper()
	require.NoError(t, db.Omit("Items").Create(&commerce.Order{
		ID: id, Reference: "ref-" + id, Status: status, GrandTotal: total, Currency: "NGN", PaidAt: &paidAt,
	}).Error)
}

func seedSupplierOrder(t *testing.T, db *gorm.DB, id, orderID, supplier string, cost float64, qty int, status commerce.SupplierOrderStatus, updated time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&commerce.SupplierOrder{
		ID: id, OrderID: orderID, SupplierName: supplier, Status: status,
		SupplierCost: cost, Quantity: qty, LastStatusUpdate: &updated,
	}).Error)
}

func TestYesterday(t *testing.T) {
	p := Yesterday(runAt, time.UTC)
	require.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), p.Start)
	require.Equal(t, time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), p.End)

	lagos, err := time.LoadLocation("Africa/Lagos")
	require.NoError(t, err)
	p = Yesterday(time.Date(2025, 4, 1, 23, 30, 0, 0, time.UTC), lagos)
	require.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, lagos), p.Start)
}

func TestReconcileBooksLedgerForYesterday(t *testing.T) {
	svc, db := newTestService(t)

	inPeriod := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	seedPaidOrder(t, db, "o1", 10000, inPeriod, commerce.OrderStatusPaid)
	seedPaidOrder(t, db, "o2", 500, inPeriod, commerce.OrderStatusShipped)
	seedPaidOrder(t, db, "late", 800, runAt, commerce.OrderStatusPaid)
	seedPaidOrder(t, db, "refunded", 800, inPeriod, commerce.OrderStatusRefunded)

	seedSupplierOrder(t, db, "s1", "o1", "lagos-crafts", 2000, 2, commerce.SupplierOrderShipped, inPeriod)
	seedSupplierOrder(t, db, "s2", "o1", "abuja-weaves", 2000, 1, commerce.SupplierOrderShipped, inPeriod)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Orders)
	require.Equal(t, 7, summary.LedgerEntries)

	entries, err := svc.Entries(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	byType := map[EntryType]float64{}
	var retained float64
	for _, e := range entries {
		byType[e.EntryType] = e.Amount
		require.True(t, e.EntryDate.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
		if e.Category == CategoryRevenue {
			retained += e.Amount
		}
	}
	require.Equal(t, -6000.0, byType[EntrySupplierPayout])
	require.Equal(t, -135.0, byType[EntryPaystackFee])
	require.InDelta(t, 10000-6000-135, retained, 0.001)

	var count int64
	require.NoError(t, db.Model(&LedgerEntry{}).Where("order_id IN ?", []string{"late", "refunded"}).Count(&count).Error)
	require.Zero(t, count)
}

func TestReconcileIsIdempotentForSamePeriod(t *testing.T) {
	svc, db := newTestService(t)

	inPeriod := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	seedPaidOrder(t, db, "o1", 10000, inPeriod, commerce.OrderStatusPaid)
	seedSupplierOrder(t, db, "s1", "o1", "lagos-crafts", 1500, 1, commerce.SupplierOrderDelivered, inPeriod)

	first, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Orders)
	require.Equal(t, 1, first.Settlements)

	second, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Zero(t, second.Orders)
	require.Equal(t, 1, second.OrdersSkipped)
	require.Zero(t, second.Settlements)
	require.Equal(t, 1, second.SettlementsExist)

	var entries, settlements int64
	require.NoError(t, db.Model(&LedgerEntry{}).Count(&entries).Error)
	require.NoError(t, db.Model(&SupplierSettlement{}).Count(&settlements).Error)
	require.Equal(t, int64(4), entries)
	require.Equal(t, int64(1), settlements)
}

func TestReconcileProposesSettlementsPerSupplier(t *testing.T) {
	svc, db := newTestService(t)

	inPeriod := time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)
	before := time.Date(2025, 3, 31, 23, 59, 0, 0, time.UTC)

	seedSupplierOrder(t, db, "s1", "o1", "lagos-crafts", 1000, 2, commerce.SupplierOrderDelivered, inPeriod)
	seedSupplierOrder(t, db, "s2", "o2", "lagos-crafts", 250.55, 1, commerce.SupplierOrderDelivered, inPeriod)
	seedSupplierOrder(t, db, "s3", "o3", "abuja-weaves", 700, 1, commerce.SupplierOrderDelivered, inPeriod)
	seedSupplierOrder(t, db, "s4", "o4", "abuja-weaves", 900, 1, commerce.SupplierOrderShipped, inPeriod)
	seedSupplierOrder(t, db, "s5", "o5", "kano-leather", 300, 1, commerce.SupplierOrderDelivered, before)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Settlements)

	var rows []SupplierSettlement
	require.NoError(t, db.Order("supplier_name ASC").Find(&rows).Error)
	require.Len(t, rows, 2)

	require.Equal(t, "abuja-weaves", rows[0].SupplierName)
	require.Equal(t, 700.0, rows[0].TotalAmount)
	require.Equal(t, 1, rows[0].OrderCount)

	require.Equal(t, "lagos-crafts", rows[1].SupplierName)
	require.Equal(t, 2250.55, rows[1].TotalAmount)
	require.Equal(t, 2, rows[1].OrderCount)
	require.Equal(t, SettlementProposed, rows[1].Status)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)

	p, err := Day("2025-01-31", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, loc), p.Start)
	require.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, loc), p.End)

	_, err = Day("31/01/2025", loc)
	require.Error(t, err)
}
