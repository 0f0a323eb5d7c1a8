package sla

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"aura-payments/pkg/config"
	"aura-payments/services/commerce"
	"aura-payments/services/dispute"
	"aura-payments/services/refund"
	"aura-payments/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2025, 5, 31, 2, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	models := append(commerce.Models(), Models()...)
	models = append(models, &refund.Refund{})
	models = append(models, dispute.Models()...)
	db := testutil.NewTestDB(t, models...)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Node:     node,
		Config:   &config.Config{},
		Commerce: commerce.NewRepository(db),
	})
	svc.now = func() time.Time { return fixedNow }
	return svc, db
}

type supplierOrder struct {
	status      commerce.SupplierOrderStatus
	created     time.Time
	lastUpdated time.Time
}

func seed(t *testing.T, db *gorm.DB, supplier string, orders []supplierOrder) []string {
	t.Helper()

	ids := make([]string, 0, len(orders))
	for i, so := range orders {
		orderID := fmt.Sprintf("%s-o%d", supplier, i)
		require.NoError(t, db.Omit("Items").Create(&commerce.Order{
			ID: orderID, Reference: "ref-" + orderID, Status: commerce.OrderStatusPaid, GrandTotal: 100,
		}).Error)

		updated := so.lastUpdated
		require.NoError(t, db.Create(&commerce.SupplierOrder{
			ID:               fmt.Sprintf("%s-s%d", supplier, i),
			OrderID:          orderID,
			SupplierName:     supplier,
			Status:           so.status,
			SupplierCost:     50,
			Quantity:         1,
			LastStatusUpdate: &updated,
			CreatedAt:        so.created,
		}).Error)
		ids = append(ids, orderID)
	}
	return ids
}

func TestScoreAppendsSnapshotPerSupplier(t *testing.T) {
	svc, db := newTestService(t)

	created := fixedNow.Add(-20 * 24 * time.Hour)
	orders := seed(t, db, "lagos-crafts", []supplierOrder{
		{commerce.SupplierOrderDelivered, created, created.Add(2 * 24 * time.Hour)},
		{commerce.SupplierOrderDelivered, created, created.Add(14 * 24 * time.Hour)},
		{commerce.SupplierOrderDelivered, created, created.Add(15 * 24 * time.Hour)},
		{commerce.SupplierOrderCancelled, created, created},
	})
	seed(t, db, "abuja-weaves", []supplierOrder{
		{commerce.SupplierOrderDelivered, created, created.Add(24 * time.Hour)},
	})
	seed(t, db, "stale", []supplierOrder{
		{commerce.SupplierOrderDelivered, fixedNow.Add(-40 * 24 * time.Hour), fixedNow.Add(-39 * 24 * time.Hour)},
	})

	require.NoError(t, db.Create(&refund.Refund{
		ID: "r1", OrderID: orders[3], Amount: 100, Status: refund.StatusCompleted,
	}).Error)
	require.NoError(t, db.Create(&refund.Refund{
		ID: "r2", OrderID: orders[0], Amount: 10, Status: refund.StatusCompleted,
	}).Error)
	require.NoError(t, db.Create(&dispute.Dispute{
		ID: "d1", OrderID: orders[1], ProviderReference: "pd1", Status: dispute.StatusOpen,
	}).Error)

	summary, err := svc.Score(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Suppliers)

	history, err := svc.History(context.Background(), "lagos-crafts")
	require.NoError(t, err)
	require.Len(t, history, 1)

	m := history[0]
	require.Equal(t, 4, m.TotalOrders)
	require.InDelta(t, 0.75, m.FulfillmentRate, 1e-9)
	require.InDelta(t, 2.0/3.0, m.OnTimeDeliveryRate, 1e-9)
	require.InDelta(t, 0.25, m.CancellationRate, 1e-9)
	require.InDelta(t, 0.25, m.ReturnRate, 1e-9)
	require.InDelta(t, 0.875, m.SatisfactionScore, 1e-9)
	// 0.225 + 0.16667 + 0.15 + 0.1125 + 0.0875
	require.Equal(t, 74.17, m.Score)
	require.Equal(t, "C", m.Grade)

	_, err = svc.Score(context.Background())
	require.NoError(t, err)

	history, err = svc.History(context.Background(), "lagos-crafts")
	require.NoError(t, err)
	require.Len(t, history, 2)

	stale, err := svc.History(context.Background(), "stale")
	require.NoError(t, err)
	require.Empty(t, stale)
}
