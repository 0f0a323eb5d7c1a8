package refund

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"aura-payments/pkg/config"
	"aura-payments/pkg/errutil"
	"aura-payments/pkg/paystack"
	"aura-payments/pkg/paystack/paystacktest"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"
	"aura-payments/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, provider paystack.Provider) (*Service, *gorm.DB) {
	t.Helper()

	models := append(commerce.Models(), &Refund{}, &deadletter.Entry{})
	db := testutil.NewTestDB(t, models...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	dlq := deadletter.NewService(deadletter.Params{DB: db, Node: node})
	svc := NewService(Params{
		DB:         db,
		Node:       node,
		Config:     cfg,
		Commerce:   commerce.NewRepository(db),
		DeadLetter: dlq,
		Provider:   provider,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc, db
}

func seedOrder(t *testing.T, db *gorm.DB, id string, total float64, withTxn bool) *commerce.Order {
	t.Helper()

	order := &commerce.Order{
		ID:         id,
		Reference:  "ref-" + id,
		Status:     commerce.OrderStatusPaid,
		GrandTotal: total,
		Currency:   "NGN",
	}
	require.NoError(t, db.Omit("Items").Create(order).Error)

	if withTxn {
		require.NoError(t, db.Create(&commerce.Transaction{
			ID:                "txn-" + id,
			OrderID:           id,
			ProviderReference: "ps-" + id,
			Amount:            total,
			Status:            commerce.TransactionStatusSuccess,
		}).Error)
	}
	return order
}

func seedRefund(t *testing.T, db *gorm.DB, id, orderID string, status Status, attempts int) {
	t.Helper()
	require.NoError(t, db.Create(&Refund{
		ID:        id,
		OrderID:   orderID,
		Amount:    25.5,
		Currency:  "NGN",
		Status:    status,
		Attempts:  attempts,
		CreatedAt: fixedNow.Add(-time.Hour),
	}).Error)
}

func loadRefund(t *testing.T, db *gorm.DB, id string) Refund {
	t.Helper()
	var rf Refund
	require.NoError(t, db.First(&rf, "id = ?", id).Error)
	return rf
}

func TestReconcileSubmitsPendingRefund(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusPending, 0)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Submitted)

	calls := provider.RefundCalls()
	require.Len(t, calls, 1)
	require.Equal(t, "ps-o1", calls[0].Transaction)
	require.Equal(t, int64(2550), calls[0].Amount)

	rf := loadRefund(t, db, "r1")
	require.Equal(t, StatusProcessing, rf.Status)
	require.Equal(t, 0, rf.Attempts)
	require.Empty(t, rf.ClaimOwner)
}

func TestReconcileAttemptCap(t *testing.T) {
	provider := &paystacktest.Provider{
		RefundFn: func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
			return nil, fmt.Errorf("%w: connection reset", paystack.ErrTransient)
		},
	}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusPending, 4)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	rf := loadRefund(t, db, "r1")
	require.Equal(t, StatusFailed, rf.Status)
	require.Equal(t, 5, rf.Attempts)
	require.Contains(t, rf.LastError, "connection reset")

	_, err = svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, provider.RefundCalls(), 1)
}

func TestReconcileFailureBelowCapStaysPending(t *testing.T) {
	provider := &paystacktest.Provider{
		RefundFn: func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
			return nil, fmt.Errorf("%w: insufficient balance", paystack.ErrRejected)
		},
	}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusRequested, 1)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Retrying)

	rf := loadRefund(t, db, "r1")
	require.Equal(t, StatusPending, rf.Status)
	require.Equal(t, 2, rf.Attempts)
}

func TestReconcileExhaustedRefundFailsWithoutCall(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusPending, 5)

	_, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, provider.RefundCalls())
	require.Equal(t, StatusFailed, loadRefund(t, db, "r1").Status)
}

func TestReconcileSkipsRefundWithoutTransaction(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, false)
	seedRefund(t, db, "r1", "o1", StatusCreated, 2)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Empty(t, provider.RefundCalls())

	rf := loadRefund(t, db, "r1")
	require.Equal(t, StatusCreated, rf.Status)
	require.Equal(t, 2, rf.Attempts)
}

func TestReconcileIgnoresProcessingAndTerminal(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusProcessing, 0)
	seedRefund(t, db, "r2", "o1", StatusCompleted, 0)
	seedRefund(t, db, "r3", "o1", StatusFailed, 5)

	_, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, provider.RefundCalls())
}

func TestReconcileHonoursBatchSize(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)
	svc.cfg.Refund.BatchSize = 2

	seedOrder(t, db, "o1", 100, true)
	for i := 0; i < 3; i++ {
		seedRefund(t, db, fmt.Sprintf("r%d", i), "o1", StatusPending, 0)
	}

	_, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, provider.RefundCalls(), 2)
}

func TestReconcileSkipsRowsLeasedByAnotherRun(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusPending, 0)

	claimedAt := fixedNow.Add(-time.Minute)
	require.NoError(t, db.Model(&Refund{}).Where("id = ?", "r1").Updates(map[string]any{
		"claim_owner": "other-run",
		"claimed_at":  claimedAt,
	}).Error)

	_, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Empty(t, provider.RefundCalls())
	require.Equal(t, StatusPending, loadRefund(t, db, "r1").Status)
}

func TestReconcileReplaysDeadLetters(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)

	recent := fixedNow.Add(-2 * time.Hour)
	stale := fixedNow.Add(-48 * time.Hour)
	payload := datatypes.JSON(`{"event":"refund.pending","data":{"id":99,"amount":4000,"transaction_reference":"ref-o1"}}`)
	require.NoError(t, db.Create(&deadletter.Entry{
		ID: "d1", Provider: "paystack", EventType: "refund.pending", Kind: string(paystack.KindRefund),
		ProviderEventID: "refund.pending:99", Payload: payload, Attempts: 1, LastAttemptAt: &recent, CreatedAt: recent,
	}).Error)
	require.NoError(t, db.Create(&deadletter.Entry{
		ID: "d2", Provider: "paystack", EventType: "refund.pending", Kind: string(paystack.KindRefund),
		ProviderEventID: "refund.pending:98", Payload: payload, Attempts: 1, LastAttemptAt: &stale, CreatedAt: stale,
	}).Error)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.DeadLettersReplayed)
	require.Equal(t, 1, summary.RefundsCreated)

	var refunds []Refund
	require.NoError(t, db.Find(&refunds).Error)
	require.Len(t, refunds, 1)
	require.Equal(t, 40.0, refunds[0].Amount)
	require.Equal(t, StatusProcessing, refunds[0].Status)

	var d1, d2 deadletter.Entry
	require.NoError(t, db.First(&d1, "id = ?", "d1").Error)
	require.NoError(t, db.First(&d2, "id = ?", "d2").Error)
	require.Equal(t, 2, d1.Attempts)
	require.Equal(t, 1, d2.Attempts)
	require.Empty(t, d1.ClaimOwner)
}

func seedRefundDeadLetter(t *testing.T, db *gorm.DB, id, eventID string, at time.Time) {
	t.Helper()
	payload := datatypes.JSON(`{"event":"refund.failed","data":{"id":77,"amount":2500,"transaction_reference":"ref-o1"}}`)
	require.NoError(t, db.Create(&deadletter.Entry{
		ID: id, Provider: "paystack", EventType: "refund.failed", Kind: string(paystack.KindRefund),
		ProviderEventID: eventID, Payload: payload, Attempts: 1, LastAttemptAt: &at, CreatedAt: at,
	}).Error)
}

func TestReconcileReplaysDeadLetterOnceAcrossRuns(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	seedOrder(t, db, "o1", 100, true)
	seedRefundDeadLetter(t, db, "d1", "refund.failed:77", fixedNow.Add(-time.Second))

	created := 0
	for i := 0; i < 5; i++ {
		summary, err := svc.Reconcile(context.Background())
		require.NoError(t, err)
		created += summary.RefundsCreated
	}
	require.Equal(t, 1, created)

	var refunds []Refund
	require.NoError(t, db.Find(&refunds).Error)
	require.Len(t, refunds, 1)
	require.Equal(t, StatusProcessing, refunds[0].Status)
	require.Len(t, provider.RefundCalls(), 1)

	var entry deadletter.Entry
	require.NoError(t, db.First(&entry, "id = ?", "d1").Error)
	require.Equal(t, 5, entry.Attempts)
}

func TestReconcileSkipsDeadLetterAlreadyHandledByWebhook(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)

	order := seedOrder(t, db, "o1", 100, true)
	seedRefundDeadLetter(t, db, "d1", "refund.failed:77", fixedNow.Add(-time.Minute))

	env, err := paystack.ParseEnvelope([]byte(`{"event":"refund.failed","data":{"id":77,"amount":2500,"transaction_reference":"ref-o1"}}`))
	require.NoError(t, err)
	_, err = svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)

	summary, err := svc.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.DeadLettersReplayed)
	require.Equal(t, 0, summary.RefundsCreated)
	require.Empty(t, provider.RefundCalls())

	var count int64
	require.NoError(t, db.Model(&Refund{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestIssueCallsProviderImmediately(t *testing.T) {
	provider := &paystacktest.Provider{}
	svc, db := newTestService(t, provider)
	seedOrder(t, db, "o1", 100, true)

	rf, err := svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 30, Reason: "damaged"})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, rf.Status)

	calls := provider.RefundCalls()
	require.Len(t, calls, 1)
	require.Equal(t, paystack.RefundRequest{Transaction: "ps-o1", Amount: 3000}, calls[0])
	require.Equal(t, StatusProcessing, loadRefund(t, db, rf.ID).Status)
}

func TestIssueTransientFailureLeavesRequested(t *testing.T) {
	provider := &paystacktest.Provider{
		RefundFn: func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
			return nil, fmt.Errorf("%w: timeout", paystack.ErrTransient)
		},
	}
	svc, db := newTestService(t, provider)
	seedOrder(t, db, "o1", 100, true)

	rf, err := svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 30})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, rf.Status)

	stored := loadRefund(t, db, rf.ID)
	require.Equal(t, StatusRequested, stored.Status)
	require.Equal(t, 1, stored.Attempts)
}

func TestIssueRejectedReturnsBadGateway(t *testing.T) {
	provider := &paystacktest.Provider{
		RefundFn: func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
			return nil, fmt.Errorf("%w: refund amount too large", paystack.ErrRejected)
		},
	}
	svc, db := newTestService(t, provider)
	seedOrder(t, db, "o1", 100, true)

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 30})
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusBadGateway, be.Code)
	require.True(t, errors.Is(err, paystack.ErrRejected))
}

func TestIssueValidatesOrderAndAmount(t *testing.T) {
	svc, db := newTestService(t, &paystacktest.Provider{})
	seedOrder(t, db, "o1", 100, true)

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: "missing", Amount: 10})
	require.Equal(t, errutil.StatusNotFound, errutil.As(err).Code)

	_, err = svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 100.01})
	require.Equal(t, errutil.StatusValidationFailed, errutil.As(err).Code)
}

func TestApplyProviderEventCompletesProcessingRefund(t *testing.T) {
	svc, db := newTestService(t, &paystacktest.Provider{})
	order := seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusProcessing, 0)

	env, err := paystack.ParseEnvelope([]byte(`{"event":"refund.processed","data":{"id":7,"amount":2550,"transaction_reference":"ref-o1"}}`))
	require.NoError(t, err)

	rf, err := svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)
	require.Equal(t, "r1", rf.ID)
	require.Equal(t, StatusCompleted, loadRefund(t, db, "r1").Status)
}

func TestApplyProviderEventRecordsCreatedRefund(t *testing.T) {
	svc, db := newTestService(t, &paystacktest.Provider{})
	order := seedOrder(t, db, "o1", 100, true)

	env, err := paystack.ParseEnvelope([]byte(`{"event":"refund.pending","data":{"id":8,"amount":1200,"transaction_reference":"ref-o1"}}`))
	require.NoError(t, err)

	rf, err := svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)

	stored := loadRefund(t, db, rf.ID)
	require.Equal(t, StatusCreated, stored.Status)
	require.Equal(t, 12.0, stored.Amount)
	require.Equal(t, "o1", stored.OrderID)
	require.NotNil(t, stored.SourceEventID)
	require.Equal(t, "refund.pending:8", *stored.SourceEventID)
}

func TestApplyProviderEventSettlesRequestedRefundAfterIssueTimeout(t *testing.T) {
	provider := &paystacktest.Provider{
		RefundFn: func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
			return nil, fmt.Errorf("%w: timeout", paystack.ErrTransient)
		},
	}
	svc, db := newTestService(t, provider)
	order := seedOrder(t, db, "o1", 100, true)

	issued, err := svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 30})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, issued.Status)

	env, err := paystack.ParseEnvelope([]byte(`{"event":"refund.processed","data":{"id":21,"amount":3000,"transaction_reference":"ref-o1"}}`))
	require.NoError(t, err)

	rf, err := svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)
	require.Equal(t, issued.ID, rf.ID)
	require.Equal(t, StatusCompleted, rf.Status)

	provider.RefundFn = nil
	_, err = svc.Reconcile(context.Background())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&Refund{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
	require.Len(t, provider.RefundCalls(), 1)

	stored := loadRefund(t, db, issued.ID)
	require.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.SourceEventID)
	require.Equal(t, "refund.processed:21", *stored.SourceEventID)
}

func TestApplyProviderEventPendingMovesUnsubmittedRefundToProcessing(t *testing.T) {
	svc, db := newTestService(t, &paystacktest.Provider{})
	order := seedOrder(t, db, "o1", 100, true)
	seedRefund(t, db, "r1", "o1", StatusRequested, 1)

	env, err := paystack.ParseEnvelope([]byte(`{"event":"refund.pending","data":{"id":22,"amount":2550,"transaction_reference":"ref-o1"}}`))
	require.NoError(t, err)

	rf, err := svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)
	require.Equal(t, "r1", rf.ID)
	require.Equal(t, StatusProcessing, loadRefund(t, db, "r1").Status)

	again, err := svc.ApplyProviderEvent(context.Background(), env, env.EventID(), order)
	require.NoError(t, err)
	require.Equal(t, "r1", again.ID)

	var count int64
	require.NoError(t, db.Model(&Refund{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAdminRefundsWithoutSourceEventCoexist(t *testing.T) {
	svc, db := newTestService(t, &paystacktest.Provider{})
	seedOrder(t, db, "o1", 100, true)

	_, err := svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 10})
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), IssueRequest{OrderID: "o1", Amount: 20})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&Refund{}).Where("source_event_id IS NULL").Count(&count).Error)
	require.Equal(t, int64(2), count)
}
