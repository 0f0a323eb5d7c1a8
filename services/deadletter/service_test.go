package deadletter

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

	"aura-payments/pkg/db/pagination"
	"aura-payments/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{DB: db, Node: node})
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCaptureStartsAtOneAttempt(t *testing.T) {
	svc := newTestService(t)

	e := &Entry{
		Provider:     "paystack",
		EventType:    "refund.pending",
		Kind:         "refund",
		Payload:      datatypes.JSON(`{"event":"refund.pending"}`),
		ErrorMessage: "boom",
		Attempts:     7,
	}
	require.NoError(t, svc.Capture(context.Background(), e))
	require.NotEmpty(t, e.ID)

	var stored Entry
	require.NoError(t, svc.db.First(&stored, "id = ?", e.ID).Error)
	require.Equal(t, 1, stored.Attempts)
	require.True(t, stored.LastAttemptAt.Equal(fixedNow))
}

func TestClaimReplayableFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	add := func(id, kind string, age time.Duration, attempts int) {
		at := fixedNow.Add(-age)
		require.NoError(t, svc.db.Create(&Entry{
			ID: id, Kind: kind, Attempts: attempts, LastAttemptAt: &at, CreatedAt: at,
		}).Error)
	}
	add("old-attempt", "refund", 3*time.Hour, 1)
	add("new-attempt", "refund", time.Hour, 2)
	add("exhausted", "refund", time.Hour, 5)
	add("stale", "refund", 25*time.Hour, 1)
	add("other-kind", "dispute", time.Hour, 1)

	criteria := ReplayCriteria{Kind: "refund", Since: fixedNow.Add(-24 * time.Hour), MaxAttempts: 5, Limit: 10}
	entries, err := svc.ClaimReplayable(ctx, criteria, "run-a", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "old-attempt", entries[0].ID)
	require.Equal(t, "new-attempt", entries[1].ID)

	again, err := svc.ClaimReplayable(ctx, criteria, "run-b", 10*time.Minute)
	require.NoError(t, err)
	require.Empty(t, again)

	require.NoError(t, svc.Release(ctx, []string{"old-attempt", "new-attempt"}, "run-a"))
	again, err = svc.ClaimReplayable(ctx, criteria, "run-b", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, again, 2)
}

func TestClaimReplayableHonoursLimit(t *testing.T) {
	svc := newTestService(t)

	for i := 0; i < 12; i++ {
		at := fixedNow.Add(-time.Duration(i+1) * time.Minute)
		require.NoError(t, svc.db.Create(&Entry{
			ID: fmt.Sprintf("e%02d", i), Kind: "refund", Attempts: 1, LastAttemptAt: &at, CreatedAt: at,
		}).Error)
	}

	entries, err := svc.ClaimReplayable(context.Background(), ReplayCriteria{
		Kind: "refund", Since: fixedNow.Add(-24 * time.Hour), MaxAttempts: 5, Limit: 10,
	}, "run", time.Minute)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.Equal(t, "e11", entries[0].ID)
}

func TestRecordAttempt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	e := &Entry{Kind: "refund", ErrorMessage: "first"}
	require.NoError(t, svc.Capture(ctx, e))

	require.NoError(t, svc.RecordAttempt(ctx, e.ID, errors.New("order not found")))
	require.NoError(t, svc.RecordAttempt(ctx, e.ID, nil))

	var stored Entry
	require.NoError(t, svc.db.First(&stored, "id = ?", e.ID).Error)
	require.Equal(t, 3, stored.Attempts)
	require.Equal(t, "order not found", stored.ErrorMessage)
}

func TestListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.db.Create(&Entry{ID: fmt.Sprintf("e%d", i), Kind: "refund", Attempts: 1}).Error)
	}

	first, info, err := svc.List(ctx, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)

	second, info, err := svc.List(ctx, pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "e2", second[0].ID)
	require.False(t, info.HasMore)
}
