package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura-payments/services/testutil"
)

func newEvent(id, eventID string) *InboundEvent {
	return &InboundEvent{
		ID:              id,
		Provider:        "paystack",
		ProviderEventID: eventID,
		EventType:       "charge.success",
		Kind:            "payment_success",
		Deliveries:      1,
		ReceivedAt:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRecordRejectsSecondDelivery(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t, &InboundEvent{}))
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, newEvent("a", "charge.success:1")))
	require.ErrorIs(t, store.Record(ctx, newEvent("b", "charge.success:1")), ErrAlreadyRecorded)

	other := newEvent("c", "charge.success:1")
	other.Provider = "flutterwave"
	require.NoError(t, store.Record(ctx, other))
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t, &InboundEvent{}))

	ev, err := store.Get(context.Background(), "paystack", "nope")
	require.NoError(t, err)
	require.Nil(t, ev)
}

func TestMarkProcessedAndDeliveries(t *testing.T) {
	store := NewStore(testutil.NewTestDB(t, &InboundEvent{}))
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, newEvent("a", "charge.success:1")))
	require.NoError(t, store.RecordDelivery(ctx, "a"))

	at := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)
	require.NoError(t, store.MarkProcessed(ctx, "a", at, Links{OrderID: "o1"}))

	ev, err := store.Get(ctx, "paystack", "charge.success:1")
	require.NoError(t, err)
	require.True(t, ev.Processed)
	require.Equal(t, 2, ev.Deliveries)
	require.Equal(t, "o1", ev.OrderID)
	require.True(t, ev.ProcessedAt.Equal(at))

	require.Error(t, store.MarkProcessed(ctx, "missing", at, Links{}))
}
