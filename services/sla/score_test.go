package sla

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGradeBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{100, "A"},
		{90.0, "A"},
		{89.99, "B"},
		{80.0, "B"},
		{79.99, "C"},
		{70.0, "C"},
		{69.99, "D"},
		{60.0, "D"},
		{59.99, "F"},
		{0, "F"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Grade(tc.score), "score=%v", tc.score)
	}
}

func TestScoreFromCountsYieldingNinety(t *testing.T) {
	// 0.30*1 + 0.25*0.6 + 0.20*1 + 0.15*1 + 0.10*1 = 0.90
	c := Counts{Total: 5, Delivered: 5, OnTime: 3}
	score := c.Rates().Score()

	require.Equal(t, 90.0, score)
	require.Equal(t, "A", Grade(score))
}

func TestPerfectSupplier(t *testing.T) {
	c := Counts{Total: 10, Delivered: 10, OnTime: 10}
	require.Equal(t, 100.0, c.Rates().Score())
}

func TestRates(t *testing.T) {
	c := Counts{Total: 10, Delivered: 6, OnTime: 3, Cancelled: 2, Returned: 1, Disputed: 4}
	r := c.Rates()

	require.InDelta(t, 0.6, r.Fulfillment, 1e-9)
	require.InDelta(t, 0.5, r.OnTime, 1e-9)
	require.InDelta(t, 0.2, r.Cancellation, 1e-9)
	require.InDelta(t, 0.1, r.Return, 1e-9)
	require.InDelta(t, 0.8, r.Satisfaction, 1e-9)

	// 0.18 + 0.125 + 0.16 + 0.135 + 0.08
	require.Equal(t, 68.0, r.Score())
	require.Equal(t, "D", Grade(r.Score()))
}

func TestSatisfactionNeverNegative(t *testing.T) {
	c := Counts{Total: 2, Disputed: 5}
	require.Zero(t, c.Rates().Satisfaction)
}

func TestRatesWithoutDeliveries(t *testing.T) {
	c := Counts{Total: 4, Cancelled: 4}
	r := c.Rates()

	require.Zero(t, r.OnTime)
	require.Equal(t, 1.0, r.Cancellation)
	// only the return and satisfaction components remain
	require.Equal(t, 25.0, r.Score())
	require.Equal(t, "F", Grade(r.Score()))

	require.Equal(t, Rates{}, Counts{}.Rates())
}
