package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/model"
)

func TestRMultiple(t *testing.T) {
	cases := []struct {
		name              string
		entry, stop, exit float64
		side              model.Side
		want              float64
	}{
		{"long tp1", 52000, 51000, 53000, model.SideLong, 1},
		{"long stop", 52000, 51000, 51000, model.SideLong, -1},
		{"long 2R", 100, 90, 120, model.SideLong, 2},
		{"short tp1", 100, 110, 90, model.SideShort, 1},
		{"short stop", 100, 110, 110, model.SideShort, -1},
		{"long bad stop", 100, 100, 120, model.SideLong, 0},
		{"short bad stop", 100, 90, 80, model.SideShort, 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, RMultiple(tc.entry, tc.stop, tc.exit, tc.side), 1e-12, tc.name)
	}
}

func TestReconciler_Infer(t *testing.T) {
	l := New(t.TempDir())
	hit := signalAt(t, "BTC/USDT", model.SideLong, 52000, 51000, 53000, 54000)
	open := signalAt(t, "BTC/USDT", model.SideLong, 52000, 51000, 54000, 56000)
	stopped := signalAt(t, "BTC/USDT", model.SideLong, 54000, 53000, 55000, 56000)
	other := signalAt(t, "ETH/USDT", model.SideLong, 3000, 2900, 3100, 3200)
	for _, s := range []*model.TradingSignal{hit, open, stopped, other} {
		require.NoError(t, l.AppendDecision(s, s.Risk.InitialStop+(s.Risk.TP1()-s.Risk.InitialStop)/2))
	}

	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	sum, err := NewReconciler(l).Infer("btc/usdt", 53100, now)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Open)
	assert.Zero(t, sum.Existing)
	require.Len(t, sum.Inferred, 1)
	assert.Equal(t, hit.DecisionID, sum.Inferred[0].DecisionID)
	assert.Equal(t, ExitTP1Inferred, sum.Inferred[0].ExitReason)
	assert.Equal(t, Price(53000), sum.Inferred[0].ExitPrice)
	assert.InDelta(t, 1.0, float64(sum.Inferred[0].PnLRMultiple), 1e-9)

	// Logged at 54000 with stop 53000: a drop to 52900 stops it out.
	sum, err = NewReconciler(l).Infer("BTC/USDT", 52900, now)
	require.NoError(t, err)
	require.Len(t, sum.Inferred, 1)
	assert.Equal(t, stopped.DecisionID, sum.Inferred[0].DecisionID)
	assert.Equal(t, ExitStopInferred, sum.Inferred[0].ExitReason)
	assert.Equal(t, 1, sum.Existing)
	assert.InDelta(t, -1.0, float64(sum.Inferred[0].PnLRMultiple), 1e-9)

	report, err := l.CheckIntegrity()
	require.NoError(t, err)
	assert.True(t, report.Pass)
	assert.Equal(t, 2, report.UnmatchedDecisions)
}

func TestReconciler_Short(t *testing.T) {
	l := New(t.TempDir())
	short := signalAt(t, "BTC/USDT", model.SideShort, 50000, 51000, 49000, 48000)
	require.NoError(t, l.AppendDecision(short, 50000))

	sum, err := NewReconciler(l).Infer("BTC/USDT", 48900, time.Now())
	require.NoError(t, err)
	require.Len(t, sum.Inferred, 1)
	assert.Equal(t, ExitTP1Inferred, sum.Inferred[0].ExitReason)
	assert.InDelta(t, 1.0, float64(sum.Inferred[0].PnLRMultiple), 1e-9)
}

func TestReconciler_SkipsResolved(t *testing.T) {
	l := New(t.TempDir())
	sig := signalAt(t, "BTC/USDT", model.SideLong, 52000, 51000, 53000, 54000)
	require.NoError(t, l.AppendDecision(sig, 52000))

	r := NewReconciler(l)
	_, err := r.Infer("BTC/USDT", 53500, time.Now())
	require.NoError(t, err)
	sum, err := r.Infer("BTC/USDT", 53500, time.Now())
	require.NoError(t, err)
	assert.Empty(t, sum.Inferred)

	results, _ := l.LoadTradeResults()
	assert.Len(t, results, 1)
}
