package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/model"
)

type fakeFetcher struct {
	sig     *model.TradingSignal
	err     error
	symbol  string
	maxAge  time.Duration
	fetches int
}

func (f *fakeFetcher) FetchLatest(_ context.Context, symbol string, maxAge time.Duration) (*model.TradingSignal, error) {
	f.fetches++
	f.symbol, f.maxAge = symbol, maxAge
	sig := f.sig
	f.sig = nil
	return sig, f.err
}

func testSignal(t *testing.T, side model.Side, stop, tp1, tp2 float64) *model.TradingSignal {
	t.Helper()
	sig, err := model.NewTradingSignal(model.SignalParams{
		Timestamp:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Symbol:     "BTC/USDT",
		Side:       side,
		Confidence: 0.6,
		Entry:      model.MarketEntry(),
		Risk: model.RiskPlan{
			InitialStop:   stop,
			TakeProfits:   []model.TakeProfit{{Price: tp1, SizePct: 0.5}, {Price: tp2, SizePct: 0.5}},
			MaxCapitalPct: 0.03,
		},
		Rationale: "Breakout above 20-bar high",
	})
	require.NoError(t, err)
	return sig
}

// ════════════════════════════════════════════════════════════════
// Plan
// ════════════════════════════════════════════════════════════════

func TestPlanFromSignal(t *testing.T) {
	sig := testSignal(t, model.SideLong, 51000, 53000, 54000)
	plan := PlanFromSignal(sig)

	assert.Equal(t, sig.DecisionID, plan.DecisionID)
	assert.Equal(t, "BTC/USDT", plan.Symbol)
	assert.Equal(t, 0.03, plan.CapitalPct)
	assert.Equal(t, 51000.0, plan.Stop)
	assert.Equal(t, 53000.0, plan.TP1)
	assert.Equal(t, 54000.0, plan.TP2)
	assert.Equal(t, 0.6, plan.Confidence)
	assert.True(t, plan.IssuedAt.Equal(sig.Timestamp))
}

func TestPlan_StopLossFraction(t *testing.T) {
	long := &Plan{Side: model.SideLong, Stop: 49000}
	assert.InDelta(t, -0.02, long.StopLossFraction(50000), 1e-12)

	short := &Plan{Side: model.SideShort, Stop: 51000}
	assert.InDelta(t, -0.02, short.StopLossFraction(50000), 1e-12)

	assert.Equal(t, 0.0, long.StopLossFraction(0))
	assert.False(t, math.IsInf(long.StopLossFraction(-1), 0))
}

func TestPlan_ExitReason(t *testing.T) {
	long := &Plan{Side: model.SideLong, Stop: 51000, TP1: 53000}
	assert.Equal(t, ExitTP1Hit, long.ExitReason(53000))
	assert.Equal(t, ExitTP1Hit, long.ExitReason(53500))
	assert.Equal(t, ExitStopHit, long.ExitReason(51000))
	assert.Equal(t, "", long.ExitReason(52000))

	short := &Plan{Side: model.SideShort, Stop: 53000, TP1: 51000}
	assert.Equal(t, ExitTP1Hit, short.ExitReason(50900))
	assert.Equal(t, ExitStopHit, short.ExitReason(53100))
	assert.Equal(t, "", short.ExitReason(52000))
}

// ════════════════════════════════════════════════════════════════
// Bridge
// ════════════════════════════════════════════════════════════════

func TestBridge_PollReturnsPlanOnce(t *testing.T) {
	sig := testSignal(t, model.SideLong, 51000, 53000, 54000)
	f := &fakeFetcher{sig: sig}
	b := NewBridge(f, 5*time.Minute)

	plan, err := b.Poll(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, sig.DecisionID, plan.DecisionID)
	assert.Equal(t, "BTC/USDT", f.symbol)
	assert.Equal(t, 5*time.Minute, f.maxAge)

	plan, err = b.Poll(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Equal(t, 2, f.fetches)
}

func TestBridge_PollPropagatesErrors(t *testing.T) {
	boom := &model.TransportError{Op: "fetch signal", Err: errors.New("connection refused")}
	b := NewBridge(&fakeFetcher{err: boom}, 0)

	plan, err := b.Poll(context.Background(), "BTC/USDT")
	assert.Nil(t, plan)
	assert.True(t, model.IsTransportError(err))
}
