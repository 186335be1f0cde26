package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func result(id, reason string, r float64, offset time.Duration) ledger.TradeResult {
	return ledger.TradeResult{
		DecisionID:   id,
		ExitPrice:    ledger.Price(50000),
		PnLRMultiple: ledger.Ratio(r),
		ExitReason:   reason,
		Timestamp:    t0.Add(offset),
	}
}

func TestTracker_Empty(t *testing.T) {
	s := NewTracker().Summary()
	assert.Zero(t, s.Trades)
	assert.Zero(t, s.WinRate)
	assert.Empty(t, s.BySymbol)
}

func TestTracker_Summary(t *testing.T) {
	tr := NewTracker()
	tr.Record("BTC/USDT", result("a", "tp1_hit", 2, 0))
	tr.Record("BTC/USDT", result("b", "stop_hit", -1, time.Minute))
	tr.Record("ETH/USDT", result("c", "stop_hit", -1, 2*time.Minute))
	tr.Record("ETH/USDT", result("d", "tp2_hit", 3, 3*time.Minute))
	require.Equal(t, 4, tr.Len())

	s := tr.Summary()
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.InDelta(t, 3.0, s.TotalR, 1e-9)
	assert.InDelta(t, 0.75, s.AvgR, 1e-9)
	assert.Equal(t, 3.0, s.BestR)
	assert.Equal(t, -1.0, s.WorstR)
	// Curve 2, 1, 0, 3: peak 2 then down to 0.
	assert.InDelta(t, 2.0, s.MaxDrawdown, 1e-9)

	assert.Equal(t, 2, s.ByReason["stop_hit"])
	assert.Equal(t, 1, s.ByReason["tp1_hit"])

	btc := s.BySymbol["BTC/USDT"]
	assert.Equal(t, 2, btc.Trades)
	assert.InDelta(t, 1.0, btc.TotalR, 1e-9)
	assert.InDelta(t, 1.0, btc.MaxDrawdown, 1e-9)

	eth := s.BySymbol["ETH/USDT"]
	assert.InDelta(t, 2.0, eth.TotalR, 1e-9)
	assert.InDelta(t, 1.0, eth.MaxDrawdown, 1e-9)
}

func TestTracker_BreakevenIsNeitherWinNorLoss(t *testing.T) {
	tr := NewTracker()
	tr.Record("BTC/USDT", result("a", "inferred_close", 0, 0))
	s := tr.Summary()
	assert.Equal(t, 1, s.Trades)
	assert.Zero(t, s.Wins)
	assert.Zero(t, s.Losses)
}

func TestFromLedger_OrdersByTimestampAndCountsUnmapped(t *testing.T) {
	decisions := []*ledger.DecisionRecord{
		{DecisionID: "a", Symbol: "BTC/USDT"},
		{DecisionID: "b", Symbol: "BTC/USDT"},
	}
	late := result("a", "tp1_hit", 2, time.Hour)
	early := result("b", "stop_hit", -1, 0)
	orphan := result("zzz", "stop_hit", -1, time.Minute)

	tr, unmapped := FromLedger(decisions, []*ledger.TradeResult{&late, &orphan, &early})
	assert.Equal(t, 1, unmapped)
	require.Equal(t, 2, tr.Len())

	// Loss first, then win: drawdown counts from the zero start.
	s := tr.Summary()
	assert.InDelta(t, 1.0, s.MaxDrawdown, 1e-9)
	assert.InDelta(t, 1.0, s.TotalR, 1e-9)
}

func TestSummarizeLedger(t *testing.T) {
	l := ledger.New(t.TempDir())

	sig, err := model.NewTradingSignal(model.SignalParams{
		Timestamp:  t0,
		Symbol:     "BTC/USDT",
		Side:       model.SideLong,
		Confidence: 0.6,
		Entry:      model.MarketEntry(),
		Risk: model.RiskPlan{
			InitialStop:   51000,
			TakeProfits:   []model.TakeProfit{{Price: 53000, SizePct: 0.5}, {Price: 54000, SizePct: 0.5}},
			MaxCapitalPct: 0.05,
		},
		Rationale: "Breakout above 20-bar high",
	})
	require.NoError(t, err)
	require.NoError(t, l.AppendDecision(sig, 52000))
	require.NoError(t, l.AppendTradeResult(result(sig.DecisionID, "tp1_hit", 1, time.Hour)))
	require.NoError(t, l.AppendTradeResult(result("unknown", "stop_hit", -1, 2*time.Hour)))

	s, err := SummarizeLedger(l)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Trades)
	assert.Equal(t, 1, s.Unmapped)
	assert.Equal(t, 1, s.BySymbol["BTC/USDT"].Wins)
}
