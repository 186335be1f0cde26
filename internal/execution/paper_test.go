package execution

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/model"
)

var openedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func longPlan(id string) *Plan {
	return &Plan{DecisionID: id, Symbol: "BTC/USDT", Side: model.SideLong, CapitalPct: 0.05, Stop: 51000, TP1: 53000, TP2: 54000, Confidence: 0.6}
}

func shortPlan(id string) *Plan {
	return &Plan{DecisionID: id, Symbol: "BTC/USDT", Side: model.SideShort, CapitalPct: 0.05, Stop: 53000, TP1: 51000, TP2: 50000, Confidence: 0.6}
}

func candle(o, h, l, c float64) model.Candle {
	return model.Candle{TS: openedAt.Add(15 * time.Minute).UnixMilli(), Open: o, High: h, Low: l, Close: c, Volume: 10}
}

type failingRecorder struct{}

func (failingRecorder) AppendTradeResult(ledger.TradeResult) error { return errors.New("disk full") }

// flakyRecorder fails once the first failAfter results are stored.
type flakyRecorder struct {
	failAfter int
	stored    []ledger.TradeResult
}

func (r *flakyRecorder) AppendTradeResult(res ledger.TradeResult) error {
	if len(r.stored) >= r.failAfter {
		return errors.New("disk full")
	}
	r.stored = append(r.stored, res)
	return nil
}

func TestPaperExecutor_OpenAppliesSlippage(t *testing.T) {
	p := NewPaperExecutor(nil, 10) // 0.1%

	pos, err := p.Open(longPlan("a"), 52000, openedAt)
	require.NoError(t, err)
	assert.Equal(t, "PAPER-1", pos.OrderID)
	assert.InDelta(t, 52052.0, pos.EntryPrice, 1e-9)

	pos, err = p.Open(shortPlan("b"), 52000, openedAt)
	require.NoError(t, err)
	assert.Equal(t, "PAPER-2", pos.OrderID)
	assert.InDelta(t, 51948.0, pos.EntryPrice, 1e-9)

	fills := p.GetFills()
	require.Len(t, fills, 2)
	assert.Equal(t, ActionOpen, fills[0].Action)
	assert.InDelta(t, 52.0, fills[0].Slippage, 1e-9)
	assert.Len(t, p.OpenPositions(), 2)
}

func TestPaperExecutor_OpenRejectsDuplicatesAndBadRates(t *testing.T) {
	p := NewPaperExecutor(nil, 0)

	_, err := p.Open(longPlan("a"), 0, openedAt)
	assert.True(t, model.IsValidationError(err))

	_, err = p.Open(longPlan("a"), 52000, openedAt)
	require.NoError(t, err)
	_, err = p.Open(longPlan("a"), 52000, openedAt)
	assert.True(t, model.IsValidationError(err))
	assert.Len(t, p.OpenPositions(), 1)
}

func TestPaperExecutor_LongTargetHit(t *testing.T) {
	l := ledger.New(t.TempDir())
	p := NewPaperExecutor(l, 0)
	_, err := p.Open(longPlan("long-tp"), 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("BTC/USDT", candle(52000, 52500, 51500, 52400))
	require.NoError(t, err)
	assert.Empty(t, closed)

	closed, err = p.OnCandle("btc/usdt", candle(52400, 53100, 52300, 53050))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ExitTP1Hit, closed[0].Result.ExitReason)
	assert.Equal(t, ledger.Price(53000), closed[0].Result.ExitPrice)
	assert.InDelta(t, 1.0, float64(closed[0].Result.PnLRMultiple), 1e-9)
	assert.Empty(t, p.OpenPositions())

	results, err := l.LoadTradeResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "long-tp", results[0].DecisionID)
	assert.Equal(t, ExitTP1Hit, results[0].ExitReason)
}

func TestPaperExecutor_TargetAtTwoR(t *testing.T) {
	p := NewPaperExecutor(nil, 0)
	plan := longPlan("wide-tp")
	plan.TP1 = 54000
	_, err := p.Open(plan, 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("BTC/USDT", candle(53000, 54200, 52900, 54100))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ExitTP1Hit, closed[0].Result.ExitReason)
	assert.InDelta(t, 2.0, float64(closed[0].Result.PnLRMultiple), 1e-9)
}

func TestPaperExecutor_StopWinsWhenBarSpansBoth(t *testing.T) {
	p := NewPaperExecutor(nil, 0)
	_, err := p.Open(longPlan("wide"), 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("BTC/USDT", candle(52000, 53500, 50500, 53000))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ExitStopHit, closed[0].Result.ExitReason)
	assert.InDelta(t, -1.0, float64(closed[0].Result.PnLRMultiple), 1e-9)
}

func TestPaperExecutor_ShortSide(t *testing.T) {
	p := NewPaperExecutor(nil, 0)
	_, err := p.Open(shortPlan("s1"), 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("BTC/USDT", candle(52000, 52100, 50900, 51000))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ExitTP1Hit, closed[0].Result.ExitReason)
	assert.InDelta(t, 1.0, float64(closed[0].Result.PnLRMultiple), 1e-9)

	_, err = p.Open(shortPlan("s2"), 52000, openedAt)
	require.NoError(t, err)
	closed, err = p.OnCandle("BTC/USDT", candle(52000, 53000, 51800, 52900))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, ExitStopHit, closed[0].Result.ExitReason)
	assert.InDelta(t, -1.0, float64(closed[0].Result.PnLRMultiple), 1e-9)
}

func TestPaperExecutor_OtherSymbolsUntouched(t *testing.T) {
	p := NewPaperExecutor(nil, 0)
	_, err := p.Open(longPlan("a"), 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("ETH/USDT", candle(3000, 60000, 10, 3000))
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.Len(t, p.OpenPositions(), 1)
}

func TestPaperExecutor_RecorderFailureSurfaces(t *testing.T) {
	p := NewPaperExecutor(failingRecorder{}, 0)
	_, err := p.Open(longPlan("a"), 52000, openedAt)
	require.NoError(t, err)

	closed, err := p.OnCandle("BTC/USDT", candle(52000, 53100, 51900, 53000))
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, closed)
	// Unrecorded trades stay on the book.
	assert.Len(t, p.OpenPositions(), 1)
}

func TestPaperExecutor_PartialRecordKeepsRemainderOpen(t *testing.T) {
	rec := &flakyRecorder{failAfter: 1}
	p := NewPaperExecutor(rec, 0)
	for _, id := range []string{"first", "second", "third"} {
		_, err := p.Open(longPlan(id), 52000, openedAt)
		require.NoError(t, err)
	}

	bar := candle(52000, 53100, 51900, 53000)
	closed, err := p.OnCandle("BTC/USDT", bar)
	require.Error(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "first", closed[0].Result.DecisionID)

	open := p.OpenPositions()
	require.Len(t, open, 2)
	assert.Equal(t, "second", open[0].Plan.DecisionID)
	assert.Equal(t, "third", open[1].Plan.DecisionID)

	rec.failAfter = 10
	closed, err = p.OnCandle("BTC/USDT", bar)
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Empty(t, p.OpenPositions())
	require.Len(t, rec.stored, 3)
	assert.Equal(t, "third", rec.stored[2].DecisionID)
}

func TestPaperExecutor_ClosesInOpeningOrderPastNine(t *testing.T) {
	rec := &flakyRecorder{failAfter: 100}
	p := NewPaperExecutor(rec, 0)
	for i := 1; i <= 12; i++ {
		_, err := p.Open(longPlan(fmt.Sprintf("d%02d", i)), 52000, openedAt)
		require.NoError(t, err)
	}
	open := p.OpenPositions()
	require.Len(t, open, 12)
	assert.Equal(t, "PAPER-9", open[8].OrderID)
	assert.Equal(t, "PAPER-10", open[9].OrderID)

	closed, err := p.OnCandle("BTC/USDT", candle(52000, 52100, 50000, 50500))
	require.NoError(t, err)
	require.Len(t, closed, 12)
	for i, cl := range closed {
		assert.Equal(t, fmt.Sprintf("PAPER-%d", i+1), cl.Position.OrderID)
	}
}

func TestPaperExecutor_Journal(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "paper.db"))
	require.NoError(t, err)
	defer j.Close()

	p := NewPaperExecutor(nil, 5).WithJournal(j)
	_, err = p.Open(longPlan("j1"), 52000, openedAt)
	require.NoError(t, err)
	_, err = p.OnCandle("BTC/USDT", candle(52000, 52100, 50000, 50500))
	require.NoError(t, err)

	rows, err := j.GetFills(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// newest first
	assert.Equal(t, string(ActionClose), rows[0].Action)
	assert.Equal(t, ExitStopHit, rows[0].Reason)
	assert.Equal(t, 51000.0, rows[0].Price)
	assert.Equal(t, string(ActionOpen), rows[1].Action)
	assert.Equal(t, "", rows[1].Reason)
	assert.Equal(t, "j1", rows[1].DecisionID)
	assert.Equal(t, "PAPER-1", rows[1].OrderID)
}

var _ Executor = (*PaperExecutor)(nil)
