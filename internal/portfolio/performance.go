// Package portfolio aggregates closed trades into R-multiple performance
// figures, overall and per symbol.
package portfolio

import (
	"sort"
	"sync"

	"signal-bridge/internal/ledger"
)

// Stats summarises a set of closed trades. R values are in multiples of
// the initial risk.
type Stats struct {
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalR      float64 `json:"total_r"`
	AvgR        float64 `json:"avg_r"`
	BestR       float64 `json:"best_r"`
	WorstR      float64 `json:"worst_r"`
	MaxDrawdown float64 `json:"max_drawdown_r"`
}

// Summary is the overall view plus a breakdown by symbol and exit reason.
type Summary struct {
	Stats
	BySymbol map[string]Stats `json:"by_symbol"`
	ByReason map[string]int   `json:"by_reason"`
	Unmapped int              `json:"unmapped"` // results with no matching decision
}

type trade struct {
	symbol string
	reason string
	r      float64
}

// Tracker accumulates closed trades in arrival order.
type Tracker struct {
	mu     sync.RWMutex
	trades []trade
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{trades: make([]trade, 0, 64)}
}

// Record adds one closed trade for symbol.
func (t *Tracker) Record(symbol string, res ledger.TradeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades = append(t.trades, trade{symbol: symbol, reason: res.ExitReason, r: float64(res.PnLRMultiple)})
}

// Len returns the number of recorded trades.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.trades)
}

// Summary computes the current figures.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Summary{
		BySymbol: make(map[string]Stats),
		ByReason: make(map[string]int),
	}
	bySymbol := make(map[string][]float64)
	all := make([]float64, 0, len(t.trades))
	for _, tr := range t.trades {
		all = append(all, tr.r)
		bySymbol[tr.symbol] = append(bySymbol[tr.symbol], tr.r)
		out.ByReason[tr.reason]++
	}
	out.Stats = compute(all)
	for sym, rs := range bySymbol {
		out.BySymbol[sym] = compute(rs)
	}
	return out
}

// compute expects rs in close order; drawdown is measured on the running
// cumulative R curve.
func compute(rs []float64) Stats {
	var s Stats
	if len(rs) == 0 {
		return s
	}
	s.Trades = len(rs)
	s.BestR, s.WorstR = rs[0], rs[0]
	var equity, peak float64
	for _, r := range rs {
		switch {
		case r > 0:
			s.Wins++
		case r < 0:
			s.Losses++
		}
		s.TotalR += r
		if r > s.BestR {
			s.BestR = r
		}
		if r < s.WorstR {
			s.WorstR = r
		}
		equity += r
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}
	s.AvgR = s.TotalR / float64(s.Trades)
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	return s
}

// FromLedger builds a tracker from loaded ledger rows. Results are replayed
// in timestamp order and attributed to the symbol of their decision;
// results whose decision is missing are counted as unmapped and skipped.
func FromLedger(decisions []*ledger.DecisionRecord, results []*ledger.TradeResult) (*Tracker, int) {
	symbols := make(map[string]string, len(decisions))
	for _, d := range decisions {
		symbols[d.DecisionID] = d.Symbol
	}
	ordered := make([]*ledger.TradeResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	t := NewTracker()
	unmapped := 0
	for _, res := range ordered {
		sym, ok := symbols[res.DecisionID]
		if !ok {
			unmapped++
			continue
		}
		t.Record(sym, *res)
	}
	return t, unmapped
}

// SummarizeLedger loads both ledger files and summarises them.
func SummarizeLedger(l *ledger.Ledger) (Summary, error) {
	decisions, err := l.LoadDecisions()
	if err != nil {
		return Summary{}, err
	}
	results, err := l.LoadTradeResults()
	if err != nil {
		return Summary{}, err
	}
	t, unmapped := FromLedger(decisions, results)
	s := t.Summary()
	s.Unmapped = unmapped
	return s, nil
}
