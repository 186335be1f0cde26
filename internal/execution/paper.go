package execution

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/model"
)

// ResultRecorder receives closed trades, normally the ledger.
type ResultRecorder interface {
	AppendTradeResult(res ledger.TradeResult) error
}

// Position is an open paper position.
type Position struct {
	OrderID    string    `json:"order_id"`
	Plan       Plan      `json:"plan"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`

	seq int64
}

// Closed is a position closed by OnCandle together with its ledger row.
type Closed struct {
	Position Position           `json:"position"`
	Result   ledger.TradeResult `json:"result"`
}

// PaperExecutor simulates execution without exchange calls. Positions exit
// in full at the stop or tp1; when one bar spans both, the stop wins.
type PaperExecutor struct {
	mu       sync.RWMutex
	open     map[string]*Position // by decision id
	fills    []Fill
	orderSeq int64

	results ResultRecorder
	journal *Journal

	// Simulation parameters
	slippageBps float64 // basis points of slippage (e.g., 5 = 0.05%)
}

// NewPaperExecutor creates a paper trading executor. Closed trades are
// appended to results; slippageBps controls simulated entry slippage.
func NewPaperExecutor(results ResultRecorder, slippageBps float64) *PaperExecutor {
	return &PaperExecutor{
		open:        make(map[string]*Position),
		fills:       make([]Fill, 0, 64),
		results:     results,
		slippageBps: slippageBps,
	}
}

// WithJournal persists every fill to j as well.
func (p *PaperExecutor) WithJournal(j *Journal) *PaperExecutor {
	p.journal = j
	return p
}

// Open fills plan at rate plus slippage against the trade direction.
func (p *PaperExecutor) Open(plan *Plan, rate float64, at time.Time) (*Position, error) {
	if rate <= 0 {
		return nil, &model.ValidationError{Field: "rate", Reason: fmt.Sprintf("must be positive, got %v", rate)}
	}

	p.mu.Lock()
	if _, dup := p.open[plan.DecisionID]; dup {
		p.mu.Unlock()
		return nil, &model.ValidationError{Field: "decision_id", Reason: fmt.Sprintf("%s already open", plan.DecisionID)}
	}
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	slippage := rate * p.slippageBps / 10000
	fillPrice := rate + slippage // buy higher
	if plan.Side == model.SideShort {
		fillPrice = rate - slippage // sell lower
	}

	pos := &Position{OrderID: orderID, Plan: *plan, EntryPrice: fillPrice, OpenedAt: at, seq: p.orderSeq}
	p.open[plan.DecisionID] = pos
	fill := Fill{
		OrderID:    orderID,
		DecisionID: plan.DecisionID,
		Symbol:     plan.Symbol,
		Side:       plan.Side,
		Action:     ActionOpen,
		Price:      fillPrice,
		Slippage:   slippage,
		FilledAt:   at,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] OPEN %s %s price=%.8f (slip=%.8f) stop=%.8f tp1=%.8f order=%s decision=%s",
		plan.Side, plan.Symbol, fillPrice, slippage, plan.Stop, plan.TP1, orderID, plan.DecisionID)
	p.record(fill)

	cp := *pos
	return &cp, nil
}

// OnCandle checks every open position on symbol against the bar's range
// and closes those that hit their stop or tp1, in order of opening. A
// position leaves the book only after its result is recorded; when the
// recorder fails, that position and every later one stay open and the
// trades closed so far are returned with the error.
func (p *PaperExecutor) OnCandle(symbol string, c model.Candle) ([]Closed, error) {
	sym := model.NormalizeSymbol(symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	hits := make([]*Position, 0, len(p.open))
	for _, pos := range p.open {
		if model.NormalizeSymbol(pos.Plan.Symbol) != sym {
			continue
		}
		if _, reason := exitOnBar(&pos.Plan, c); reason != "" {
			hits = append(hits, pos)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })

	var closed []Closed
	at := c.Time()
	for _, pos := range hits {
		exit, reason := exitOnBar(&pos.Plan, c)
		res := ledger.TradeResult{
			DecisionID:   pos.Plan.DecisionID,
			ExitPrice:    ledger.Price(exit),
			PnLRMultiple: ledger.Ratio(ledger.RMultiple(pos.EntryPrice, pos.Plan.Stop, exit, pos.Plan.Side)),
			ExitReason:   reason,
			Timestamp:    at,
		}
		if p.results != nil {
			if err := p.results.AppendTradeResult(res); err != nil {
				return closed, fmt.Errorf("record %s: %w", pos.OrderID, err)
			}
		}
		delete(p.open, pos.Plan.DecisionID)

		fill := Fill{
			OrderID:    pos.OrderID,
			DecisionID: pos.Plan.DecisionID,
			Symbol:     pos.Plan.Symbol,
			Side:       pos.Plan.Side,
			Action:     ActionClose,
			Price:      exit,
			Reason:     reason,
			FilledAt:   at,
		}
		p.fills = append(p.fills, fill)
		p.record(fill)
		closed = append(closed, Closed{Position: *pos, Result: res})

		log.Printf("[paper] CLOSE %s %s exit=%.8f reason=%s R=%.4f decision=%s",
			pos.Plan.Side, pos.Plan.Symbol, exit, reason, float64(res.PnLRMultiple), res.DecisionID)
	}
	return closed, nil
}

// exitOnBar returns the exit level hit inside c, stop first.
func exitOnBar(plan *Plan, c model.Candle) (float64, string) {
	if plan.Side == model.SideShort {
		switch {
		case c.High >= plan.Stop:
			return plan.Stop, ExitStopHit
		case c.Low <= plan.TP1:
			return plan.TP1, ExitTP1Hit
		}
		return 0, ""
	}
	switch {
	case c.Low <= plan.Stop:
		return plan.Stop, ExitStopHit
	case c.High >= plan.TP1:
		return plan.TP1, ExitTP1Hit
	}
	return 0, ""
}

func (p *PaperExecutor) record(f Fill) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordFill(f); err != nil {
		log.Printf("[paper] journal write failed: %v", err)
	}
}

// OpenPositions returns a snapshot of open positions in order of opening.
func (p *PaperExecutor) OpenPositions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.open))
	for _, pos := range p.open {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
