package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// SchemaVersion tags every TradingSignal on the wire.
	SchemaVersion = "1.0"

	// MaxRationaleLen bounds the human-readable rationale (in characters).
	MaxRationaleLen = 60

	// TakeProfitCount is the number of take-profit levels the schema carries.
	TakeProfitCount = 2

	takeProfitSumTolerance = 1e-6
)

// Side is the trade direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// EntryType selects how the position is opened.
type EntryType string

const (
	EntryMarket EntryType = "market"
	EntryLimit  EntryType = "limit"
)

// Entry is a tagged union: a market entry carries nothing, a limit entry
// carries its limit price.
type Entry struct {
	Type       EntryType
	LimitPrice float64
}

// MarketEntry returns a market entry.
func MarketEntry() Entry { return Entry{Type: EntryMarket} }

// LimitEntry returns a limit entry at price.
func LimitEntry(price float64) Entry { return Entry{Type: EntryLimit, LimitPrice: price} }

// Validate checks the variant shape.
func (e Entry) Validate() error {
	switch e.Type {
	case EntryMarket:
		if e.LimitPrice != 0 {
			return &ValidationError{Field: "entry", Reason: "market entries take no limit_price"}
		}
		return nil
	case EntryLimit:
		if !isFinite(e.LimitPrice) || e.LimitPrice <= 0 {
			return &ValidationError{Field: "entry.limit_price", Reason: "limit entries require a positive limit_price"}
		}
		return nil
	case "":
		return &ValidationError{Field: "entry.type", Reason: "missing"}
	default:
		return &ValidationError{Field: "entry.type", Reason: fmt.Sprintf("must be 'market' or 'limit', got %q", e.Type)}
	}
}

type entryWire struct {
	Type       EntryType `json:"type"`
	LimitPrice *float64  `json:"limit_price,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{Type: e.Type}
	switch e.Type {
	case EntryMarket:
	case EntryLimit:
		p := e.LimitPrice
		w.LimitPrice = &p
	default:
		return nil, &ValidationError{Field: "entry.type", Reason: fmt.Sprintf("cannot encode %q", e.Type)}
	}
	return json.Marshal(w)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var w entryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Entry{Type: w.Type}
	if w.LimitPrice != nil {
		if w.Type != EntryLimit {
			return &ValidationError{Field: "entry", Reason: "limit_price only allowed on limit entries"}
		}
		out.LimitPrice = *w.LimitPrice
	} else if w.Type == EntryLimit {
		return &ValidationError{Field: "entry.limit_price", Reason: "limit entries require limit_price"}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}

// TakeProfit closes SizePct of the position at Price.
type TakeProfit struct {
	Price   float64 `json:"price"`
	SizePct float64 `json:"size_pct"`
}

// RiskPlan is the stop, the take-profit ladder and the capital allocation.
type RiskPlan struct {
	InitialStop   float64      `json:"initial_stop"`
	TakeProfits   []TakeProfit `json:"take_profits"`
	MaxCapitalPct float64      `json:"max_capital_pct"`
}

// Validate enforces the structural invariants: exactly two take-profits
// whose sizes sum to 1.0 and a capital fraction in (0, 1).
func (r *RiskPlan) Validate() error {
	if !isFinite(r.InitialStop) {
		return &ValidationError{Field: "risk.initial_stop", Reason: "must be finite"}
	}
	if len(r.TakeProfits) != TakeProfitCount {
		return &ValidationError{Field: "risk.take_profits", Reason: fmt.Sprintf("exactly %d take_profits required, got %d", TakeProfitCount, len(r.TakeProfits))}
	}
	total := 0.0
	for i, tp := range r.TakeProfits {
		if !isFinite(tp.Price) {
			return &ValidationError{Field: fmt.Sprintf("risk.take_profits[%d].price", i), Reason: "must be finite"}
		}
		if !(tp.SizePct > 0 && tp.SizePct < 1) {
			return &ValidationError{Field: fmt.Sprintf("risk.take_profits[%d].size_pct", i), Reason: fmt.Sprintf("must be in (0, 1), got %v", tp.SizePct)}
		}
		total += tp.SizePct
	}
	if math.Abs(total-1.0) > takeProfitSumTolerance {
		return &ValidationError{Field: "risk.take_profits", Reason: fmt.Sprintf("size_pct must sum to 1.0, got %.10g", total)}
	}
	if !(r.MaxCapitalPct > 0 && r.MaxCapitalPct < 1) {
		return &ValidationError{Field: "risk.max_capital_pct", Reason: fmt.Sprintf("must be in (0, 1), got %v", r.MaxCapitalPct)}
	}
	return nil
}

// TP1 is the first take-profit price.
func (r *RiskPlan) TP1() float64 { return r.TakeProfits[0].Price }

// TP2 is the second take-profit price.
func (r *RiskPlan) TP2() float64 { return r.TakeProfits[1].Price }

// TradingSignal is the instruction handed to the execution side. Its JSON
// form is the queue wire format.
type TradingSignal struct {
	Version    string    `json:"version"`
	DecisionID string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Confidence float64   `json:"confidence"`
	Entry      Entry     `json:"entry"`
	Risk       RiskPlan  `json:"risk"`
	Rationale  string    `json:"rationale"`
}

// SignalParams are the inputs to NewTradingSignal. DecisionID and
// Timestamp are generated when left empty.
type SignalParams struct {
	DecisionID string
	Timestamp  time.Time
	Symbol     string
	Side       Side
	Confidence float64
	Entry      Entry
	Risk       RiskPlan
	Rationale  string
}

// NewTradingSignal normalizes p and runs every structural check before
// returning the signal.
func NewTradingSignal(p SignalParams) (*TradingSignal, error) {
	id := p.DecisionID
	if id == "" {
		id = uuid.New().String()
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	tps := make([]TakeProfit, len(p.Risk.TakeProfits))
	copy(tps, p.Risk.TakeProfits)

	sig := &TradingSignal{
		Version:    SchemaVersion,
		DecisionID: id,
		Timestamp:  ts.UTC(),
		Symbol:     NormalizeSymbol(p.Symbol),
		Side:       p.Side,
		Confidence: p.Confidence,
		Entry:      p.Entry,
		Risk: RiskPlan{
			InitialStop:   p.Risk.InitialStop,
			TakeProfits:   tps,
			MaxCapitalPct: p.Risk.MaxCapitalPct,
		},
		Rationale: strings.TrimSpace(p.Rationale),
	}
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

// Validate re-runs the structural checks, e.g. on a decoded payload.
func (s *TradingSignal) Validate() error {
	if s.Version != SchemaVersion {
		return &ValidationError{Field: "version", Reason: fmt.Sprintf("want %q, got %q", SchemaVersion, s.Version)}
	}
	if s.DecisionID == "" {
		return &ValidationError{Field: "decision_id", Reason: "missing"}
	}
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	if s.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "missing"}
	}
	if s.Side != SideLong && s.Side != SideShort {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("must be 'long' or 'short', got %q", s.Side)}
	}
	if !isFinite(s.Confidence) || s.Confidence <= 0 || s.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be in (0, 1], got %v", s.Confidence)}
	}
	if err := s.Entry.Validate(); err != nil {
		return err
	}
	if err := s.Risk.Validate(); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(s.Rationale); n > MaxRationaleLen {
		return &ValidationError{Field: "rationale", Reason: fmt.Sprintf("at most %d characters, got %d", MaxRationaleLen, n)}
	}
	return nil
}

// CapCapital lowers Risk.MaxCapitalPct to limit when it is above it. It
// never raises the value. Reports whether the signal changed.
func (s *TradingSignal) CapCapital(limit float64) bool {
	if s.Risk.MaxCapitalPct > limit {
		s.Risk.MaxCapitalPct = limit
		return true
	}
	return false
}

// Encode returns the queue wire form.
func (s *TradingSignal) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses and validates a queue payload.
func DecodeSignal(b []byte) (*TradingSignal, error) {
	var s TradingSignal
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// NormalizeSymbol trims and uppercases an instrument identifier.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
