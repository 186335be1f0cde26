package strategy

import (
	"fmt"
	"time"

	"signal-bridge/internal/model"
)

const (
	BreakoutLookback     = 20
	StopLookback         = 10
	ConfidenceDefault    = 0.6
	DefaultMaxCapitalPct = 0.05

	// DefaultCandleLimit is the window requested by GenerateFor callers that
	// have no configured limit.
	DefaultCandleLimit = 200
)

// Breakout implements a long-only channel breakout.
//
// Entry: the last close is above the highest high of the previous
// BreakoutLookback bars (current bar excluded).
// Stop: the lowest low of the last StopLookback bars (current bar included).
// Targets: 1R and 2R, split 50/50.
type Breakout struct {
	name string

	// Now stamps generated signals. Defaults to time.Now.
	Now func() time.Time
}

// NewBreakout creates a breakout strategy.
func NewBreakout() *Breakout {
	return &Breakout{name: "breakout-v1", Now: time.Now}
}

// WithName renames the strategy, e.g. after a MODEL_NAME override.
func (b *Breakout) WithName(name string) *Breakout {
	if name != "" {
		b.name = name
	}
	return b
}

// Name returns the strategy name.
func (b *Breakout) Name() string { return b.name }

// MinCandles is the shortest window Generate will evaluate.
func MinCandles() int {
	return max(BreakoutLookback+2, StopLookback+2)
}

// Generate returns a long signal when the last close breaks out of the
// prior range, nil otherwise.
func (b *Breakout) Generate(symbol string, candles []model.Candle) (*model.TradingSignal, error) {
	n := len(candles)
	if n < MinCandles() {
		return nil, nil
	}

	entry := candles[n-1].Close

	prior := candles[n-1-BreakoutLookback : n-1]
	highest := prior[0].High
	for _, c := range prior[1:] {
		if c.High > highest {
			highest = c.High
		}
	}
	if !(entry > highest) {
		return nil, nil
	}

	recent := candles[n-StopLookback:]
	stop := recent[0].Low
	for _, c := range recent[1:] {
		if c.Low < stop {
			stop = c.Low
		}
	}
	if stop >= entry {
		return nil, nil
	}

	distance := entry - stop
	ts := time.Time{}
	if b.Now != nil {
		ts = b.Now()
	}

	return model.NewTradingSignal(model.SignalParams{
		Timestamp:  ts,
		Symbol:     symbol,
		Side:       model.SideLong,
		Confidence: ConfidenceDefault,
		Entry:      model.MarketEntry(),
		Risk: model.RiskPlan{
			InitialStop: stop,
			TakeProfits: []model.TakeProfit{
				{Price: entry + distance, SizePct: 0.5},
				{Price: entry + 2*distance, SizePct: 0.5},
			},
			MaxCapitalPct: DefaultMaxCapitalPct,
		},
		Rationale: fmt.Sprintf("Breakout above %d-bar high", BreakoutLookback),
	})
}
