// Package strategy turns a candle window into a candidate trading signal.
//
// A Generator is pure: it reads an ascending candle slice and either returns
// a fully constructed model.TradingSignal or nil when there is no setup.
// Risk policy is applied later by the risk gate.
package strategy

import (
	"context"

	"signal-bridge/internal/model"
)

// Generator is the interface that signal strategies implement.
type Generator interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Generate inspects candles (oldest first) and returns a signal, or
	// nil when the window holds no setup. Errors are reserved for signal
	// construction failures.
	Generate(symbol string, candles []model.Candle) (*model.TradingSignal, error)
}

// GenerateFor fetches limit candles for symbol from src and runs g on them.
func GenerateFor(ctx context.Context, g Generator, src model.CandleSource, symbol string, limit int) (*model.TradingSignal, error) {
	candles, err := src.Candles(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}
	return g.Generate(symbol, candles)
}
