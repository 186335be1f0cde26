package model

import (
	"context"
	"time"
)

// ── Pipeline Port Interfaces ──
// These interfaces decouple the cycle driver and the consumer from the
// concrete candle providers, the Redis queue and the CSV ledger.

// CandleSource supplies an ascending, fixed-interval OHLCV series.
type CandleSource interface {
	// Candles returns between min(limit, 50) and limit candles for symbol,
	// oldest first.
	Candles(ctx context.Context, symbol string, limit int) ([]Candle, error)
}

// SignalPublisher pushes an accepted signal onto the shared queue.
type SignalPublisher interface {
	Publish(ctx context.Context, sig *TradingSignal) error
}

// SignalFetcher removes and returns the newest fresh signal for a symbol.
// Returns nil, nil when nothing matches.
type SignalFetcher interface {
	FetchLatest(ctx context.Context, symbol string, maxAge time.Duration) (*TradingSignal, error)
}

// DecisionRecorder appends accepted signals to the decision log.
type DecisionRecorder interface {
	AppendDecision(sig *TradingSignal, entryPrice float64) error
}
