package sqlite

import (
	"context"
	"errors"
	"log/slog"

	"signal-bridge/internal/model"
)

// minFallbackCandles mirrors the floor every CandleSource guarantees.
const minFallbackCandles = 50

// CachedSource wraps a CandleSource with a SQLite read-through cache. Fresh
// fetches are upserted; when the upstream fails the most recent cached
// candles are served instead, provided there are enough of them.
type CachedSource struct {
	upstream model.CandleSource
	writer   *Writer
	reader   *Reader

	// OnFallback is called when cached candles are served (optional).
	OnFallback func(symbol string, served int)
}

// NewCachedSource creates a CachedSource persisting through w.
func NewCachedSource(upstream model.CandleSource, w *Writer) *CachedSource {
	return &CachedSource{upstream: upstream, writer: w, reader: w.Reader()}
}

// Candles implements model.CandleSource.
func (s *CachedSource) Candles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	candles, err := s.upstream.Candles(ctx, symbol, limit)
	if err == nil {
		if werr := s.writer.WriteCandles(symbol, candles); werr != nil {
			slog.Warn("candle cache write failed", "symbol", symbol, "error", werr)
		}
		return candles, nil
	}
	if errors.Is(err, context.Canceled) {
		return nil, err
	}

	cached, rerr := s.reader.ReadLatest(symbol, limit)
	if rerr != nil {
		slog.Warn("candle cache read failed", "symbol", symbol, "error", rerr)
		return nil, err
	}
	need := limit
	if need > minFallbackCandles {
		need = minFallbackCandles
	}
	if len(cached) < need {
		return nil, err
	}
	if verr := model.ValidateSeries(cached, 0); verr != nil {
		return nil, err
	}

	slog.Warn("upstream candles unavailable, serving cache",
		"symbol", symbol, "cached", len(cached), "upstream_error", err)
	if s.OnFallback != nil {
		s.OnFallback(symbol, len(cached))
	}
	return cached, nil
}
