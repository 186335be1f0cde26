// Package synthetic provides a deterministic offline CandleSource.
//
// The generated walk is a pure function of (symbol, limit, clock bucket), so
// repeated calls inside the same 5-minute bucket return identical series.
// Useful for tests, previews and running the pipeline without an exchange.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"signal-bridge/internal/model"
)

// MinCandles is the floor on the number of candles returned per call.
const MinCandles = 50

const (
	btcBasePrice     = 50000.0
	defaultBasePrice = 1000.0
	seedModulus      = 10000
)

// Source generates a sin/cos price walk around a per-symbol base price.
type Source struct {
	// Interval between candles. Defaults to model.DefaultInterval.
	Interval time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// New creates a Source with the default interval and wall clock.
func New() *Source {
	return &Source{Interval: model.DefaultInterval, Now: time.Now}
}

// Candles returns max(limit, MinCandles) ascending candles ending at the
// current interval bucket.
func (s *Source) Candles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	interval := s.Interval
	if interval <= 0 {
		interval = model.DefaultInterval
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	n := limit
	if n < MinCandles {
		n = MinCandles
	}

	sym := model.NormalizeSymbol(symbol)
	seed := Seed(sym)
	base := defaultBasePrice
	if strings.Contains(sym, "BTC") {
		base = btcBasePrice
	}

	end := now().UTC().Truncate(interval)
	start := end.Add(-time.Duration(n-1) * interval)

	out := make([]model.Candle, n)
	prevClose := base
	for i := 0; i < n; i++ {
		tf := float64(seed+i) / 1000.0
		trend := float64(i) * 0.001
		noise := math.Sin(tf)*0.02 + math.Cos(tf*1.7)*0.01
		price := round2(base * (1 + trend + noise))

		vol := price * 0.005
		high := round2(price + vol*math.Abs(math.Sin(tf+1)))
		low := round2(price - vol*math.Abs(math.Cos(tf+2)))
		open := prevClose

		// Bars must contain both their open and close.
		high = math.Max(high, math.Max(price, open))
		low = math.Min(low, math.Min(price, open))

		out[i] = model.Candle{
			TS:     start.Add(time.Duration(i) * interval).UnixMilli(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: round2(20 + 30*math.Abs(math.Sin(tf+3))),
		}
		prevClose = price
	}
	return out, nil
}

// Seed is the per-symbol walk offset: FNV-1a of the symbol modulo 10000.
func Seed(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % seedModulus)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
