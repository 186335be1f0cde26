package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// DefaultInterval is the spacing between consecutive candles.
const DefaultInterval = 5 * time.Minute

// Candle is one OHLCV bar. TS is the bucket start in Unix milliseconds (UTC).
type Candle struct {
	TS     int64   `json:"timestamp"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the candle start as a UTC time.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate checks the OHLC ordering and volume of a single candle.
func (c *Candle) Validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &MalformedCandleError{TS: c.TS, Reason: "non-finite value"}
		}
	}
	if c.High < c.Low {
		return &MalformedCandleError{TS: c.TS, Reason: fmt.Sprintf("high %.8f below low %.8f", c.High, c.Low)}
	}
	if c.Open < c.Low || c.Open > c.High {
		return &MalformedCandleError{TS: c.TS, Reason: fmt.Sprintf("open %.8f outside [%.8f, %.8f]", c.Open, c.Low, c.High)}
	}
	if c.Close < c.Low || c.Close > c.High {
		return &MalformedCandleError{TS: c.TS, Reason: fmt.Sprintf("close %.8f outside [%.8f, %.8f]", c.Close, c.Low, c.High)}
	}
	if c.Volume <= 0 {
		return &MalformedCandleError{TS: c.TS, Reason: "volume must be positive"}
	}
	return nil
}

// ValidateSeries validates every candle and checks that timestamps are
// strictly ascending. When interval > 0 the spacing must also be uniform.
func ValidateSeries(candles []Candle, interval time.Duration) error {
	step := interval.Milliseconds()
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return err
		}
		if i == 0 {
			continue
		}
		prev := candles[i-1].TS
		if candles[i].TS <= prev {
			return &MalformedCandleError{TS: candles[i].TS, Reason: fmt.Sprintf("timestamp not after previous %d", prev)}
		}
		if step > 0 && candles[i].TS-prev != step {
			return &MalformedCandleError{TS: candles[i].TS, Reason: fmt.Sprintf("spacing %dms, want %dms", candles[i].TS-prev, step)}
		}
	}
	return nil
}

// Last returns the most recent candle. The caller guarantees len > 0.
func Last(candles []Candle) Candle {
	return candles[len(candles)-1]
}
