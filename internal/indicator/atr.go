package indicator

import (
	"fmt"
	"math"

	"signal-bridge/internal/model"
)

// DefaultATRPeriod is the trailing window used by the risk gate.
const DefaultATRPeriod = 14

// TrueRanges returns one true range per candle from index 1 onwards:
// TR = max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRanges(candles []model.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		cur, prevClose := candles[i], candles[i-1].Close
		hl := cur.High - cur.Low
		hc := math.Abs(cur.High - prevClose)
		lc := math.Abs(cur.Low - prevClose)
		trs = append(trs, math.Max(hl, math.Max(hc, lc)))
	}
	return trs
}

// ComputeATR returns the arithmetic mean of the last period true ranges,
// rounded to 4 decimals.
//
// This is a simple average, not Wilder's exponential smoothing. The risk
// gate multipliers are calibrated against this exact formula.
func ComputeATR(candles []model.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, &model.ValidationError{Field: "atr_period", Reason: fmt.Sprintf("must be positive, got %d", period)}
	}
	if len(candles) < period+1 {
		return 0, &model.InsufficientDataError{What: "ATR", Need: period + 1, Got: len(candles)}
	}

	trs := TrueRanges(candles)
	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return round4(sum / float64(period)), nil
}
