// Package indicator provides technical indicator calculations over candle data.
//
// Indicators here are batch functions over an ascending candle window: the
// pipeline runs short-lived cycles and recomputes from the window it was
// handed, so no state is carried between calls.
package indicator

import "math"

// round4 rounds to 4 decimal places.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
