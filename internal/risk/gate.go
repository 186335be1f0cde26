// Package risk applies volatility and reward/risk policy to candidate
// signals. The gate performs no I/O.
package risk

import (
	"math"

	"signal-bridge/internal/indicator"
	"signal-bridge/internal/model"
)

// Rejection reasons reported in Verdict.Reason.
const (
	ReasonInsufficientCandles = "insufficient_candles"
	ReasonInvalidATR          = "invalid_atr"
	ReasonNonPositiveDistance = "non_positive_distance"
	ReasonStopTooTight        = "stop_too_tight"
	ReasonStopTooWide         = "stop_too_wide"
	ReasonRRBelowMin          = "rr_below_min"
)

// Verdict describes a gate decision. ATR, Distance and RR are filled in as
// far as the evaluation got.
type Verdict struct {
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
	ATR      float64 `json:"atr"`
	Distance float64 `json:"distance"`
	RR       float64 `json:"rr"`
	Capped   bool    `json:"capped"`
}

// Gate validates signals against a Config.
type Gate struct {
	cfg Config
}

// NewGate creates a Gate. cfg must pass Validate.
func NewGate(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the gate thresholds.
func (g *Gate) Config() Config { return g.cfg }

// Apply runs the policy checks. On acceptance it returns sig with
// max_capital_pct capped to the configured limit; on rejection it returns
// nil and leaves sig untouched.
func (g *Gate) Apply(sig *model.TradingSignal, candles []model.Candle) (*model.TradingSignal, Verdict) {
	var v Verdict

	if len(candles) < g.cfg.ATRPeriod+1 {
		v.Reason = ReasonInsufficientCandles
		return nil, v
	}
	atr, err := indicator.ComputeATR(candles, g.cfg.ATRPeriod)
	if err != nil || math.IsNaN(atr) || math.IsInf(atr, 0) || atr <= 0 {
		v.Reason = ReasonInvalidATR
		return nil, v
	}
	v.ATR = atr

	entry := model.Last(candles).Close
	v.Distance, v.RR = DistanceAndRR(sig.Side, entry, sig.Risk.InitialStop, sig.Risk.TP1())

	switch {
	case v.Distance <= 0:
		v.Reason = ReasonNonPositiveDistance
	case v.Distance < g.cfg.MinATRMultiple*atr:
		v.Reason = ReasonStopTooTight
	case v.Distance > g.cfg.MaxATRMultiple*atr:
		v.Reason = ReasonStopTooWide
	case v.RR < g.cfg.MinRR:
		v.Reason = ReasonRRBelowMin
	}
	if v.Reason != "" {
		return nil, v
	}

	v.Capped = sig.CapCapital(g.cfg.MaxCapitalPct)
	v.Accepted = true
	return sig, v
}

// DistanceAndRR returns the stop distance and the reward/risk ratio to the
// first target. RR is -1 when the distance is zero.
func DistanceAndRR(side model.Side, entry, stop, tp1 float64) (distance, rr float64) {
	var reward float64
	if side == model.SideShort {
		distance = stop - entry
		reward = entry - tp1
	} else {
		distance = entry - stop
		reward = tp1 - entry
	}
	if distance == 0 {
		return distance, -1
	}
	return distance, reward / distance
}
