package execution

import (
	"context"
	"log/slog"
	"time"

	"signal-bridge/internal/model"
)

// Plan is what an execution strategy needs from a signal: capital
// allocation, the stop and the take-profit levels.
type Plan struct {
	DecisionID string     `json:"decision_id"`
	Symbol     string     `json:"symbol"`
	Side       model.Side `json:"side"`
	CapitalPct float64    `json:"capital_pct"`
	Stop       float64    `json:"stop"`
	TP1        float64    `json:"tp1"`
	TP2        float64    `json:"tp2"`
	Confidence float64    `json:"confidence"`
	IssuedAt   time.Time  `json:"issued_at"`
}

// PlanFromSignal extracts a Plan from a validated signal.
func PlanFromSignal(sig *model.TradingSignal) *Plan {
	return &Plan{
		DecisionID: sig.DecisionID,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		CapitalPct: sig.Risk.MaxCapitalPct,
		Stop:       sig.Risk.InitialStop,
		TP1:        sig.Risk.TP1(),
		TP2:        sig.Risk.TP2(),
		Confidence: sig.Confidence,
		IssuedAt:   sig.Timestamp,
	}
}

// StopLossFraction expresses the stop relative to the open rate, negative
// when the stop sits on the losing side (e.g. -0.02 for 2% below a long
// entry). Returns 0 for a non-positive open rate.
func (p *Plan) StopLossFraction(openRate float64) float64 {
	if openRate <= 0 {
		return 0
	}
	frac := p.Stop/openRate - 1
	if p.Side == model.SideShort {
		return -frac
	}
	return frac
}

// ExitReason reports whether rate has crossed the first target or the
// stop. The target is checked first. Returns "" while the position should
// stay open.
func (p *Plan) ExitReason(rate float64) string {
	if p.Side == model.SideShort {
		switch {
		case rate <= p.TP1:
			return ExitTP1Hit
		case rate >= p.Stop:
			return ExitStopHit
		}
		return ""
	}
	switch {
	case rate >= p.TP1:
		return ExitTP1Hit
	case rate <= p.Stop:
		return ExitStopHit
	}
	return ""
}

// Bridge polls the signal bus for a trading pair.
type Bridge struct {
	fetcher model.SignalFetcher
	maxAge  time.Duration
}

// NewBridge creates a Bridge. maxAge <= 0 uses the bus default.
func NewBridge(f model.SignalFetcher, maxAge time.Duration) *Bridge {
	return &Bridge{fetcher: f, maxAge: maxAge}
}

// Poll claims the freshest signal for pair and returns its plan, or nil
// when there is nothing to act on.
func (b *Bridge) Poll(ctx context.Context, pair string) (*Plan, error) {
	sig, err := b.fetcher.FetchLatest(ctx, pair, b.maxAge)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, nil
	}
	plan := PlanFromSignal(sig)
	slog.Info("signal claimed",
		"decision_id", plan.DecisionID,
		"symbol", plan.Symbol,
		"side", plan.Side,
		"stop", plan.Stop,
		"tp1", plan.TP1,
		"capital_pct", plan.CapitalPct,
	)
	return plan, nil
}
