package ledger

import (
	"log/slog"
	"time"

	"signal-bridge/internal/model"
)

// Exit reasons written by the reconciler.
const (
	ExitTP1Inferred  = "tp1_inferred"
	ExitStopInferred = "stop_inferred"
)

// RMultiple returns the trade outcome in units of initial risk. It is 0 when
// the stop is not on the losing side of the entry.
func RMultiple(entry, stop, exit float64, side model.Side) float64 {
	if side == model.SideShort {
		if risk := stop - entry; risk > 0 {
			return (entry - exit) / risk
		}
		return 0
	}
	if risk := entry - stop; risk > 0 {
		return (exit - entry) / risk
	}
	return 0
}

// InferSummary reports one reconciliation pass.
type InferSummary struct {
	Inferred []TradeResult `json:"inferred"`
	Open     int           `json:"open_trades"`
	Existing int           `json:"existing_results"`
}

// Reconciler closes open decisions whose levels the market has already
// crossed.
type Reconciler struct {
	ledger *Ledger
}

// NewReconciler creates a Reconciler over l.
func NewReconciler(l *Ledger) *Reconciler {
	return &Reconciler{ledger: l}
}

// Infer walks every decision for symbol that has no result yet. A long is
// closed at tp1 when lastClose >= tp1 and at its stop when lastClose <= stop;
// shorts mirror this. Closures are appended to the results log.
func (r *Reconciler) Infer(symbol string, lastClose float64, now time.Time) (InferSummary, error) {
	var sum InferSummary

	decisions, err := r.ledger.LoadDecisions()
	if err != nil {
		return sum, err
	}
	results, err := r.ledger.LoadTradeResults()
	if err != nil {
		return sum, err
	}
	sum.Existing = len(results)

	done := make(map[string]struct{}, len(results))
	for _, res := range results {
		done[res.DecisionID] = struct{}{}
	}

	want := model.NormalizeSymbol(symbol)
	for _, d := range decisions {
		if _, ok := done[d.DecisionID]; ok {
			continue
		}
		if model.NormalizeSymbol(d.Symbol) != want {
			continue
		}

		entry, stop, tp1 := float64(d.EntryPrice), float64(d.Stop), float64(d.TP1)
		side := model.Side(d.Side)

		var exit float64
		var reason string
		switch side {
		case model.SideLong:
			if lastClose >= tp1 {
				exit, reason = tp1, ExitTP1Inferred
			} else if lastClose <= stop {
				exit, reason = stop, ExitStopInferred
			}
		case model.SideShort:
			if lastClose <= tp1 {
				exit, reason = tp1, ExitTP1Inferred
			} else if lastClose >= stop {
				exit, reason = stop, ExitStopInferred
			}
		default:
			slog.Warn("decision with unknown side", "decision_id", d.DecisionID, "side", d.Side)
			continue
		}
		if reason == "" {
			sum.Open++
			continue
		}

		res := TradeResult{
			DecisionID:   d.DecisionID,
			ExitPrice:    Price(exit),
			PnLRMultiple: Ratio(RMultiple(entry, stop, exit, side)),
			ExitReason:   reason,
			Timestamp:    now.UTC(),
		}
		if err := r.ledger.AppendTradeResult(res); err != nil {
			return sum, err
		}
		done[d.DecisionID] = struct{}{}
		sum.Inferred = append(sum.Inferred, res)
		slog.Info("inferred trade closure",
			"decision_id", d.DecisionID, "reason", reason, "exit", exit, "r", float64(res.PnLRMultiple))
	}
	return sum, nil
}
