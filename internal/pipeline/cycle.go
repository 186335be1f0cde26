// Package pipeline drives one signal cycle end to end: fetch candles,
// generate a breakout candidate, run it through the risk gate, then publish
// it to the queue and log the decision.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"signal-bridge/internal/logger"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/model"
	"signal-bridge/internal/notification"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/strategy"
)

// Status is the outcome of a cycle.
type Status string

const (
	StatusNoTrade       Status = "no_trade"
	StatusFiltered      Status = "filtered"
	StatusPublished     Status = "published"
	StatusPreview       Status = "preview"
	StatusPublishFailed Status = "publish_failed"
)

// No-trade reasons. Filtered results carry the gate's reason instead.
const (
	ReasonInsufficientData   = "insufficient_data"
	ReasonCandlesUnavailable = "candles_unavailable"
	ReasonNoBreakout         = "no_breakout"
	ReasonInvalidSignal      = "invalid_signal"
	ReasonInternalError      = "internal_error"
)

const notifyTimeout = 10 * time.Second

// Options select what one cycle does.
type Options struct {
	// Symbol overrides the runner's default symbol.
	Symbol string

	// Preview computes everything but writes nothing to the queue or the
	// decision log.
	Preview bool
}

// Result is the machine-readable summary of a cycle.
type Result struct {
	Status     Status               `json:"status"`
	Symbol     string               `json:"symbol"`
	Reason     string               `json:"reason,omitempty"`
	DecisionID string               `json:"decision_id,omitempty"`
	EntryPrice float64              `json:"entry_price,omitempty"`
	Stop       float64              `json:"stop,omitempty"`
	TP1        float64              `json:"tp1,omitempty"`
	TP2        float64              `json:"tp2,omitempty"`
	ATR        float64              `json:"atr,omitempty"`
	Candles    int                  `json:"candles"`
	Error      string               `json:"error,omitempty"`
	TraceID    string               `json:"trace_id"`
	StageMs    map[string]float64   `json:"stage_ms,omitempty"`
	Signal     *model.TradingSignal `json:"signal,omitempty"`
}

// Failed reports whether the cycle should be surfaced as a failure.
func (r Result) Failed() bool {
	return r.Error != "" || r.Status == StatusPublishFailed
}

// Deps are the collaborators of a Runner. Publisher and Recorder may be
// nil for preview-only runners.
type Deps struct {
	Source    model.CandleSource
	Generator strategy.Generator
	Gate      *risk.Gate
	Publisher model.SignalPublisher
	Recorder  model.DecisionRecorder
	Metrics   *metrics.Metrics
	Notifier  notification.Notifier // optional

	// Symbol is used when Options.Symbol is empty.
	Symbol string
	// CandleLimit is the window requested per cycle.
	CandleLimit int
	// Now stamps trace ids. Defaults to time.Now.
	Now func() time.Time
}

// Runner executes signal cycles.
type Runner struct {
	deps Deps
}

// NewRunner checks deps and fills defaults.
func NewRunner(d Deps) (*Runner, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("pipeline: candle source is required")
	case d.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case d.Gate == nil:
		return nil, errors.New("pipeline: risk gate is required")
	}
	if d.CandleLimit <= 0 {
		d.CandleLimit = strategy.DefaultCandleLimit
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(nil)
	}
	return &Runner{deps: d}, nil
}

// RunCycle runs one cycle. It never panics and never returns an error:
// every outcome is reported in the Result.
func (r *Runner) RunCycle(ctx context.Context, opts Options) (res Result) {
	d := r.deps
	symbol := model.NormalizeSymbol(opts.Symbol)
	if symbol == "" {
		symbol = model.NormalizeSymbol(d.Symbol)
	}
	res = Result{
		Symbol:  symbol,
		TraceID: logger.GenerateTraceID(symbol, d.Now()),
		StageMs: make(map[string]float64, 5),
	}
	ctx = logger.WithTraceID(ctx, res.TraceID)

	stage := metrics.StageConfig
	var candles []model.Candle
	stageStart := time.Now()
	endStage := func(next string) {
		elapsed := time.Since(stageStart)
		res.StageMs[stage] = float64(elapsed.Microseconds()) / 1000.0
		d.Metrics.ObserveStage(stage, elapsed)
		stage, stageStart = next, time.Now()
	}

	defer func() {
		if p := recover(); p != nil {
			attrs := append(logger.LogWithTrace(ctx),
				"symbol", symbol, "stage", stage, "candles", len(candles),
				"panic", p, "stack", string(debug.Stack()))
			slog.Error("cycle panicked", attrs...)
			res.Status = StatusNoTrade
			res.Reason = ReasonInternalError
			res.Error = fmt.Sprintf("panic in %s stage: %v", stage, p)
			res.Signal = nil
		}
		r.finish(ctx, res)
	}()

	if symbol == "" {
		res.Status, res.Reason = StatusNoTrade, ReasonInvalidSignal
		res.Error = (&model.ValidationError{Field: "symbol", Reason: "missing"}).Error()
		return res
	}
	endStage(metrics.StageCandles)

	candles, err := d.Source.Candles(ctx, symbol, d.CandleLimit)
	res.Candles = len(candles)
	if err != nil {
		res.Status, res.Error = StatusNoTrade, err.Error()
		res.Reason = ReasonCandlesUnavailable
		if model.IsDataError(err) {
			res.Reason = ReasonInsufficientData
		}
		return res
	}
	if need := strategy.MinCandles(); len(candles) < need {
		res.Status, res.Reason = StatusNoTrade, ReasonInsufficientData
		res.Error = (&model.InsufficientDataError{What: d.Generator.Name(), Need: need, Got: len(candles)}).Error()
		return res
	}
	res.EntryPrice = model.Last(candles).Close
	endStage(metrics.StageSignal)

	sig, err := d.Generator.Generate(symbol, candles)
	switch {
	case err != nil:
		res.Status, res.Error = StatusNoTrade, err.Error()
		switch {
		case model.IsValidationError(err):
			res.Reason = ReasonInvalidSignal
		case model.IsDataError(err):
			res.Reason = ReasonInsufficientData
		default:
			res.Reason = ReasonInternalError
		}
		return res
	case sig == nil:
		res.Status, res.Reason = StatusNoTrade, ReasonNoBreakout
		return res
	}
	res.DecisionID = sig.DecisionID
	res.Stop = sig.Risk.InitialStop
	res.TP1, res.TP2 = sig.Risk.TP1(), sig.Risk.TP2()
	endStage(metrics.StageRisk)

	accepted, verdict := d.Gate.Apply(sig, candles)
	res.ATR = verdict.ATR
	if verdict.ATR > 0 {
		d.Metrics.LastATR.WithLabelValues(symbol).Set(verdict.ATR)
	}
	if !verdict.Accepted {
		d.Metrics.RejectionsTotal.WithLabelValues(verdict.Reason).Inc()
		res.Status, res.Reason = StatusFiltered, verdict.Reason
		slog.Info("signal filtered", append(logger.LogWithTrace(ctx),
			"symbol", symbol, "reason", verdict.Reason,
			"atr", verdict.ATR, "distance", verdict.Distance, "rr", verdict.RR)...)
		return res
	}
	res.Signal = accepted
	endStage(metrics.StagePublish)
	if opts.Preview {
		res.Status = StatusPreview
		return res
	}

	if err := r.publish(ctx, accepted, res.EntryPrice); err != nil {
		res.Status, res.Error = StatusPublishFailed, err.Error()
		return res
	}
	endStage("")
	res.Status = StatusPublished
	return res
}

// publish pushes sig and then logs it. A failed push is never logged.
func (r *Runner) publish(ctx context.Context, sig *model.TradingSignal, entry float64) error {
	d := r.deps
	if d.Publisher == nil || d.Recorder == nil {
		return errors.New("publishing is not configured")
	}
	if err := d.Publisher.Publish(ctx, sig); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	d.Metrics.SignalsPublished.Inc()
	if err := d.Recorder.AppendDecision(sig, entry); err != nil {
		return fmt.Errorf("append decision %s: %w", sig.DecisionID, err)
	}
	d.Metrics.DecisionsLogged.Inc()
	return nil
}

func (r *Runner) finish(ctx context.Context, res Result) {
	r.deps.Metrics.CyclesTotal.WithLabelValues(string(res.Status)).Inc()
	attrs := append(logger.LogWithTrace(ctx),
		"symbol", res.Symbol, "status", res.Status, "candles", res.Candles)
	if res.Reason != "" {
		attrs = append(attrs, "reason", res.Reason)
	}
	if res.DecisionID != "" {
		attrs = append(attrs, "decision_id", res.DecisionID)
	}
	if res.Failed() {
		slog.Warn("cycle failed", append(attrs, "error", res.Error)...)
	} else {
		slog.Info("cycle complete", attrs...)
	}

	if r.deps.Notifier == nil {
		return
	}
	var alert notification.Alert
	switch {
	case res.Status == StatusPublished && res.Signal != nil:
		alert = notification.SignalAlert(res.Signal, res.EntryPrice)
	case res.Status == StatusPublishFailed:
		alert = notification.PublishFailedAlert(res.Symbol, res.DecisionID, res.Error)
	default:
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := r.deps.Notifier.Send(nctx, alert); err != nil {
		slog.Warn("alert delivery failed", append(logger.LogWithTrace(ctx), "error", err)...)
	}
}

// Loop runs a cycle immediately and then on every tick of interval until
// ctx is cancelled. Each cycle is bounded by interval. handle receives
// every result and may be nil.
func (r *Runner) Loop(ctx context.Context, interval time.Duration, opts Options, handle func(Result)) error {
	if interval <= 0 {
		return fmt.Errorf("pipeline: loop interval must be positive, got %s", interval)
	}
	run := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		res := r.RunCycle(cctx, opts)
		if handle != nil {
			handle(res)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := ctx.Err(); err != nil {
				return err
			}
			run()
		}
	}
}
