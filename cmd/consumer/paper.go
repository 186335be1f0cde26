package main

import (
	"context"
	"log"
	"time"

	"signal-bridge/internal/execution"
	"signal-bridge/internal/ledger"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/model"
)

// resultCounter appends trade results to the ledger and counts them.
type resultCounter struct {
	l *ledger.Ledger
	m *metrics.Metrics
}

func (r resultCounter) AppendTradeResult(res ledger.TradeResult) error {
	if err := r.l.AppendTradeResult(res); err != nil {
		return err
	}
	r.m.TradesClosed.WithLabelValues(res.ExitReason).Inc()
	return nil
}

// candleFeed remembers the newest candle already handed to the executor
// per symbol so each bar is evaluated once.
type candleFeed struct {
	last map[string]int64
}

func newCandleFeed() *candleFeed {
	return &candleFeed{last: make(map[string]int64)}
}

func (f *candleFeed) seen(symbol string, ts int64) {
	if ts > f.last[symbol] {
		f.last[symbol] = ts
	}
}

// rewind marks ts and everything after it as unseen.
func (f *candleFeed) rewind(symbol string, ts int64) {
	if prev, ok := f.last[symbol]; ok && ts <= prev {
		f.last[symbol] = ts - 1
	}
}

// fresh returns the candles newer than the last one seen. The first call
// for a symbol only records the position.
func (f *candleFeed) fresh(symbol string, candles []model.Candle) []model.Candle {
	if len(candles) == 0 {
		return nil
	}
	prev, ok := f.last[symbol]
	f.seen(symbol, model.Last(candles).TS)
	if !ok {
		return nil
	}
	var out []model.Candle
	for _, c := range candles {
		if c.TS > prev {
			out = append(out, c)
		}
	}
	return out
}

type planPoller interface {
	Poll(ctx context.Context, pair string) (*execution.Plan, error)
}

// consumer is the state carried between polls. Without an executor it
// only claims and emits plans.
type consumer struct {
	symbol string
	bridge planPoller
	src    model.CandleSource
	exec   *execution.PaperExecutor
	feeds  *candleFeed

	// pending is a claimed plan that could not be opened yet. It has
	// already left the queue, so it is retried here instead.
	pending *execution.Plan

	emitPlan func(*execution.Plan)
	onClosed func(context.Context, execution.Closed)
}

// step runs one poll. In paper mode candles are fetched before anything is
// claimed, new bars are applied to open positions, and only then is a
// claimed plan opened at the latest close.
func (c *consumer) step(ctx context.Context) {
	if c.exec == nil {
		if plan := c.poll(ctx); plan != nil {
			c.emitPlan(plan)
		}
		return
	}

	candles, err := c.src.Candles(ctx, c.symbol, 50)
	if err != nil {
		log.Printf("[consumer] candles %s: %v", c.symbol, err)
		return
	}
	for _, bar := range c.feeds.fresh(c.symbol, candles) {
		closed, err := c.exec.OnCandle(c.symbol, bar)
		for _, cl := range closed {
			c.onClosed(ctx, cl)
		}
		if err != nil {
			// Replay from this bar for the positions that stayed open.
			log.Printf("[consumer] paper result: %v", err)
			c.feeds.rewind(c.symbol, bar.TS)
			break
		}
	}

	if c.pending == nil {
		if plan := c.poll(ctx); plan != nil {
			c.emitPlan(plan)
			c.pending = plan
		}
	}
	if c.pending == nil || len(candles) == 0 {
		return
	}
	last := model.Last(candles)
	if _, err := c.exec.Open(c.pending, last.Close, time.Now().UTC()); err != nil {
		log.Printf("[consumer] paper open %s: %v", c.pending.DecisionID, err)
	}
	c.pending = nil
}

func (c *consumer) poll(ctx context.Context) *execution.Plan {
	plan, err := c.bridge.Poll(ctx, c.symbol)
	if err != nil {
		log.Printf("[consumer] poll %s: %v", c.symbol, err)
		return nil
	}
	return plan
}
