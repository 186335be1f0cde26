// Package execution is the consumer side of the signal bus: it turns queued
// signals into execution plans and, for paper trading, simulates the
// position through to its stop or first target.
//
// v1 execution exits the whole position at tp1. tp2 is carried on the plan
// but never acted upon.
package execution

import (
	"time"

	"signal-bridge/internal/model"
)

// Exit reasons reported by Plan.ExitReason and the paper executor.
const (
	ExitTP1Hit  = "tp1_hit"
	ExitStopHit = "stop_hit"
)

// Action is a fill direction on a position's lifecycle.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// Fill represents a simulated fill.
type Fill struct {
	OrderID    string     `json:"order_id"`
	DecisionID string     `json:"decision_id"`
	Symbol     string     `json:"symbol"`
	Side       model.Side `json:"side"`
	Action     Action     `json:"action"`
	Price      float64    `json:"price"`
	Slippage   float64    `json:"slippage"`
	Reason     string     `json:"reason"`
	FilledAt   time.Time  `json:"filled_at"`
}

// Executor opens positions from plans and advances them with market data.
type Executor interface {
	Open(plan *Plan, rate float64, at time.Time) (*Position, error)
	OnCandle(symbol string, c model.Candle) ([]Closed, error)
}
