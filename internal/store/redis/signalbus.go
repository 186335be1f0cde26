package redis

import (
	"context"
	"log"
	"strings"
	"time"

	"signal-bridge/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// DefaultQueueKey is the Redis list holding pending signals, newest first.
	DefaultQueueKey = "signals"

	// DefaultMaxAge is the freshness window applied by FetchLatest when the
	// caller passes a non-positive maxAge.
	DefaultMaxAge = 600 * time.Second
)

// SignalBusOptions configures a SignalBus. Zero values take defaults.
type SignalBusOptions struct {
	Key     string
	Breaker *CircuitBreaker
	Now     func() time.Time

	// Callbacks (optional)
	OnPublished func(sig *model.TradingSignal)
	OnFetched   func(sig *model.TradingSignal)
}

// SignalBus hands signals from the cycle driver to strategy consumers over
// a Redis list. Producers LPUSH; consumers scan with LRANGE and claim a
// match with LREM count=1, so any given entry is returned to at most one
// caller no matter how many consumers poll concurrently.
type SignalBus struct {
	client *goredis.Client
	key    string
	cb     *CircuitBreaker
	now    func() time.Time
	opts   SignalBusOptions
}

// NewSignalBus creates a SignalBus on client.
func NewSignalBus(client *goredis.Client, opts SignalBusOptions) *SignalBus {
	b := &SignalBus{client: client, key: opts.Key, cb: opts.Breaker, now: opts.Now, opts: opts}
	if b.key == "" {
		b.key = DefaultQueueKey
	}
	if b.cb == nil {
		b.cb = NewCircuitBreaker(5, 10*time.Second)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Key returns the queue key.
func (b *SignalBus) Key() string { return b.key }

// Breaker returns the circuit breaker guarding queue calls.
func (b *SignalBus) Breaker() *CircuitBreaker { return b.cb }

// Publish appends sig to the front of the queue.
func (b *SignalBus) Publish(ctx context.Context, sig *model.TradingSignal) error {
	payload, err := sig.Encode()
	if err != nil {
		return &model.TransportError{Op: "publish encode", Err: err}
	}
	err = b.cb.Execute(func() error {
		return b.client.LPush(ctx, b.key, payload).Err()
	})
	if err != nil {
		return &model.TransportError{Op: "publish", Err: err}
	}
	log.Printf("[signalbus] published %s %s %s", sig.DecisionID, sig.Symbol, sig.Side)
	if b.opts.OnPublished != nil {
		b.opts.OnPublished(sig)
	}
	return nil
}

// FetchLatest removes and returns the newest signal for symbol whose
// timestamp is within maxAge of now. Returns nil, nil when nothing matches.
//
// Entries for other symbols, stale entries and entries that fail to decode
// or validate are skipped and left in the queue.
func (b *SignalBus) FetchLatest(ctx context.Context, symbol string, maxAge time.Duration) (*model.TradingSignal, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	want := model.NormalizeSymbol(symbol)

	var entries []string
	err := b.cb.Execute(func() error {
		var err error
		entries, err = b.client.LRange(ctx, b.key, 0, -1).Result()
		if err == goredis.Nil {
			err = nil
		}
		return err
	})
	if err != nil {
		return nil, &model.TransportError{Op: "fetch scan", Err: err}
	}

	now := b.now()
	for _, raw := range entries {
		sig, err := model.DecodeSignal([]byte(raw))
		if err != nil {
			log.Printf("[signalbus] skipping undecodable entry: %v", err)
			continue
		}
		if !strings.EqualFold(sig.Symbol, want) {
			continue
		}
		if now.Sub(sig.Timestamp) > maxAge {
			continue
		}

		var removed int64
		err = b.cb.Execute(func() error {
			var err error
			removed, err = b.client.LRem(ctx, b.key, 1, raw).Result()
			return err
		})
		if err != nil {
			return nil, &model.TransportError{Op: "fetch claim", Err: err}
		}
		if removed == 0 {
			// Another consumer claimed it between LRANGE and LREM.
			continue
		}
		if b.opts.OnFetched != nil {
			b.opts.OnFetched(sig)
		}
		return sig, nil
	}
	return nil, nil
}

// Len returns the current queue length.
func (b *SignalBus) Len(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, &model.TransportError{Op: "queue length", Err: err}
	}
	return n, nil
}
