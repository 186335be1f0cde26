package pipeline

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/marketdata/binance"
	"signal-bridge/internal/marketdata/synthetic"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/model"
	"signal-bridge/internal/notification"
	"signal-bridge/internal/risk"
	redisstore "signal-bridge/internal/store/redis"
	"signal-bridge/internal/store/sqlite"
	"signal-bridge/internal/strategy"
)

// Resources owns everything a wired Runner or consumer holds open.
type Resources struct {
	Source  model.CandleSource
	Cache   *sqlite.Writer // nil without SQLITE_PATH
	Redis   *goredis.Client
	Bus     *redisstore.SignalBus
	Ledger  *ledger.Ledger
	Metrics *metrics.Metrics
}

// Close releases the Redis client and the candle cache.
func (r *Resources) Close() error {
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	return errors.Join(errs...)
}

// NewSource builds the configured candle source, wrapped in the SQLite
// cache when SQLitePath is set.
func NewSource(cfg Config, m *metrics.Metrics) (model.CandleSource, *sqlite.Writer, error) {
	var upstream model.CandleSource
	switch cfg.CandleSource {
	case SourceBinance:
		src, err := binance.New(binance.Config{
			APIKey:    cfg.BinanceAPIKey,
			SecretKey: cfg.BinanceSecretKey,
			Interval:  cfg.Timeframe,
		})
		if err != nil {
			return nil, nil, err
		}
		upstream = src
	case SourceSynthetic, "":
		src := synthetic.New()
		src.Interval = cfg.Interval()
		upstream = src
	default:
		return nil, nil, &model.ValidationError{Field: "candle_source", Reason: fmt.Sprintf("unknown source %q", cfg.CandleSource)}
	}

	if cfg.SQLitePath == "" {
		return upstream, nil, nil
	}
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("candle cache dir: %w", err)
		}
	}
	w, err := sqlite.New(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, nil, err
	}
	cached := sqlite.NewCachedSource(upstream, w)
	if m != nil {
		cached.OnFallback = func(string, int) { m.CacheFallbacks.Inc() }
	}
	return cached, w, nil
}

// ConnectBus opens Redis and builds the signal bus with its circuit
// breaker reporting into m.
func ConnectBus(cfg Config, m *metrics.Metrics) (*goredis.Client, *redisstore.SignalBus, error) {
	client, err := redisstore.NewClientFromURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, &model.TransportError{Op: "connect redis", Err: err}
	}
	return client, NewBus(client, cfg, m), nil
}

// NewBus builds the signal bus on an existing client.
func NewBus(client *goredis.Client, cfg Config, m *metrics.Metrics) *redisstore.SignalBus {
	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		log.Printf("[redis] circuit breaker %s -> %s", from, to)
		if m == nil {
			return
		}
		m.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			m.RedisCircuitBreakerTrips.Inc()
		}
	}
	opts := redisstore.SignalBusOptions{Key: cfg.QueueKey, Breaker: cb}
	if m != nil {
		opts.OnFetched = func(*model.TradingSignal) { m.SignalsFetched.Inc() }
	}
	return redisstore.NewSignalBus(client, opts)
}

// Build wires a Runner from cfg. A preview runner opens no Redis
// connection and has no publisher.
func Build(cfg Config, m *metrics.Metrics, preview bool) (*Runner, *Resources, error) {
	if m == nil {
		m = metrics.NewMetrics(nil)
	}
	gate, err := risk.NewGate(cfg.Risk)
	if err != nil {
		return nil, nil, err
	}

	res := &Resources{Metrics: m, Ledger: ledger.New(cfg.LedgerDir)}
	res.Source, res.Cache, err = NewSource(cfg, m)
	if err != nil {
		return nil, nil, err
	}

	deps := Deps{
		Source:      res.Source,
		Generator:   strategy.NewBreakout().WithName(cfg.ModelName),
		Gate:        gate,
		Metrics:     m,
		Notifier:    notification.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertWebhookURL),
		Symbol:      cfg.Symbol,
		CandleLimit: cfg.CandleLimit,
	}
	if !preview {
		res.Redis, res.Bus, err = ConnectBus(cfg, m)
		if err != nil {
			res.Close()
			return nil, nil, err
		}
		deps.Publisher = res.Bus
		deps.Recorder = res.Ledger
	}

	runner, err := NewRunner(deps)
	if err != nil {
		res.Close()
		return nil, nil, err
	}
	return runner, res, nil
}
