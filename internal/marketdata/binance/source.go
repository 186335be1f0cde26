// Package binance provides a CandleSource backed by the Binance spot REST
// klines endpoint.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"signal-bridge/internal/model"
)

// DefaultInterval is the kline interval requested when none is configured.
const DefaultInterval = "5m"

// maxLimit is the largest page the klines endpoint serves.
const maxLimit = 1000

// KlineFetcher is the subset of the exchange client the source needs.
type KlineFetcher interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*gobinance.Kline, error)
}

type clientFetcher struct {
	client *gobinance.Client
}

func (f clientFetcher) Klines(ctx context.Context, symbol, interval string, limit int) ([]*gobinance.Kline, error) {
	return f.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
}

// Source fetches closed-or-forming klines and converts them to candles.
type Source struct {
	fetcher  KlineFetcher
	interval string
	step     time.Duration
}

// Config holds the Binance source settings. Keys may be empty: klines are
// public market data.
type Config struct {
	APIKey    string
	SecretKey string
	Interval  string
}

// New creates a Source using the go-binance REST client.
func New(cfg Config) (*Source, error) {
	client := gobinance.NewClient(cfg.APIKey, cfg.SecretKey)
	return NewWithFetcher(clientFetcher{client: client}, cfg.Interval)
}

// NewWithFetcher creates a Source around an arbitrary KlineFetcher.
func NewWithFetcher(f KlineFetcher, interval string) (*Source, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	step, err := ParseInterval(interval)
	if err != nil {
		return nil, err
	}
	return &Source{fetcher: f, interval: interval, step: step}, nil
}

// Candles returns up to limit ascending candles for symbol.
func (s *Source) Candles(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	if limit <= 0 {
		return nil, &model.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", limit)}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	pair := ExchangeSymbol(symbol)

	start := time.Now()
	klines, err := s.fetcher.Klines(ctx, pair, s.interval, limit)
	if err != nil {
		return nil, &model.TransportError{Op: "binance klines " + pair, Err: err}
	}
	slog.Debug("klines fetched", "symbol", pair, "interval", s.interval, "count", len(klines), "latency", time.Since(start))

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := model.ValidateSeries(candles, s.step); err != nil {
		return nil, err
	}
	return candles, nil
}

// ExchangeSymbol maps "BTC/USDT" to Binance's "BTCUSDT".
func ExchangeSymbol(symbol string) string {
	s := model.NormalizeSymbol(symbol)
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, "-", "")
}

// ParseInterval converts a kline interval such as "5m", "1h" or "1d" to a
// duration.
func ParseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, &model.ValidationError{Field: "interval", Reason: fmt.Sprintf("unrecognized %q", interval)}
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, &model.ValidationError{Field: "interval", Reason: fmt.Sprintf("unrecognized %q", interval)}
	}
	var unit time.Duration
	switch interval[len(interval)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, &model.ValidationError{Field: "interval", Reason: fmt.Sprintf("unrecognized %q", interval)}
	}
	return time.Duration(n) * unit, nil
}

func toCandle(k *gobinance.Kline) (model.Candle, error) {
	c := model.Candle{TS: k.OpenTime}
	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return model.Candle{}, &model.MalformedCandleError{TS: k.OpenTime, Reason: fmt.Sprintf("%s %q: %v", f.name, f.raw, err)}
		}
		*f.dst = v
	}
	return c, nil
}
