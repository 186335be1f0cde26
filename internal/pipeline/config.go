package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"signal-bridge/internal/marketdata/binance"
	"signal-bridge/internal/model"
	"signal-bridge/internal/risk"
	"signal-bridge/internal/strategy"
)

// Candle source kinds accepted in CANDLE_SOURCE.
const (
	SourceSynthetic = "synthetic"
	SourceBinance   = "binance"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Infrastructure
	RedisURL    string `json:"redis_url" validate:"required"`
	QueueKey    string `json:"queue_key" validate:"required"`
	SQLitePath  string `json:"sqlite_path"`
	LedgerDir   string `json:"ledger_dir" validate:"required"`
	MetricsAddr string `json:"metrics_addr"`
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn warning error"`

	// Market data
	Symbol       string `json:"symbol" validate:"required"`
	Timeframe    string `json:"timeframe" validate:"required"`
	CandleSource string `json:"candle_source" validate:"oneof=synthetic binance"`
	CandleLimit  int    `json:"candle_limit" validate:"gte=22,lte=1000"`

	// Binance keys are optional: klines are public.
	BinanceAPIKey    string `json:"-"`
	BinanceSecretKey string `json:"-"`

	// Alerts (optional)
	TelegramBotToken string `json:"-"`
	TelegramChatID   string `json:"-"`
	AlertWebhookURL  string `json:"alert_webhook_url" validate:"omitempty,url"`

	// Strategy
	ModelName    string        `json:"model_name" validate:"required"`
	SignalMaxAge time.Duration `json:"signal_max_age" validate:"gt=0"`

	Risk risk.Config `json:"risk"`
}

// DefaultConfig returns the configuration used when no env var is set.
func DefaultConfig() Config {
	return Config{
		RedisURL:     "redis://localhost:6379/0",
		QueueKey:     "signals",
		LedgerDir:    "decision_logs",
		LogLevel:     "info",
		Symbol:       "BTC/USDT",
		Timeframe:    binance.DefaultInterval,
		CandleSource: SourceSynthetic,
		CandleLimit:  250,
		ModelName:    "breakout-v1",
		SignalMaxAge: 600 * time.Second,
		Risk:         risk.DefaultConfig(),
	}
}

// Load reads .env (when present) and then the process environment.
func Load() (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		log.Printf("[config] loaded %s", path)
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

// FromEnv builds a Config from environment variables over DefaultConfig.
func FromEnv() (Config, error) {
	c := DefaultConfig()
	p := envParser{}

	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.QueueKey = getEnv("SIGNAL_QUEUE_KEY", c.QueueKey)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.LedgerDir = getEnv("LEDGER_DIR", c.LedgerDir)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	c.Symbol = model.NormalizeSymbol(getEnv("DEFAULT_SYMBOL", c.Symbol))
	c.Timeframe = getEnv("TIMEFRAME", c.Timeframe)
	c.CandleSource = strings.ToLower(getEnv("CANDLE_SOURCE", c.CandleSource))
	c.CandleLimit = p.getInt("CANDLE_LIMIT", c.CandleLimit)
	c.BinanceAPIKey = getEnv("BINANCE_API_KEY", "")
	c.BinanceSecretKey = getEnv("BINANCE_SECRET_KEY", "")

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	c.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")
	c.AlertWebhookURL = getEnv("ALERT_WEBHOOK_URL", "")

	c.ModelName = getEnv("MODEL_NAME", c.ModelName)
	c.SignalMaxAge = time.Duration(p.getInt("SIGNAL_MAX_AGE_SEC", int(c.SignalMaxAge/time.Second))) * time.Second

	c.Risk.MaxCapitalPct = p.getFloat("MAX_CAPITAL_PCT", c.Risk.MaxCapitalPct)
	c.Risk.MinATRMultiple = p.getFloat("RISK_MIN_ATR_MULTIPLE", c.Risk.MinATRMultiple)
	c.Risk.MaxATRMultiple = p.getFloat("RISK_MAX_ATR_MULTIPLE", c.Risk.MaxATRMultiple)
	c.Risk.MinRR = p.getFloat("RISK_MIN_RR", c.Risk.MinRR)
	c.Risk.ATRPeriod = p.getInt("RISK_ATR_PERIOD", c.Risk.ATRPeriod)

	if p.err != nil {
		return Config{}, p.err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges, the timeframe syntax, that the candle
// window covers the gate's ATR period, and the risk thresholds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := fmt.Sprintf("%v fails %s", fe.Value(), fe.Tag())
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			return &model.ValidationError{Field: strings.TrimPrefix(fe.Namespace(), "Config."), Reason: reason}
		}
		return err
	}
	if _, err := binance.ParseInterval(c.Timeframe); err != nil {
		return &model.ValidationError{Field: "timeframe", Reason: err.Error()}
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if need := max(c.Risk.ATRPeriod+1, strategy.MinCandles()); c.CandleLimit < need {
		return &model.ValidationError{Field: "candle_limit", Reason: fmt.Sprintf("must be at least %d for atr_period=%d", need, c.Risk.ATRPeriod)}
	}
	return nil
}

// Interval returns the parsed Timeframe.
func (c Config) Interval() time.Duration {
	d, err := binance.ParseInterval(c.Timeframe)
	if err != nil {
		return model.DefaultInterval
	}
	return d
}

// envParser collects the first numeric parse failure.
type envParser struct {
	err error
}

func (p *envParser) getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.err = &model.ValidationError{Field: key, Reason: fmt.Sprintf("not an integer: %q", v)}
		return fallback
	}
	return n
}

func (p *envParser) getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.err = &model.ValidationError{Field: key, Reason: fmt.Sprintf("not a number: %q", v)}
		return fallback
	}
	return f
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
