package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-bridge/internal/execution"
	"signal-bridge/internal/ledger"
	"signal-bridge/internal/logger"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/model"
	"signal-bridge/internal/notification"
	"signal-bridge/internal/pipeline"
	"signal-bridge/internal/portfolio"
	"signal-bridge/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	pair := flag.String("pair", "", "Trading pair to consume (default: DEFAULT_SYMBOL)")
	maxAge := flag.Duration("max-age", 0, "Ignore signals older than this (default: SIGNAL_MAX_AGE_SEC)")
	once := flag.Bool("once", false, "Poll a single time and exit")
	poll := flag.Duration("poll", 5*time.Second, "Poll interval")
	paper := flag.Bool("paper", false, "Paper-execute claimed signals against the candle source")
	slippage := flag.Float64("slippage-bps", 5, "Paper entry slippage in basis points")
	journalPath := flag.String("journal", "", "SQLite file for paper fills (empty=off)")
	flag.Parse()

	cfg, err := pipeline.Load()
	if err != nil {
		log.Fatalf("[consumer] config: %v", err)
	}
	logger.InitWriter(os.Stderr, "consumer", logger.ParseLevel(cfg.LogLevel))

	symbol := model.NormalizeSymbol(*pair)
	if symbol == "" {
		symbol = cfg.Symbol
	}
	age := *maxAge
	if age <= 0 {
		age = cfg.SignalMaxAge
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	client, bus, err := pipeline.ConnectBus(cfg, m)
	if err != nil {
		log.Fatalf("[consumer] %v", err)
	}
	defer client.Close()
	bridge := execution.NewBridge(bus, age)

	var (
		src   model.CandleSource
		cache *sqlite.Writer
		exec  *execution.PaperExecutor
		feeds = newCandleFeed()
	)
	if *paper {
		src, cache, err = pipeline.NewSource(cfg, m)
		if err != nil {
			log.Fatalf("[consumer] candle source: %v", err)
		}
		if cache != nil {
			defer cache.Close()
		}
		exec = execution.NewPaperExecutor(resultCounter{ledger.New(cfg.LedgerDir), m}, *slippage)
		if *journalPath != "" {
			j, err := execution.NewJournal(*journalPath)
			if err != nil {
				log.Fatalf("[consumer] journal: %v", err)
			}
			defer j.Close()
			exec.WithJournal(j)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		health := metrics.NewHealthStatus()
		health.SetRedisConnected(true)
		srv := metrics.NewServer(cfg.MetricsAddr, reg, health)
		srv.Start()
		defer srv.Stop(context.Background())
		var db *sql.DB
		if cache != nil {
			db = cache.DB()
		}
		health.StartLivenessChecker(ctx, client, db, 15*time.Second)
	}

	notifier := notification.FromConfig(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AlertWebhookURL)
	session := portfolio.NewTracker()
	enc := json.NewEncoder(os.Stdout)
	c := &consumer{
		symbol: symbol,
		bridge: bridge,
		src:    src,
		exec:   exec,
		feeds:  feeds,
		emitPlan: func(plan *execution.Plan) {
			if err := enc.Encode(plan); err != nil {
				log.Printf("[consumer] encode plan: %v", err)
			}
		},
		onClosed: func(ctx context.Context, cl execution.Closed) {
			if err := enc.Encode(cl); err != nil {
				log.Printf("[consumer] encode result: %v", err)
			}
			session.Record(symbol, cl.Result)
			st := session.Summary().Stats
			log.Printf("[consumer] session: %d trades, win rate %.2f, total %.2fR, max drawdown %.2fR",
				st.Trades, st.WinRate, st.TotalR, st.MaxDrawdown)
			if notifier != nil {
				if err := notifier.Send(ctx, notification.TradeAlert(symbol, cl.Result)); err != nil {
					log.Printf("[consumer] alert: %v", err)
				}
			}
		},
	}
	step := func() {
		pctx, pcancel := context.WithTimeout(ctx, 30*time.Second)
		defer pcancel()
		c.step(pctx)
	}

	log.Printf("[consumer] polling %s every %s (max age %s, paper=%v)", symbol, *poll, age, *paper)
	step()
	if *once {
		return
	}
	ticker := time.NewTicker(*poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[consumer] shutting down, %d open paper positions", openCount(exec))
			return
		case <-ticker.C:
			step()
		}
	}
}

func openCount(exec *execution.PaperExecutor) int {
	if exec == nil {
		return 0
	}
	return len(exec.OpenPositions())
}
