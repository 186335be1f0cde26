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

	"signal-bridge/internal/logger"
	"signal-bridge/internal/metrics"
	"signal-bridge/internal/pipeline"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "", "Symbol to evaluate (default: DEFAULT_SYMBOL)")
	preview := flag.Bool("preview", false, "Compute the signal without publishing or logging it")
	loop := flag.Duration("loop", 0, "Run a cycle every interval until interrupted (0=single cycle)")
	timeout := flag.Duration("timeout", 60*time.Second, "Deadline for a single cycle")
	flag.Parse()

	cfg, err := pipeline.Load()
	if err != nil {
		log.Fatalf("[cycle] config: %v", err)
	}
	logger.InitWriter(os.Stderr, "cycle", logger.ParseLevel(cfg.LogLevel))

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	runner, res, err := pipeline.Build(cfg, m, *preview)
	if err != nil {
		log.Fatalf("[cycle] init failed: %v", err)
	}
	defer res.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	health := metrics.NewHealthStatus()
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, reg, health)
		srv.Start()
		defer srv.Stop(context.Background())
		if res.Redis != nil {
			health.SetRedisConnected(true)
		}
		var db *sql.DB
		if res.Cache != nil {
			db = res.Cache.DB()
		}
		health.StartLivenessChecker(ctx, res.Redis, db, 15*time.Second)
	}

	enc := json.NewEncoder(os.Stdout)
	emit := func(r pipeline.Result) {
		health.SetCycle(string(r.Status), time.Now())
		if err := enc.Encode(r); err != nil {
			log.Printf("[cycle] encode result: %v", err)
		}
	}
	opts := pipeline.Options{Symbol: *symbol, Preview: *preview}

	if *loop > 0 {
		log.Printf("[cycle] running every %s for %s", *loop, cfg.Symbol)
		if err := runner.Loop(ctx, *loop, opts, emit); err != nil && ctx.Err() == nil {
			log.Fatalf("[cycle] loop: %v", err)
		}
		return
	}

	cctx, ccancel := context.WithTimeout(ctx, *timeout)
	result := runner.RunCycle(cctx, opts)
	ccancel()
	emit(result)
	if result.Failed() {
		res.Close()
		os.Exit(1)
	}
}
