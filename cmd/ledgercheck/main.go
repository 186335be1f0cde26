package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"signal-bridge/internal/ledger"
	"signal-bridge/internal/logger"
	"signal-bridge/internal/model"
	"signal-bridge/internal/pipeline"
	"signal-bridge/internal/portfolio"
)

const usage = `usage: ledgercheck <command> [flags]

commands:
  validate   cross-check decision_log.csv against trade_results.csv
  enrich     infer closures for open decisions from the latest close
  stats      summarise closed trades in R multiples
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := pipeline.Load()
	if err != nil {
		log.Fatalf("[ledgercheck] config: %v", err)
	}
	logger.InitWriter(os.Stderr, "ledgercheck", logger.ParseLevel(cfg.LogLevel))

	switch os.Args[1] {
	case "validate":
		os.Exit(validate(cfg, os.Args[2:]))
	case "enrich":
		os.Exit(enrich(cfg, os.Args[2:]))
	case "stats":
		os.Exit(stats(cfg, os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func validate(cfg pipeline.Config, args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	dir := fs.String("dir", cfg.LedgerDir, "Ledger directory")
	fs.Parse(args)

	report, err := ledger.New(*dir).CheckIntegrity()
	if err != nil {
		log.Printf("[ledgercheck] %v", err)
		return 1
	}
	printJSON(report)
	if !report.Pass {
		return 1
	}
	return 0
}

func enrich(cfg pipeline.Config, args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	dir := fs.String("dir", cfg.LedgerDir, "Ledger directory")
	symbol := fs.String("symbol", cfg.Symbol, "Symbol whose open decisions are checked")
	price := fs.Float64("price", 0, "Close to evaluate against (0=fetch from the candle source)")
	fs.Parse(args)

	sym := model.NormalizeSymbol(*symbol)
	last := *price
	if last <= 0 {
		src, cache, err := pipeline.NewSource(cfg, nil)
		if err != nil {
			log.Printf("[ledgercheck] candle source: %v", err)
			return 1
		}
		if cache != nil {
			defer cache.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		candles, err := src.Candles(ctx, sym, 50)
		if err != nil {
			log.Printf("[ledgercheck] candles %s: %v", sym, err)
			return 1
		}
		last = model.Last(candles).Close
	}

	summary, err := ledger.NewReconciler(ledger.New(*dir)).Infer(sym, last, time.Now())
	if err != nil {
		log.Printf("[ledgercheck] %v", err)
		return 1
	}
	printJSON(struct {
		Symbol    string  `json:"symbol"`
		LastClose float64 `json:"last_close"`
		ledger.InferSummary
	}{sym, last, summary})
	return 0
}

func stats(cfg pipeline.Config, args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	dir := fs.String("dir", cfg.LedgerDir, "Ledger directory")
	fs.Parse(args)

	summary, err := portfolio.SummarizeLedger(ledger.New(*dir))
	if err != nil {
		log.Printf("[ledgercheck] %v", err)
		return 1
	}
	printJSON(summary)
	return 0
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("[ledgercheck] encode: %v", err)
	}
}
