// Package main runs a single backtest over a local CSV candle table and
// writes the equity curve out.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"backtest/services/arrowpipeline"
	"backtest/services/engine"
	"backtest/services/marketdata"
	"backtest/strategies"
)

func main() {
	csvPath := flag.String("csv", "./data/btf_periods900.csv", "Path to the candle table CSV")
	strategy := flag.String("strategy", "sma_cross", "Strategy: sma_cross or random_flip")
	cash := flag.Float64("cash", 1_000_000, "Initial cash")
	slippage := flag.Float64("slippage", 0.001, "Market order slippage rate")
	expiry := flag.Int("expiry-minutes", 60, "Minutes until an unexecuted order expires")
	priceTick := flag.Float64("price-tick", 1, "Price rounding step for fills")
	threshold := flag.Float64("threshold", 10_000, "Valuation below which a position counts as flat")
	fast := flag.Int("fast", 20, "Fast SMA period (sma_cross)")
	slow := flag.Int("slow", 50, "Slow SMA period (sma_cross)")
	fraction := flag.Float64("fraction", 0.5, "Cash fraction committed per entry")
	horizon := flag.Duration("horizon", 4*time.Hour, "Exit horizon per entry")
	seed := flag.Int64("seed", 1, "RNG seed (random_flip)")
	out := flag.String("out", "./snapshots.csv", "Equity curve CSV output path")
	arrowOut := flag.String("arrow-out", "", "Optional equity curve Arrow IPC output path")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	rows, err := marketdata.NewStore(*csvPath, logger).Load()
	if err != nil {
		log.Fatalf("load candle table: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("candle table %s is empty", *csvPath)
	}
	ticks := marketdata.Ticks(rows)

	sim := engine.NewSimulator(engine.NewTickSource(ticks), *cash, engine.Config{
		Slippage:        *slippage,
		MinutesToExpire: *expiry,
		PriceTick:       *priceTick,
	})

	var strat engine.Strategy
	switch *strategy {
	case "sma_cross":
		strat = strategies.NewSMACross(ticks, *fast, *slow, *fraction, *horizon)
	case "random_flip":
		strat = strategies.NewRandomFlip(ticks, *seed, *fraction, *horizon)
	default:
		log.Fatalf("unknown strategy %q", *strategy)
	}

	runner := engine.NewRunner(sim, strat, *threshold)
	if err := runner.Run(); err != nil {
		log.Fatalf("run backtest: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	if err := sim.Snapshots().WriteCSV(f); err != nil {
		f.Close()
		log.Fatalf("write equity curve: %v", err)
	}
	f.Close()

	if *arrowOut != "" {
		data, err := arrowpipeline.NewPipeline(logger).EncodeEquityCurve(sim.Snapshots().All())
		if err != nil {
			log.Fatalf("encode equity curve: %v", err)
		}
		if err := os.WriteFile(*arrowOut, data, 0o644); err != nil {
			log.Fatalf("write arrow output: %v", err)
		}
	}

	initial := *cash
	final := sim.State()
	executed := 0
	for _, o := range sim.ArchivedOrders() {
		if o.IsExecuted() {
			executed++
		}
	}
	fmt.Printf("=== Backtest Summary ===\n")
	fmt.Printf("Bars: %d\n", len(ticks))
	fmt.Printf("Orders: %d archived, %d executed\n", len(sim.ArchivedOrders()), executed)
	fmt.Printf("Final: cash=%.2f position=%.6f valuation=%.2f\n",
		final.Cash, final.Position, final.Valuation)
	fmt.Printf("Return: %.2f%%\n", (final.Valuation/initial-1)*100)
}
