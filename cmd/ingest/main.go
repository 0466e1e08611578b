// Package main loads a local CSV candle table into ClickHouse so the backtest
// service can serve it.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtest/services/clickhouse"
	"backtest/services/config"
	"backtest/services/marketdata"
)

func main() {
	csvPath := flag.String("csv", "./data/btf_periods900.csv", "Path to the candle table CSV")
	symbol := flag.String("symbol", "btcjpy", "Symbol to store the candles under")
	periods := flag.Int("periods", 900, "Seconds per candle")
	timeout := flag.Duration("timeout", 5*time.Minute, "Ingest timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	}, logger)
	if err != nil {
		log.Fatalf("open candle store: %v", err)
	}
	defer store.Close()

	// Skip rows the store already holds so re-runs only append the tail.
	last, err := store.LastCloseTime(ctx, *symbol, uint32(*periods))
	if err != nil {
		log.Fatalf("query last close time: %v", err)
	}

	var bars []clickhouse.Bar
	for _, r := range rows {
		if uint64(r.CloseTime) <= last {
			continue
		}
		bars = append(bars, clickhouse.Bar{
			Symbol:      *symbol,
			Period:      uint32(*periods),
			CloseTime:   uint64(r.CloseTime),
			Open:        decimal.NewFromFloat(r.Open),
			High:        decimal.NewFromFloat(r.High),
			Low:         decimal.NewFromFloat(r.Low),
			Close:       decimal.NewFromFloat(r.Close),
			Volume:      decimal.NewFromFloat(r.Volume),
			QuoteVolume: decimal.NewFromFloat(r.QuoteVolume),
		})
	}
	if len(bars) == 0 {
		logger.Info("store already holds the whole table",
			zap.String("symbol", *symbol),
			zap.Uint64("last_close_time", last),
		)
		return
	}

	if err := store.InsertBars(ctx, bars); err != nil {
		log.Fatalf("insert candles: %v", err)
	}
	logger.Info("ingest finished",
		zap.String("symbol", *symbol),
		zap.Int("rows", len(bars)),
		zap.Int("skipped", len(rows)-len(bars)),
	)
}
