// Package main maintains local CSV candle tables: initial download plus
// incremental updates from the exchange's OHLC API.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"backtest/services/marketdata"
)

func main() {
	baseURL := flag.String("base-url", "https://api.cryptowat.ch/markets/bitflyer/btcjpy", "Market OHLC base URL")
	dataDir := flag.String("data-dir", "./data", "Directory for candle tables")
	periods := flag.Int("periods", 900, "Seconds per candle")
	length := flag.Int("length", 6000, "Candles to back-fill on first download")
	update := flag.Bool("update", false, "Append new candles to an existing table instead of downloading")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall fetch timeout")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	path := filepath.Join(*dataDir, marketdata.TableName(*periods))

	client := marketdata.NewClient(*baseURL, logger)
	store := marketdata.NewStore(path, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *update {
		n, err := store.Update(ctx, client, *periods)
		if errors.Is(err, marketdata.ErrEmptyStore) {
			log.Fatalf("no table at %s to update, run without -update first", path)
		}
		if err != nil {
			log.Fatalf("update candle table: %v", err)
		}
		logger.Info("update finished", zap.String("path", path), zap.Int("appended", n))
		return
	}

	if err := store.Download(ctx, client, *periods, *length); err != nil {
		log.Fatalf("download candle table: %v", err)
	}
}
