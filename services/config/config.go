// Package config loads service configuration from the environment with
// sensible local-development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config covers every service: storage, data fetching and the engine
// defaults used when a request does not override them.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	MarketBaseURL string
	DataDir       string

	InitialCash     float64
	Slippage        float64
	MinutesToExpire int
	PriceTick       float64
	FlatThreshold   float64
}

func mustEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envFloat(k string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return v, nil
}

func envInt(k string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", k, err)
	}
	return v, nil
}

// Load reads the environment. Unset variables fall back to defaults that
// work against a local docker-compose stack.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: mustEnv("HTTP_ADDR", ":8080"),
		GRPCAddr: mustEnv("GRPC_ADDR", ":9090"),

		ClickHouseAddr:     mustEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: mustEnv("CH_DATABASE", "backtest"),
		ClickHouseUser:     mustEnv("CH_USER", "backtest"),
		ClickHousePassword: mustEnv("CH_PASSWORD", "backtest123"),

		MarketBaseURL: mustEnv("MARKET_BASE_URL", "https://api.cryptowat.ch/markets/bitflyer/btcjpy"),
		DataDir:       mustEnv("DATA_DIR", "./data"),
	}

	var err error
	if cfg.InitialCash, err = envFloat("INITIAL_CASH", 1_000_000); err != nil {
		return Config{}, err
	}
	if cfg.Slippage, err = envFloat("SLIPPAGE", 0.001); err != nil {
		return Config{}, err
	}
	if cfg.MinutesToExpire, err = envInt("MINUTES_TO_EXPIRE", 60); err != nil {
		return Config{}, err
	}
	if cfg.PriceTick, err = envFloat("PRICE_TICK", 1); err != nil {
		return Config{}, err
	}
	if cfg.FlatThreshold, err = envFloat("FLAT_THRESHOLD", 10_000); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
