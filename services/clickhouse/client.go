// Package clickhouse stores candle tables and backtest equity curves in
// ClickHouse. Candles live in a ReplacingMergeTree keyed by
// (symbol, period, close_time) so re-ingesting a range is idempotent.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"backtest/services/engine"
)

// Config addresses one ClickHouse endpoint.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

type Client struct {
	conn   clickhouse.Conn
	db     string
	logger *zap.Logger
}

// Open connects, pings and makes sure the schema exists.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	c := &Client{conn: conn, db: cfg.Database, logger: logger}
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) ensureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.db)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	candles := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.candles (
			symbol LowCardinality(String),
			period UInt32,
			close_time UInt64,
			open Decimal(38, 18),
			high Decimal(38, 18),
			low Decimal(38, 18),
			close Decimal(38, 18),
			volume Decimal(38, 18),
			quote_volume Decimal(38, 18),
			version UInt64,
			ingested_at DateTime64(3)
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, period, close_time)
		SETTINGS index_granularity = 8192
	`, c.db)
	if err := c.conn.Exec(ctx, candles); err != nil {
		return fmt.Errorf("create candles table: %w", err)
	}

	equity := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.equity_curves (
			run_id UUID,
			symbol LowCardinality(String),
			ts UInt64,
			cash Float64,
			position Float64,
			valuation Float64
		)
		ENGINE = MergeTree
		ORDER BY (run_id, ts)
	`, c.db)
	if err := c.conn.Exec(ctx, equity); err != nil {
		return fmt.Errorf("create equity table: %w", err)
	}
	return nil
}

// Bar is one stored candle. Prices are kept as decimals at the storage
// boundary and only narrowed to float64 when handed to the engine.
type Bar struct {
	Symbol      string
	Period      uint32
	CloseTime   uint64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
}

// InsertBars batch-inserts candles. One version stamp covers the whole
// batch; the ReplacingMergeTree keeps the newest row per key.
func (c *Client) InsertBars(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.candles SETTINGS insert_deduplicate=1", c.db))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range bars {
		if err := batch.Append(
			b.Symbol, b.Period, b.CloseTime,
			b.Open, b.High, b.Low, b.Close, b.Volume, b.QuoteVolume,
			ver, now,
		); err != nil {
			return fmt.Errorf("append bar: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	c.logger.Info("candles inserted",
		zap.String("symbol", bars[0].Symbol),
		zap.Int("rows", len(bars)),
	)
	return nil
}

// LastCloseTime returns the newest stored close time for a symbol/period,
// zero when nothing is stored yet.
func (c *Client) LastCloseTime(ctx context.Context, symbol string, period uint32) (uint64, error) {
	var last uint64
	q := fmt.Sprintf("SELECT max(close_time) FROM %s.candles FINAL WHERE symbol = ? AND period = ?", c.db)
	if err := c.conn.QueryRow(ctx, q, symbol, period).Scan(&last); err != nil {
		return 0, fmt.Errorf("query last close time: %w", err)
	}
	return last, nil
}

// QueryBars loads candles for [from, to] in ascending close-time order.
func (c *Client) QueryBars(ctx context.Context, symbol string, period uint32, from, to uint64) ([]Bar, error) {
	q := fmt.Sprintf(`
		SELECT symbol, period, close_time, open, high, low, close, volume, quote_volume
		FROM %s.candles FINAL
		WHERE symbol = ? AND period = ? AND close_time BETWEEN ? AND ?
		ORDER BY close_time
	`, c.db)
	rows, err := c.conn.Query(ctx, q, symbol, period, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []Bar
	for rows.Next() {
		var b Bar
		if err := rows.Scan(
			&b.Symbol, &b.Period, &b.CloseTime,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.QuoteVolume,
		); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Ticks narrows stored bars to engine bars, CloseTime interpreted as UTC.
func Ticks(bars []Bar) []engine.Tick {
	ticks := make([]engine.Tick, len(bars))
	for i, b := range bars {
		ticks[i] = engine.Tick{
			Timestamp: time.Unix(int64(b.CloseTime), 0).UTC(),
			Open:      b.Open.InexactFloat64(),
			High:      b.High.InexactFloat64(),
			Low:       b.Low.InexactFloat64(),
			Close:     b.Close.InexactFloat64(),
			Volume:    b.Volume.InexactFloat64(),
		}
	}
	return ticks
}

// InsertEquityCurve persists one run's snapshot sequence under its run id.
func (c *Client) InsertEquityCurve(ctx context.Context, runID uuid.UUID, symbol string, snaps []engine.Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.equity_curves", c.db))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, s := range snaps {
		if err := batch.Append(runID, symbol, uint64(s.Timestamp.Unix()), s.Cash, s.Position, s.Valuation); err != nil {
			return fmt.Errorf("append snapshot: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	c.logger.Info("equity curve stored",
		zap.String("run_id", runID.String()),
		zap.Int("points", len(snaps)),
	)
	return nil
}

// QueryEquityCurve reloads a stored run in timestamp order.
func (c *Client) QueryEquityCurve(ctx context.Context, runID uuid.UUID) ([]engine.Snapshot, error) {
	q := fmt.Sprintf(`
		SELECT ts, cash, position, valuation
		FROM %s.equity_curves
		WHERE run_id = ?
		ORDER BY ts
	`, c.db)
	rows, err := c.conn.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity curve: %w", err)
	}
	defer rows.Close()

	var snaps []engine.Snapshot
	for rows.Next() {
		var ts uint64
		var s engine.Snapshot
		if err := rows.Scan(&ts, &s.Cash, &s.Position, &s.Valuation); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		s.Timestamp = time.Unix(int64(ts), 0).UTC()
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
