package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"backtest/services/engine"
)

var candleHeader = []string{
	"CloseTime", "OpenPrice", "HighPrice", "LowPrice", "ClosePrice", "Volume", "QuoteVolume",
}

// TableName is the conventional file name for a candle table of the given
// period.
func TableName(periods int) string {
	return fmt.Sprintf("btf_periods%d.csv", periods)
}

// Store is one CSV candle table on disk, appended incrementally. Rows are
// kept in ascending CloseTime order; merging is straight concatenation and
// relies on strictly increasing timestamps.
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the whole table. Files with a UTF-8 or UTF-16 BOM (e.g. saved
// from a spreadsheet) are handled transparently.
func (s *Store) Load() ([]Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open candle table: %w", err)
	}
	defer f.Close()

	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return readRows(transform.NewReader(f, dec))
}

func readRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candle table: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rows []Row
	for i, rec := range records[1:] {
		if len(rec) != len(candleHeader) {
			return nil, fmt.Errorf("row %d: want %d columns, got %d", i+1, len(candleHeader), len(rec))
		}
		closeTime, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d close time: %w", i+1, err)
		}
		vals := make([]float64, 6)
		for j := 0; j < 6; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, candleHeader[j+1], err)
			}
			vals[j] = v
		}
		rows = append(rows, Row{
			CloseTime: closeTime,
			Open:      vals[0], High: vals[1], Low: vals[2], Close: vals[3],
			Volume: vals[4], QuoteVolume: vals[5],
		})
	}
	return rows, nil
}

// Write replaces the table with the given rows.
func (s *Store) Write(rows []Row) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create candle table: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(candleHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		rec := []string{
			strconv.FormatInt(row.CloseTime, 10),
			strconv.FormatFloat(row.Open, 'f', -1, 64),
			strconv.FormatFloat(row.High, 'f', -1, 64),
			strconv.FormatFloat(row.Low, 'f', -1, 64),
			strconv.FormatFloat(row.Close, 'f', -1, 64),
			strconv.FormatFloat(row.Volume, 'f', -1, 64),
			strconv.FormatFloat(row.QuoteVolume, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Download back-fills the table with the most recent length candles of the
// given period. A table that already exists is left untouched.
func (s *Store) Download(ctx context.Context, c *Client, periods, length int) error {
	if s.Exists() {
		s.logger.Info("candle table already exists, skipping download",
			zap.String("path", s.path))
		return nil
	}

	before := time.Now()
	after := before.Add(-time.Duration(periods*length) * time.Second)
	rows, err := c.FetchRange(ctx, periods, after, before)
	if err != nil {
		return err
	}
	if err := s.Write(rows); err != nil {
		return err
	}

	s.logger.Info("candle table downloaded",
		zap.String("path", s.path),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// ErrEmptyStore is returned by Update when there is no table to extend.
var ErrEmptyStore = errors.New("marketdata: candle table is missing or empty")

// Update fetches only candles newer than the last stored CloseTime plus one
// period and appends them. Nothing new to fetch is a successful no-op; the
// count of appended rows is returned either way.
func (s *Store) Update(ctx context.Context, c *Client, periods int) (int, error) {
	if !s.Exists() {
		return 0, ErrEmptyStore
	}
	existing, err := s.Load()
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, ErrEmptyStore
	}

	last := existing[len(existing)-1].CloseTime
	after := time.Unix(last, 0).Add(time.Duration(periods) * time.Second)
	fresh, err := c.FetchRange(ctx, periods, after, time.Now())
	if err != nil {
		return 0, err
	}
	if len(fresh) == 0 {
		s.logger.Info("candle table already up to date", zap.String("path", s.path))
		return 0, nil
	}

	if err := s.Write(append(existing, fresh...)); err != nil {
		return 0, err
	}
	s.logger.Info("candle table extended",
		zap.String("path", s.path),
		zap.Int("rows", len(fresh)),
		zap.Int64("from", fresh[0].CloseTime),
		zap.Int64("to", fresh[len(fresh)-1].CloseTime),
	)
	return len(fresh), nil
}

// Ticks converts candle rows into engine bars, CloseTime interpreted as UTC.
func Ticks(rows []Row) []engine.Tick {
	ticks := make([]engine.Tick, len(rows))
	for i, r := range rows {
		ticks[i] = engine.Tick{
			Timestamp: time.Unix(r.CloseTime, 0).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return ticks
}
