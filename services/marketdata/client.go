// Package marketdata fetches OHLC candles from the exchange's REST API and
// maintains incrementally-updated CSV candle tables on disk.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// MaxRowsPerCall is the hard cap the OHLC endpoint places on a single
// response; asking for more still returns at most this many rows.
const MaxRowsPerCall = 6000

// Row is one candle as served by the API:
// [unix_time, open, high, low, close, volume, quote_volume].
// CloseTime is the bar's close in Unix seconds.
type Row struct {
	CloseTime   int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
}

// Client talks to a market's OHLC endpoint. baseURL addresses one market,
// e.g. https://api.cryptowat.ch/markets/bitflyer/btcjpy.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// GetOHLC fetches candles of the given period (seconds per bar) bounded by
// before/after, one API call, at most MaxRowsPerCall rows. A response that
// lacks the expected result key is an error surfaced to the caller, never
// swallowed.
func (c *Client) GetOHLC(ctx context.Context, periods int, after, before time.Time) ([]Row, error) {
	url := fmt.Sprintf("%s/ohlc?periods=%d&before=%d&after=%d",
		c.baseURL, periods, before.Unix(), after.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ohlc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ohlc endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Result map[string][][]json.Number `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ohlc response: %w", err)
	}

	raw, ok := payload.Result[strconv.Itoa(periods)]
	if !ok {
		return nil, fmt.Errorf("ohlc response missing result for periods=%d", periods)
	}

	rows := make([]Row, 0, len(raw))
	for i, rec := range raw {
		row, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("ohlc row %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	c.logger.Debug("fetched ohlc rows",
		zap.Int("periods", periods),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// FetchRange pulls all candles in [after, before), paging forward through
// the MaxRowsPerCall cap. Rows come back in ascending CloseTime order.
func (c *Client) FetchRange(ctx context.Context, periods int, after, before time.Time) ([]Row, error) {
	page := time.Duration(periods*MaxRowsPerCall) * time.Second

	var all []Row
	for cur := after; cur.Before(before); {
		end := cur.Add(page)
		if end.After(before) {
			end = before
		}
		rows, err := c.GetOHLC(ctx, periods, cur, end)
		if err != nil {
			return nil, err
		}
		// Pages are half-open on the upper bound server-side; drop overlap
		// with what we already hold.
		for _, r := range rows {
			if len(all) > 0 && r.CloseTime <= all[len(all)-1].CloseTime {
				continue
			}
			all = append(all, r)
		}
		cur = end
	}
	return all, nil
}

func parseRow(rec []json.Number) (Row, error) {
	if len(rec) < 7 {
		return Row{}, fmt.Errorf("want 7 fields, got %d", len(rec))
	}
	closeTime, err := rec[0].Int64()
	if err != nil {
		return Row{}, fmt.Errorf("close time: %w", err)
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := rec[i+1].Float64()
		if err != nil {
			return Row{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return Row{
		CloseTime:   closeTime,
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
		QuoteVolume: vals[5],
	}, nil
}
