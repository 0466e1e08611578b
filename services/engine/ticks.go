package engine

import (
	"errors"
	"time"
)

// ErrExhausted signals that the tick sequence has been fully replayed.
// It is the normal termination condition of a backtest, not a failure.
var ErrExhausted = errors.New("engine: tick source exhausted")

// Tick is a single OHLCV bar keyed by its close time.
type Tick struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// TickSource replays a materialized bar table forward-only, one tick per
// call. It is single-pass: once drained it keeps returning ErrExhausted.
// Bars must already be in ascending timestamp order with no duplicates.
type TickSource struct {
	ticks []Tick
	idx   int
}

func NewTickSource(ticks []Tick) *TickSource {
	return &TickSource{ticks: ticks}
}

// Next returns the next tick in sequence, or ErrExhausted when none remain.
func (s *TickSource) Next() (Tick, error) {
	if s.idx >= len(s.ticks) {
		return Tick{}, ErrExhausted
	}
	t := s.ticks[s.idx]
	s.idx++
	return t, nil
}

// Remaining reports how many ticks have not been replayed yet.
func (s *TickSource) Remaining() int {
	return len(s.ticks) - s.idx
}
