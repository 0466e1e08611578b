// Package strategies holds concrete implementations of the engine's
// Strategy capability. Strategies precompute their indicators from the same
// bar table the simulator replays and look bars up by snapshot timestamp, so
// they can never see data ahead of the current tick.
package strategies

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"backtest/services/engine"
	"backtest/services/features"
)

// SMACross goes long when the fast moving average crosses above the slow
// one, holding the position for a fixed horizon. Position size is a fixed
// fraction of available cash at the signal bar's close.
type SMACross struct {
	FastPeriod   int
	SlowPeriod   int
	CashFraction decimal.Decimal
	Horizon      time.Duration

	ticks []engine.Tick
	fast  []float64
	slow  []float64
	idx   int
}

func NewSMACross(ticks []engine.Tick, fastPeriod, slowPeriod int, cashFraction float64, horizon time.Duration) *SMACross {
	closes := features.Closes(ticks)
	return &SMACross{
		FastPeriod:   fastPeriod,
		SlowPeriod:   slowPeriod,
		CashFraction: decimal.NewFromFloat(cashFraction),
		Horizon:      horizon,
		ticks:        ticks,
		fast:         features.SMA(closes, fastPeriod),
		slow:         features.SMA(closes, slowPeriod),
	}
}

// GetSignal implements engine.Strategy.
func (s *SMACross) GetSignal(snap engine.Snapshot) *engine.Signal {
	i := s.locate(snap.Timestamp)
	if i < 1 {
		return nil
	}
	if math.IsNaN(s.fast[i]) || math.IsNaN(s.slow[i]) || math.IsNaN(s.fast[i-1]) || math.IsNaN(s.slow[i-1]) {
		return nil
	}

	crossedUp := s.fast[i-1] <= s.slow[i-1] && s.fast[i] > s.slow[i]
	if !crossedUp {
		return nil
	}

	close := decimal.NewFromFloat(s.ticks[i].Close)
	if close.IsZero() {
		return nil
	}
	size := decimal.NewFromFloat(snap.Cash).Mul(s.CashFraction).Div(close)
	if !size.IsPositive() {
		return nil
	}

	return &engine.Signal{
		Side:     engine.SideBuy,
		Size:     size.InexactFloat64(),
		ExitTime: snap.Timestamp.Add(s.Horizon),
	}
}

// locate advances the cursor to the bar at the snapshot's timestamp.
// Snapshots arrive in tick order, so the cursor only ever moves forward.
func (s *SMACross) locate(ts time.Time) int {
	for s.idx < len(s.ticks) && s.ticks[s.idx].Timestamp.Before(ts) {
		s.idx++
	}
	if s.idx >= len(s.ticks) || !s.ticks[s.idx].Timestamp.Equal(ts) {
		return -1
	}
	return s.idx
}
