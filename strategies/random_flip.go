package strategies

import (
	"math/rand"
	"time"

	"backtest/services/engine"
)

// RandomFlip buys a random fraction of available cash on roughly half the
// ticks it is consulted on. It exists to soak-test engine invariants, not to
// make money. Determinism comes from the injected seed, so two runs produce
// identical order streams.
type RandomFlip struct {
	MaxCashFraction float64
	Horizon         time.Duration

	ticks []engine.Tick
	idx   int
	rng   *rand.Rand
}

func NewRandomFlip(ticks []engine.Tick, seed int64, maxCashFraction float64, horizon time.Duration) *RandomFlip {
	return &RandomFlip{
		MaxCashFraction: maxCashFraction,
		Horizon:         horizon,
		ticks:           ticks,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// GetSignal implements engine.Strategy.
func (r *RandomFlip) GetSignal(snap engine.Snapshot) *engine.Signal {
	price := r.priceAt(snap.Timestamp)
	if price <= 0 || snap.Cash <= 0 {
		return nil
	}
	// Skip roughly half the ticks to leave idle stretches in the replay.
	if r.rng.Intn(2) == 0 {
		return nil
	}

	size := snap.Cash * r.MaxCashFraction * r.rng.Float64() / price
	if size <= 0 {
		return nil
	}
	return &engine.Signal{
		Side:     engine.SideBuy,
		Size:     size,
		ExitTime: snap.Timestamp.Add(r.Horizon),
	}
}

func (r *RandomFlip) priceAt(ts time.Time) float64 {
	for r.idx < len(r.ticks) && r.ticks[r.idx].Timestamp.Before(ts) {
		r.idx++
	}
	if r.idx >= len(r.ticks) || !r.ticks[r.idx].Timestamp.Equal(ts) {
		return 0
	}
	return r.ticks[r.idx].Close
}
