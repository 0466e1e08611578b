package strategies

import (
	"math"
	"testing"
	"time"

	"backtest/services/engine"
)

var base = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) []engine.Tick {
	ticks := make([]engine.Tick, len(closes))
	for i, c := range closes {
		ticks[i] = engine.Tick{
			Timestamp: base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1,
		}
	}
	return ticks
}

func TestSMACrossSignalsOnCrossover(t *testing.T) {
	// Ten falling closes then a sharp rally: the 2-bar SMA crosses above the
	// 4-bar SMA somewhere in the rally, exactly once.
	closes := []float64{110, 109, 108, 107, 106, 105, 104, 103, 102, 101, 108, 115, 122, 129, 136}
	ticks := barsFromCloses(closes)
	strat := NewSMACross(ticks, 2, 4, 0.5, time.Hour)

	var signals []*engine.Signal
	for _, tick := range ticks {
		sig := strat.GetSignal(engine.Snapshot{Timestamp: tick.Timestamp, Cash: 10000, Valuation: 10000})
		if sig != nil {
			signals = append(signals, sig)
		}
	}

	if len(signals) != 1 {
		t.Fatalf("signals = %d, want exactly one crossover", len(signals))
	}
	sig := signals[0]
	if sig.Side != engine.SideBuy {
		t.Fatalf("side = %v, want BUY", sig.Side)
	}
	if sig.Size <= 0 || math.IsNaN(sig.Size) {
		t.Fatalf("size = %v, want positive", sig.Size)
	}
	if sig.ExitTime.IsZero() {
		t.Fatal("exit time not set")
	}
}

func TestSMACrossQuietDuringWarmup(t *testing.T) {
	closes := []float64{100, 101, 102}
	ticks := barsFromCloses(closes)
	strat := NewSMACross(ticks, 2, 10, 0.5, time.Hour)

	for _, tick := range ticks {
		if sig := strat.GetSignal(engine.Snapshot{Timestamp: tick.Timestamp, Cash: 10000}); sig != nil {
			t.Fatalf("signal during warmup at %v", tick.Timestamp)
		}
	}
}

func TestSMACrossIgnoresUnknownTimestamp(t *testing.T) {
	ticks := barsFromCloses([]float64{100, 101, 102, 103, 104, 105})
	strat := NewSMACross(ticks, 2, 3, 0.5, time.Hour)

	if sig := strat.GetSignal(engine.Snapshot{Timestamp: base.Add(7 * time.Minute), Cash: 10000}); sig != nil {
		t.Fatal("signal for a timestamp that is not in the bar table")
	}
}

func TestRandomFlipDeterministic(t *testing.T) {
	ticks := barsFromCloses([]float64{100, 101, 102, 103, 104, 105, 106, 107})

	run := func() []float64 {
		strat := NewRandomFlip(ticks, 42, 0.5, time.Hour)
		var sizes []float64
		for _, tick := range ticks {
			sig := strat.GetSignal(engine.Snapshot{Timestamp: tick.Timestamp, Cash: 10000})
			if sig == nil {
				sizes = append(sizes, 0)
				continue
			}
			if sig.Size*tick.Close > 10000*0.5+1e-9 {
				t.Fatalf("size %v exceeds the cash fraction cap", sig.Size)
			}
			sizes = append(sizes, sig.Size)
		}
		return sizes
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs diverge at tick %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRandomFlipEndToEnd(t *testing.T) {
	// Soak the engine invariants with a random order stream.
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7)
	}
	ticks := barsFromCloses(closes)

	sim := engine.NewSimulator(engine.NewTickSource(ticks), 1_000_000, engine.Config{
		Slippage:        0.001,
		MinutesToExpire: 60,
		PriceTick:       1,
	})
	strat := NewRandomFlip(ticks, 7, 0.9, 2*time.Hour)
	runner := engine.NewRunner(sim, strat, 1000)

	if err := runner.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if sim.Snapshots().Len() != len(ticks) {
		t.Fatalf("snapshots = %d, want %d", sim.Snapshots().Len(), len(ticks))
	}
	for _, o := range sim.ArchivedOrders() {
		if o.IsOpen() {
			t.Fatalf("archived order %d has no terminal status", o.ID)
		}
	}
	// Executed deltas must replay into the final account exactly.
	cash, position := 1_000_000.0, 0.0
	for _, o := range sim.ArchivedOrders() {
		cash += o.Result.CashDiff
		position += o.Result.PositionDiff
	}
	if math.Abs(cash-sim.Cash()) > 1e-6 || math.Abs(position-sim.Position()) > 1e-9 {
		t.Fatalf("ledger replay = (%v, %v), engine = (%v, %v)", cash, position, sim.Cash(), sim.Position())
	}
}
