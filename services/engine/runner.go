package engine

import (
	"errors"
	"math"
	"time"
)

// DefaultFlatThreshold is the position notional, in quote currency, below
// which the runner treats the account as flat. It stops dust left by
// rounded fills from triggering an endless stream of exit orders.
const DefaultFlatThreshold = 10000

// Runner drives a simulator tick by tick with at most one order in flight:
// it reconciles the outstanding order, asks the strategy for a signal when
// flat, and submits a flattening market order when the exit time arrives.
type Runner struct {
	sim       *Simulator
	strategy  Strategy
	threshold float64

	inFlight *Order
	position float64
	exitTime time.Time
}

// NewRunner wires a strategy to a simulator. threshold <= 0 selects
// DefaultFlatThreshold.
func NewRunner(sim *Simulator, strategy Strategy, threshold float64) *Runner {
	if threshold <= 0 {
		threshold = DefaultFlatThreshold
	}
	return &Runner{sim: sim, strategy: strategy, threshold: threshold}
}

// Run replays the simulation until the tick source is exhausted.
func (r *Runner) Run() error {
	for {
		now, err := r.sim.Advance()
		if errors.Is(err, ErrExhausted) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.step(now); err != nil {
			return err
		}
	}
}

func (r *Runner) step(now time.Time) error {
	r.reconcile()
	if r.inFlight != nil {
		// Still waiting on the outstanding order.
		return nil
	}

	if !r.hasPosition() {
		r.exitTime = time.Time{}
		signal := r.strategy.GetSignal(r.sim.State())
		if signal == nil {
			return nil
		}
		order, err := r.sim.NewMarketOrder(signal.Side, signal.Size)
		if err != nil {
			return err
		}
		r.exitTime = signal.ExitTime
		r.sim.AddOrder(order)
		r.inFlight = order
		return nil
	}

	if !r.exitTime.IsZero() && now.Before(r.exitTime) {
		return nil
	}

	// Flatten the whole position with an offsetting market order.
	side, size := SideSell, r.position
	if r.position < 0 {
		side, size = SideBuy, -r.position
	}
	order, err := r.sim.NewMarketOrder(side, size)
	if err != nil {
		return err
	}
	r.sim.AddOrder(order)
	r.inFlight = order
	return nil
}

// reconcile resolves the in-flight slot: an executed order moves the locally
// tracked position, an expired or invalid one is simply dropped.
func (r *Runner) reconcile() {
	if r.inFlight == nil || r.inFlight.IsOpen() {
		return
	}
	if r.inFlight.IsExecuted() {
		r.position += r.inFlight.Result.PositionDiff
	}
	r.inFlight = nil
}

// hasPosition applies the materiality threshold: positions worth less than
// it at the current close count as flat.
func (r *Runner) hasPosition() bool {
	return math.Abs(r.position)*r.sim.Tick().Close >= r.threshold
}

// Position returns the runner's locally tracked base position.
func (r *Runner) Position() float64 { return r.position }
