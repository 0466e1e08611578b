package engine

import "time"

// Signal is a strategy's request to open a position. A zero ExitTime means
// the position is flattened as soon as it becomes non-trivial again.
type Signal struct {
	Side     Side
	Size     float64
	ExitTime time.Time
}

// Strategy turns account snapshots into trading signals. Implementations own
// all indicator state; the simulator and runner never look inside. Returning
// nil means no trade this tick.
type Strategy interface {
	GetSignal(snap Snapshot) *Signal
}
