package engine

import (
	"testing"
	"time"
)

// scriptedStrategy replays a fixed signal sequence, one per call.
type scriptedStrategy struct {
	signals []*Signal
	calls   int
}

func (s *scriptedStrategy) GetSignal(Snapshot) *Signal {
	s.calls++
	if len(s.signals) == 0 {
		return nil
	}
	sig := s.signals[0]
	s.signals = s.signals[1:]
	return sig
}

func TestRunnerEntryAndTimedExit(t *testing.T) {
	bars := flatBars(10, 15*time.Minute, 100, 105, 95, 100)
	s := newSim(bars, 100000, Config{MinutesToExpire: 60})

	exit := bars[4].Timestamp
	strat := &scriptedStrategy{signals: []*Signal{
		{Side: SideBuy, Size: 200, ExitTime: exit},
	}}
	r := NewRunner(s, strat, 10000)

	if err := r.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	archived := s.ArchivedOrders()
	if len(archived) != 2 {
		t.Fatalf("archived = %d orders, want entry and exit", len(archived))
	}
	entry, exitOrder := archived[0], archived[1]
	if entry.Side != SideBuy || !entry.IsExecuted() {
		t.Fatalf("entry = %v %v, want executed BUY", entry.Side, entry.Result.Status)
	}
	if exitOrder.Side != SideSell || !exitOrder.IsExecuted() {
		t.Fatalf("exit = %v %v, want executed SELL", exitOrder.Side, exitOrder.Result.Status)
	}
	if exitOrder.Timestamp.Before(exit) {
		t.Fatalf("exit submitted at %v, before the recorded exit time %v", exitOrder.Timestamp, exit)
	}
	if exitOrder.Size != entry.Size {
		t.Fatalf("exit size = %v, want the full position %v", exitOrder.Size, entry.Size)
	}
	if r.Position() != 0 {
		t.Fatalf("runner position = %v, want flat", r.Position())
	}
}

func TestRunnerImmediateExitWithoutExitTime(t *testing.T) {
	bars := flatBars(6, 15*time.Minute, 100, 105, 95, 100)
	s := newSim(bars, 100000, Config{MinutesToExpire: 60})
	strat := &scriptedStrategy{signals: []*Signal{
		{Side: SideBuy, Size: 200},
	}}
	r := NewRunner(s, strat, 10000)

	if err := r.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	// No exit time recorded: the position is flattened as soon as the entry
	// fill is observed.
	archived := s.ArchivedOrders()
	if len(archived) != 2 {
		t.Fatalf("archived = %d orders, want 2", len(archived))
	}
	if got := archived[1].Timestamp.Sub(archived[0].Result.CompletionTime); got != 0 {
		t.Fatalf("exit submitted %v after the fill was observed, want same tick", got)
	}
}

func TestRunnerSingleOrderInFlight(t *testing.T) {
	bars := flatBars(20, 15*time.Minute, 100, 105, 95, 100)
	s := newSim(bars, 100000, Config{MinutesToExpire: 60})

	// Endless entry signals; the runner must still never stack orders.
	strat := &eagerStrategy{}
	r := NewRunner(s, strat, 10000)

	for {
		now, err := s.Advance()
		if err != nil {
			break
		}
		if err := r.step(now); err != nil {
			t.Fatalf("step: %v", err)
		}
		if len(s.ActiveOrders()) > 1 {
			t.Fatalf("%d orders in flight at %v", len(s.ActiveOrders()), now)
		}
	}
}

// eagerStrategy always wants a small long position.
type eagerStrategy struct{}

func (eagerStrategy) GetSignal(snap Snapshot) *Signal {
	return &Signal{Side: SideBuy, Size: 150, ExitTime: snap.Timestamp.Add(30 * time.Minute)}
}

func TestRunnerIgnoresDustPosition(t *testing.T) {
	bars := flatBars(6, 15*time.Minute, 100, 105, 95, 100)
	s := newSim(bars, 100000, Config{MinutesToExpire: 60})

	// A 1-unit position at close 100 is worth 100, far below the threshold,
	// so the runner keeps treating the account as flat and never exits.
	strat := &scriptedStrategy{signals: []*Signal{
		{Side: SideBuy, Size: 1},
	}}
	r := NewRunner(s, strat, 10000)

	if err := r.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(s.ArchivedOrders()) != 1 {
		t.Fatalf("archived = %d orders, want only the dust entry", len(s.ArchivedOrders()))
	}
	if strat.calls < 2 {
		t.Fatalf("strategy consulted %d times, want every flat tick", strat.calls)
	}
}
