package features

import (
	"math"
	"testing"
	"time"

	"backtest/services/engine"
)

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("warmup values = %v, want NaN", got[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if got[i+2] != w {
			t.Fatalf("sma[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}
}

func TestROC(t *testing.T) {
	got := ROC([]float64{100, 110, 121}, 1)
	if !math.IsNaN(got[0]) {
		t.Fatalf("roc[0] = %v, want NaN", got[0])
	}
	if math.Abs(got[1]-0.1) > 1e-12 || math.Abs(got[2]-0.1) > 1e-12 {
		t.Fatalf("roc = %v, want 0.1 after warmup", got)
	}
}

func TestRSIAllGainsSaturates(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	got := RSI(values, 14)
	if got[len(got)-1] != 100 {
		t.Fatalf("rsi = %v, want 100 for a monotone series", got[len(got)-1])
	}
	if !math.IsNaN(got[13]) {
		t.Fatalf("rsi[13] = %v, want NaN during warmup", got[13])
	}
}

func TestATRFlatBars(t *testing.T) {
	ticks := make([]engine.Tick, 20)
	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := range ticks {
		ticks[i] = engine.Tick{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      100, High: 102, Low: 98, Close: 100,
		}
	}
	got := ATR(ticks, 14)
	if math.Abs(got[len(got)-1]-4) > 1e-9 {
		t.Fatalf("atr = %v, want 4 for constant 4-point ranges", got[len(got)-1])
	}
}

func TestHVZeroForConstantSeries(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 100
	}
	got := HV(values, 10)
	if got[len(got)-1] != 0 {
		t.Fatalf("hv = %v, want 0 for a constant series", got[len(got)-1])
	}
}

func TestClosesExtraction(t *testing.T) {
	ticks := []engine.Tick{{Close: 1}, {Close: 2}}
	got := Closes(ticks)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("closes = %v", got)
	}
}
