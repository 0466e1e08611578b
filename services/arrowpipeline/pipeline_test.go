package arrowpipeline

import (
	"testing"
	"time"

	"backtest/services/engine"
)

func TestBarRoundTrip(t *testing.T) {
	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	want := make([]engine.Tick, 50)
	for i := range want {
		want[i] = engine.Tick{
			Timestamp: base.Add(time.Duration(i+1) * 15 * time.Minute),
			Open:      100 + float64(i),
			High:      105 + float64(i),
			Low:       95 + float64(i),
			Close:     101 + float64(i),
			Volume:    float64(i),
		}
	}

	p := NewPipeline(nil)
	data, err := p.EncodeBars("btcjpy", want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	symbol, got, err := p.DecodeBars(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if symbol != "btcjpy" {
		t.Fatalf("symbol = %q, want btcjpy", symbol)
	}
	if len(got) != len(want) {
		t.Fatalf("rows = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) ||
			got[i].Open != want[i].Open || got[i].High != want[i].High ||
			got[i].Low != want[i].Low || got[i].Close != want[i].Close ||
			got[i].Volume != want[i].Volume {
			t.Fatalf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEquityCurveRoundTrip(t *testing.T) {
	base := time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)
	want := []engine.Snapshot{
		{Timestamp: base, Cash: 1_000_000, Position: 0, Valuation: 1_000_000},
		{Timestamp: base.Add(15 * time.Minute), Cash: 899_000, Position: 0.25, Valuation: 1_000_250},
		{Timestamp: base.Add(30 * time.Minute), Cash: 1_001_000, Position: 0, Valuation: 1_001_000},
	}

	p := NewPipeline(nil)
	data, err := p.EncodeEquityCurve(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := p.DecodeEquityCurve(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("points = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) ||
			got[i].Cash != want[i].Cash ||
			got[i].Position != want[i].Position ||
			got[i].Valuation != want[i].Valuation {
			t.Fatalf("point %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestEncodeEmptyIsError(t *testing.T) {
	p := NewPipeline(nil)
	if _, err := p.EncodeBars("btcjpy", nil); err == nil {
		t.Fatal("empty bar table accepted")
	}
	if _, err := p.EncodeEquityCurve(nil); err == nil {
		t.Fatal("empty equity curve accepted")
	}
}
