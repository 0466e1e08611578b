package clickhouse

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTicksConversion(t *testing.T) {
	bars := []Bar{
		{
			Symbol:    "btcjpy",
			Period:    900,
			CloseTime: 900,
			Open:      decimal.NewFromFloat(100.5),
			High:      decimal.NewFromFloat(105),
			Low:       decimal.NewFromFloat(95),
			Close:     decimal.NewFromFloat(101.25),
			Volume:    decimal.NewFromFloat(10),
		},
	}
	ticks := Ticks(bars)
	if len(ticks) != 1 {
		t.Fatalf("ticks = %d, want 1", len(ticks))
	}
	if !ticks[0].Timestamp.Equal(time.Unix(900, 0)) {
		t.Fatalf("timestamp = %v", ticks[0].Timestamp)
	}
	if ticks[0].Open != 100.5 || ticks[0].Close != 101.25 || ticks[0].Volume != 10 {
		t.Fatalf("tick = %+v", ticks[0])
	}
}
