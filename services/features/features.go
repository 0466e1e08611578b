// Package features computes rolling technical features over OHLCV bars.
// Everything here is pure: inputs are never mutated and outputs carry NaN
// until the lookback window has filled, so a consumer can tell warmup bars
// apart from real values.
package features

import (
	"math"

	"backtest/services/engine"
)

// Closes extracts the close series from a bar sequence.
func Closes(ticks []engine.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Close
	}
	return out
}

// SMA is the simple moving average over the trailing length values.
func SMA(values []float64, length int) []float64 {
	out := warmup(len(values))
	if length <= 0 || length > len(values) {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= length {
			sum -= values[i-length]
		}
		if i >= length-1 {
			out[i] = sum / float64(length)
		}
	}
	return out
}

// ROC is the fractional rate of change over length bars:
// (v[i] - v[i-length]) / v[i-length].
func ROC(values []float64, length int) []float64 {
	out := warmup(len(values))
	if length <= 0 {
		return out
	}
	for i := length; i < len(values); i++ {
		prev := values[i-length]
		if prev == 0 {
			continue
		}
		out[i] = (values[i] - prev) / prev
	}
	return out
}

// Returns is the 1-bar fractional return series.
func Returns(values []float64) []float64 {
	return ROC(values, 1)
}

// HV is the rolling historical volatility: the standard deviation of
// log(1+return) over the trailing length bars.
func HV(values []float64, length int) []float64 {
	rets := Returns(values)
	logs := warmup(len(values))
	for i, r := range rets {
		if !math.IsNaN(r) {
			logs[i] = math.Log(1 + r)
		}
	}

	out := warmup(len(values))
	if length <= 1 {
		return out
	}
	for i := length; i < len(values); i++ {
		window := logs[i-length+1 : i+1]
		out[i] = stddev(window)
	}
	return out
}

// ATR is the average true range over length bars, seeded with a simple
// average and smoothed with Wilder's recursion.
func ATR(ticks []engine.Tick, length int) []float64 {
	out := warmup(len(ticks))
	if length <= 0 || len(ticks) <= length {
		return out
	}

	tr := make([]float64, len(ticks))
	tr[0] = ticks[0].High - ticks[0].Low
	for i := 1; i < len(ticks); i++ {
		hl := ticks[i].High - ticks[i].Low
		hc := math.Abs(ticks[i].High - ticks[i-1].Close)
		lc := math.Abs(ticks[i].Low - ticks[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 1; i <= length; i++ {
		sum += tr[i]
	}
	out[length] = sum / float64(length)
	for i := length + 1; i < len(ticks); i++ {
		out[i] = (out[i-1]*float64(length-1) + tr[i]) / float64(length)
	}
	return out
}

// RSI is the relative strength index over length bars using Wilder
// smoothing, in percent.
func RSI(values []float64, length int) []float64 {
	out := warmup(len(values))
	if length <= 0 || len(values) <= length {
		return out
	}

	var gain, loss float64
	for i := 1; i <= length; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(length)
	avgLoss := loss / float64(length)
	out[length] = rsiValue(avgGain, avgLoss)

	for i := length + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(length-1) + g) / float64(length)
		avgLoss = (avgLoss*float64(length-1) + l) / float64(length)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func warmup(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func stddev(window []float64) float64 {
	var sum float64
	n := 0
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n < 2 {
		return math.NaN()
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(n-1))
}
