// Package arrowpipeline serializes bar tables and equity curves as Apache
// Arrow IPC streams, the interchange format used between the backtest
// services.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"backtest/services/engine"
)

// Pipeline converts between engine types and Arrow record batches.
type Pipeline struct {
	alloc  memory.Allocator
	logger *zap.Logger
}

func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		alloc:  memory.NewGoAllocator(),
		logger: logger,
	}
}

func barSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "symbol", Type: arrow.BinaryTypes.String},
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "open", Type: arrow.PrimitiveTypes.Float64},
		{Name: "high", Type: arrow.PrimitiveTypes.Float64},
		{Name: "low", Type: arrow.PrimitiveTypes.Float64},
		{Name: "close", Type: arrow.PrimitiveTypes.Float64},
		{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

func equitySchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "timestamp", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "cash", Type: arrow.PrimitiveTypes.Float64},
		{Name: "position", Type: arrow.PrimitiveTypes.Float64},
		{Name: "valuation", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

// EncodeBars writes one bar table as a single-record IPC stream.
func (p *Pipeline) EncodeBars(symbol string, ticks []engine.Tick) ([]byte, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("no bars to encode")
	}

	n := len(ticks)
	symbols := make([]string, n)
	timestamps := make([]uint64, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	volumes := make([]float64, n)

	for i, t := range ticks {
		symbols[i] = symbol
		timestamps[i] = uint64(t.Timestamp.Unix())
		opens[i] = t.Open
		highs[i] = t.High
		lows[i] = t.Low
		closes[i] = t.Close
		volumes[i] = t.Volume
	}

	symbolBuilder := array.NewStringBuilder(p.alloc)
	symbolBuilder.AppendValues(symbols, nil)
	symbolArray := symbolBuilder.NewStringArray()

	timestampBuilder := array.NewUint64Builder(p.alloc)
	timestampBuilder.AppendValues(timestamps, nil)
	timestampArray := timestampBuilder.NewUint64Array()

	floatArray := func(vals []float64) arrow.Array {
		b := array.NewFloat64Builder(p.alloc)
		b.AppendValues(vals, nil)
		return b.NewFloat64Array()
	}

	schema := barSchema()
	record := array.NewRecord(schema, []arrow.Array{
		symbolArray,
		timestampArray,
		floatArray(opens),
		floatArray(highs),
		floatArray(lows),
		floatArray(closes),
		floatArray(volumes),
	}, int64(n))
	defer record.Release()

	out, err := writeIPC(schema, record)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("encoded bar table",
		zap.String("symbol", symbol),
		zap.Int("rows", n),
		zap.Int("bytes", len(out)),
	)
	return out, nil
}

// DecodeBars reads a bar-table IPC stream back. The symbol column is
// expected to be constant; the first row's value is returned.
func (p *Pipeline) DecodeBars(data []byte) (string, []engine.Tick, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.alloc))
	if err != nil {
		return "", nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	var symbol string
	var ticks []engine.Tick
	for reader.Next() {
		rec := reader.Record()
		symbols := rec.Column(0).(*array.String)
		timestamps := rec.Column(1).(*array.Uint64)
		opens := rec.Column(2).(*array.Float64)
		highs := rec.Column(3).(*array.Float64)
		lows := rec.Column(4).(*array.Float64)
		closes := rec.Column(5).(*array.Float64)
		volumes := rec.Column(6).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			if symbol == "" {
				symbol = symbols.Value(i)
			}
			ticks = append(ticks, engine.Tick{
				Timestamp: time.Unix(int64(timestamps.Value(i)), 0).UTC(),
				Open:      opens.Value(i),
				High:      highs.Value(i),
				Low:       lows.Value(i),
				Close:     closes.Value(i),
				Volume:    volumes.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return "", nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return symbol, ticks, nil
}

// EncodeEquityCurve writes a snapshot sequence as an IPC stream.
func (p *Pipeline) EncodeEquityCurve(snaps []engine.Snapshot) ([]byte, error) {
	if len(snaps) == 0 {
		return nil, fmt.Errorf("no snapshots to encode")
	}

	n := len(snaps)
	timestamps := make([]uint64, n)
	cash := make([]float64, n)
	position := make([]float64, n)
	valuation := make([]float64, n)
	for i, s := range snaps {
		timestamps[i] = uint64(s.Timestamp.Unix())
		cash[i] = s.Cash
		position[i] = s.Position
		valuation[i] = s.Valuation
	}

	timestampBuilder := array.NewUint64Builder(p.alloc)
	timestampBuilder.AppendValues(timestamps, nil)

	floatArray := func(vals []float64) arrow.Array {
		b := array.NewFloat64Builder(p.alloc)
		b.AppendValues(vals, nil)
		return b.NewFloat64Array()
	}

	schema := equitySchema()
	record := array.NewRecord(schema, []arrow.Array{
		timestampBuilder.NewUint64Array(),
		floatArray(cash),
		floatArray(position),
		floatArray(valuation),
	}, int64(n))
	defer record.Release()

	return writeIPC(schema, record)
}

// DecodeEquityCurve reads an equity-curve IPC stream back.
func (p *Pipeline) DecodeEquityCurve(data []byte) ([]engine.Snapshot, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.alloc))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	var snaps []engine.Snapshot
	for reader.Next() {
		rec := reader.Record()
		timestamps := rec.Column(0).(*array.Uint64)
		cash := rec.Column(1).(*array.Float64)
		position := rec.Column(2).(*array.Float64)
		valuation := rec.Column(3).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			snaps = append(snaps, engine.Snapshot{
				Timestamp: time.Unix(int64(timestamps.Value(i)), 0).UTC(),
				Cash:      cash.Value(i),
				Position:  position.Value(i),
				Valuation: valuation.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return snaps, nil
}

func writeIPC(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow stream: %w", err)
	}
	return buf.Bytes(), nil
}
