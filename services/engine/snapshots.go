package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Snapshot is one mark-to-market observation of the account at a tick
// boundary: Valuation = Position*Close + Cash.
type Snapshot struct {
	Timestamp time.Time
	Cash      float64
	Position  float64
	Valuation float64
}

// SnapshotLog is the append-only equity curve of one simulation run.
// Entries are never mutated after append. Single writer; readers must not
// run concurrently with appends.
type SnapshotLog struct {
	snaps []Snapshot
}

func (l *SnapshotLog) Append(s Snapshot) {
	l.snaps = append(l.snaps, s)
}

// All returns the full ordered sequence. Callers must treat it as read-only.
func (l *SnapshotLog) All() []Snapshot {
	return l.snaps
}

func (l *SnapshotLog) Len() int {
	return len(l.snaps)
}

// Last returns the most recent snapshot, if any.
func (l *SnapshotLog) Last() (Snapshot, bool) {
	if len(l.snaps) == 0 {
		return Snapshot{}, false
	}
	return l.snaps[len(l.snaps)-1], true
}

var snapshotHeader = []string{"Timestamp", "Cash", "Position", "Valuation"}

// WriteCSV persists the equity curve with Unix-second timestamps.
func (l *SnapshotLog) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, s := range l.snaps {
		rec := []string{
			strconv.FormatInt(s.Timestamp.Unix(), 10),
			strconv.FormatFloat(s.Cash, 'f', -1, 64),
			strconv.FormatFloat(s.Position, 'f', -1, 64),
			strconv.FormatFloat(s.Valuation, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSnapshotsCSV reloads an equity curve written by WriteCSV. The result
// preserves the original order exactly.
func ReadSnapshotsCSV(r io.Reader) ([]Snapshot, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var snaps []Snapshot
	for i, rec := range records[1:] {
		if len(rec) != len(snapshotHeader) {
			return nil, fmt.Errorf("row %d: want %d columns, got %d", i+1, len(snapshotHeader), len(rec))
		}
		unix, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d timestamp: %w", i+1, err)
		}
		cash, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d cash: %w", i+1, err)
		}
		position, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d position: %w", i+1, err)
		}
		valuation, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d valuation: %w", i+1, err)
		}
		snaps = append(snaps, Snapshot{
			Timestamp: time.Unix(unix, 0).UTC(),
			Cash:      cash,
			Position:  position,
			Valuation: valuation,
		})
	}
	return snaps, nil
}
