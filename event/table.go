package event

import "fmt"

// ErrColumnMismatch reports a table whose shape does not match the layout.
type ErrColumnMismatch struct {
	Expected int
	Actual   int
	Values   int
}

func (e *ErrColumnMismatch) Error() string {
	if e.Expected != e.Actual {
		return fmt.Sprintf("event: table has %d columns, layout expects %d", e.Actual, e.Expected)
	}
	return fmt.Sprintf("event: %d table values do not form whole rows of %d columns", e.Values, e.Actual)
}

// ToTable converts events to the flat table format and returns the totals of
// signal and squared error accumulated in double precision.
func (l Layout) ToTable(events []Event, dst []float64) (data []float64, nColumns int, totalSignal, totalErrorSquared float64) {
	nColumns = l.Columns()
	data = dst[:0]
	if cap(data) < len(events)*nColumns {
		data = make([]float64, 0, len(events)*nColumns)
	}
	for i := range events {
		e := &events[i]
		totalSignal += e.Signal
		totalErrorSquared += e.ErrorSquared
		data = append(data, e.Signal, e.ErrorSquared)
		if l.kind == Full {
			data = append(data, float64(e.RunIndex), float64(e.GoniometerIndex), float64(e.DetectorID))
		}
		for d := 0; d < l.nd; d++ {
			data = append(data, float64(e.Center[d]))
		}
	}
	return data, nColumns, totalSignal, totalErrorSquared
}

// FromTable converts flat table rows back to events and appends them to dst.
// It fails with *ErrColumnMismatch when the table does not match the layout.
func (l Layout) FromTable(data []float64, nColumns int, dst []Event) ([]Event, error) {
	if nColumns != l.Columns() || len(data)%nColumns != 0 {
		return dst, &ErrColumnMismatch{Expected: l.Columns(), Actual: nColumns, Values: len(data)}
	}
	n := len(data) / nColumns
	dst = growEvents(dst, n)
	for row := 0; row < len(data); row += nColumns {
		r := data[row : row+nColumns]
		var e Event
		e.Signal = r[0]
		e.ErrorSquared = r[1]
		c := 2
		if l.kind == Full {
			e.RunIndex = uint16(r[2])
			e.GoniometerIndex = uint16(r[3])
			e.DetectorID = int32(r[4])
			c = 5
		}
		for d := 0; d < l.nd; d++ {
			e.Center[d] = float32(r[c+d])
		}
		dst = append(dst, e)
	}
	return dst, nil
}
