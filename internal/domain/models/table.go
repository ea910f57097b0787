package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"VolCast/internal/domain/errs"
)

// ErrRowOutOfRange is returned by the positional accessors.
var ErrRowOutOfRange = errors.New("row index out of range")

// Table is a dated numeric table stored as an arena of rows addressed by position.
// Every read and write goes through bounds-checked accessors; callers never
// hold references into the cell storage.
type Table struct {
	dates   []time.Time
	columns []string
	index   map[string]int
	cells   [][]float64
}

// NewTable allocates a table whose cells are all missing.
func NewTable(columns []string, dates []time.Time) *Table {
	t := &Table{
		dates:   append([]time.Time(nil), dates...),
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		cells:   make([][]float64, len(dates)),
	}
	for i, c := range columns {
		t.index[c] = i
	}
	for i := range t.cells {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = math.NaN()
		}
		t.cells[i] = row
	}
	return t
}

func (t *Table) Len() int { return len(t.dates) }

// Columns returns a copy of the column names (date excluded).
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

func (t *Table) HasColumn(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *Table) colIndex(col string) (int, error) {
	j, ok := t.index[col]
	if !ok {
		return 0, &errs.SchemaError{Source: "table", Column: col}
	}
	return j, nil
}

func (t *Table) checkRow(i int) error {
	if i < 0 || i >= len(t.dates) {
		return fmt.Errorf("%w: %d (len %d)", ErrRowOutOfRange, i, len(t.dates))
	}
	return nil
}

// InRange reports whether i addresses an existing row.
func (t *Table) InRange(i int) bool { return i >= 0 && i < len(t.dates) }

func (t *Table) Date(i int) (time.Time, error) {
	if err := t.checkRow(i); err != nil {
		return time.Time{}, err
	}
	return t.dates[i], nil
}

func (t *Table) Value(i int, col string) (float64, error) {
	if err := t.checkRow(i); err != nil {
		return math.NaN(), err
	}
	j, err := t.colIndex(col)
	if err != nil {
		return math.NaN(), err
	}
	return t.cells[i][j], nil
}

func (t *Table) SetValue(i int, col string, v float64) error {
	if err := t.checkRow(i); err != nil {
		return err
	}
	j, err := t.colIndex(col)
	if err != nil {
		return err
	}
	t.cells[i][j] = v
	return nil
}

// Vector copies the values of cols for row i, in the order given.
func (t *Table) Vector(i int, cols []string) ([]float64, error) {
	if err := t.checkRow(i); err != nil {
		return nil, err
	}
	out := make([]float64, len(cols))
	for k, c := range cols {
		j, err := t.colIndex(c)
		if err != nil {
			return nil, err
		}
		out[k] = t.cells[i][j]
	}
	return out, nil
}

// Column copies one column.
func (t *Table) Column(col string) ([]float64, error) {
	j, err := t.colIndex(col)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.cells))
	for i := range t.cells {
		out[i] = t.cells[i][j]
	}
	return out, nil
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := NewTable(t.columns, t.dates)
	for i := range t.cells {
		copy(c.cells[i], t.cells[i])
	}
	return c
}

type tableJSON struct {
	Columns []string     `json:"columns"`
	Dates   []string     `json:"dates"`
	Rows    [][]*float64 `json:"rows"`
}

// MarshalJSON encodes missing cells as null.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Columns: t.columns,
		Dates:   make([]string, len(t.dates)),
		Rows:    make([][]*float64, len(t.cells)),
	}
	for i, d := range t.dates {
		out.Dates[i] = d.Format("2006-01-02")
		row := make([]*float64, len(t.columns))
		for j, v := range t.cells[i] {
			row[j] = OptFloat(v)
		}
		out.Rows[i] = row
	}
	return json.Marshal(out)
}

func (t *Table) UnmarshalJSON(b []byte) error {
	var in tableJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.Rows) != len(in.Dates) {
		return fmt.Errorf("table json: %d rows for %d dates", len(in.Rows), len(in.Dates))
	}
	dates := make([]time.Time, len(in.Dates))
	for i, s := range in.Dates {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return fmt.Errorf("table json: date %q: %w", s, err)
		}
		dates[i] = d
	}
	*t = *NewTable(in.Columns, dates)
	for i, row := range in.Rows {
		if len(row) != len(in.Columns) {
			return fmt.Errorf("table json: row %d has %d cells", i, len(row))
		}
		for j, p := range row {
			if p != nil {
				t.cells[i][j] = *p
			}
		}
	}
	return nil
}

// OptFloat maps the missing marker to nil.
func OptFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
