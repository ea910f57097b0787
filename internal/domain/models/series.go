package models

import (
	"math"
	"time"
)

// Missing is the in-memory marker for an undefined numeric cell. It is
// distinct from zero everywhere in the pipeline.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Defined is the negation of IsMissing, handy in filters.
func Defined(v float64) bool { return !math.IsNaN(v) }

// TimePoint is one observation of a univariate series.
type TimePoint struct {
	Date         time.Time
	Value        float64
	VariationPct float64 // percent change vs previous point, Missing() when unknown
}

// Series is kept sorted ascending by date with unique dates once aligned.
type Series []TimePoint

func (s Series) Len() int { return len(s) }

// Values returns the value column.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Clone returns a deep copy.
func (s Series) Clone() Series {
	if s == nil {
		return nil
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Table renders the series as a dated table with index_value and variation_pct columns.
func (s Series) Table() *Table {
	dates := make([]time.Time, len(s))
	for i, p := range s {
		dates[i] = p.Date
	}
	t := NewTable([]string{ColIndexValue, ColVariationPct}, dates)
	for i, p := range s {
		t.cells[i][0] = p.Value
		t.cells[i][1] = p.VariationPct
	}
	return t
}
