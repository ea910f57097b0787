package models

import "time"

// Horizon names a rolling-performance window published in the fund reports.
type Horizon int

const (
	HorizonYTD Horizon = iota
	Horizon1W
	Horizon6M
	Horizon1Y
	Horizon2Y
	Horizon3Y
	Horizon5Y
	NumHorizons
)

var horizonKeys = [NumHorizons]string{"ytd", "1w", "6m", "1y", "2y", "3y", "5y"}

// Key is the short config key ("1w", "6m", ...).
func (h Horizon) Key() string {
	if h < 0 || h >= NumHorizons {
		return "unknown"
	}
	return horizonKeys[h]
}

// Column is the output column name for the horizon ("perf_1w", ...).
func (h Horizon) Column() string { return "perf_" + h.Key() }

// Horizons lists all horizons in publication order.
func Horizons() []Horizon {
	out := make([]Horizon, 0, NumHorizons)
	for h := HorizonYTD; h < NumHorizons; h++ {
		out = append(out, h)
	}
	return out
}

// ParseHorizon maps a key back to its Horizon.
func ParseHorizon(key string) (Horizon, bool) {
	for h, k := range horizonKeys {
		if k == key {
			return Horizon(h), true
		}
	}
	return 0, false
}

// FundRecord is one cleaned row of the fund report. Performance values are
// percent points; missing cells hold Missing().
type FundRecord struct {
	Date             time.Time
	LiquidativeValue float64
	Performance      [NumHorizons]float64
}

// NewFundRecord returns a record whose numeric fields are all missing.
func NewFundRecord(date time.Time) FundRecord {
	r := FundRecord{Date: date, LiquidativeValue: Missing()}
	for i := range r.Performance {
		r.Performance[i] = Missing()
	}
	return r
}

// FundTable renders cleaned fund records as a dated table.
func FundTable(records []FundRecord) *Table {
	cols := []string{ColLiquidativeValue}
	for _, h := range Horizons() {
		cols = append(cols, h.Column())
	}
	dates := make([]time.Time, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	t := NewTable(cols, dates)
	for i, r := range records {
		t.cells[i][0] = r.LiquidativeValue
		for h := range r.Performance {
			t.cells[i][h+1] = r.Performance[h]
		}
	}
	return t
}
