package models

import "time"

// Column names used by every table and artifact.
const (
	ColDate             = "date"
	ColIndexValue       = "index_value"
	ColVariationPct     = "variation_pct"
	ColLiquidativeValue = "liquidative_value"
	ColWeeklyReturn     = "weekly_return"
	ColReturnLag1       = "return_lag_1"
	ColReturnLag2       = "return_lag_2"
	ColGarchVol         = "garch_vol"
	ColGarchVolLag1     = "garch_vol_lag_1"
	ColGarchVolLag2     = "garch_vol_lag_2"
	ColTargetVol2W      = "target_vol_2w"
	ColTargetVol2WLag1  = "target_vol_2w_lag_1"
	ColTargetVol2WLag2  = "target_vol_2w_lag_2"
	ColTargetVol2WLag3  = "target_vol_2w_lag_3"
)

// JoinedRow is one date present in both the aligned index series and the fund records.
type JoinedRow struct {
	Date             time.Time
	IndexValue       float64
	VariationPct     float64
	LiquidativeValue float64
	Performance      [NumHorizons]float64
}

// FeatureRow extends JoinedRow with return, volatility and target features.
// Undefined cells hold Missing().
type FeatureRow struct {
	JoinedRow

	WeeklyReturn float64
	ReturnLag1   float64
	ReturnLag2   float64

	GarchVol     float64
	GarchVolLag1 float64
	GarchVolLag2 float64

	TargetVol2W     float64
	TargetVol2WLag1 float64
	TargetVol2WLag2 float64
	TargetVol2WLag3 float64
}

// NewFeatureRow copies j and marks every derived feature missing.
func NewFeatureRow(j JoinedRow) FeatureRow {
	m := Missing()
	return FeatureRow{
		JoinedRow:       j,
		WeeklyReturn:    m,
		ReturnLag1:      m,
		ReturnLag2:      m,
		GarchVol:        m,
		GarchVolLag1:    m,
		GarchVolLag2:    m,
		TargetVol2W:     m,
		TargetVol2WLag1: m,
		TargetVol2WLag2: m,
		TargetVol2WLag3: m,
	}
}

// FeatureColumns returns every numeric FeatureRow column in artifact order.
func FeatureColumns() []string {
	cols := []string{ColIndexValue, ColVariationPct, ColLiquidativeValue}
	for _, h := range Horizons() {
		cols = append(cols, h.Column())
	}
	return append(cols,
		ColWeeklyReturn, ColReturnLag1, ColReturnLag2,
		ColGarchVol, ColGarchVolLag1, ColGarchVolLag2,
		ColTargetVol2W, ColTargetVol2WLag1, ColTargetVol2WLag2, ColTargetVol2WLag3,
	)
}

// field resolves a column name to a pointer into the row.
func (r *FeatureRow) field(col string) *float64 {
	switch col {
	case ColIndexValue:
		return &r.IndexValue
	case ColVariationPct:
		return &r.VariationPct
	case ColLiquidativeValue:
		return &r.LiquidativeValue
	case ColWeeklyReturn:
		return &r.WeeklyReturn
	case ColReturnLag1:
		return &r.ReturnLag1
	case ColReturnLag2:
		return &r.ReturnLag2
	case ColGarchVol:
		return &r.GarchVol
	case ColGarchVolLag1:
		return &r.GarchVolLag1
	case ColGarchVolLag2:
		return &r.GarchVolLag2
	case ColTargetVol2W:
		return &r.TargetVol2W
	case ColTargetVol2WLag1:
		return &r.TargetVol2WLag1
	case ColTargetVol2WLag2:
		return &r.TargetVol2WLag2
	case ColTargetVol2WLag3:
		return &r.TargetVol2WLag3
	}
	for _, h := range Horizons() {
		if col == h.Column() {
			return &r.Performance[h]
		}
	}
	return nil
}

// Get returns the value of col and whether the column exists.
func (r *FeatureRow) Get(col string) (float64, bool) {
	p := r.field(col)
	if p == nil {
		return Missing(), false
	}
	return *p, true
}

// Set writes col and reports whether the column exists.
func (r *FeatureRow) Set(col string, v float64) bool {
	p := r.field(col)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// FeatureTable renders rows as a table carrying every FeatureRow column.
func FeatureTable(rows []FeatureRow) *Table {
	cols := FeatureColumns()
	dates := make([]time.Time, len(rows))
	for i := range rows {
		dates[i] = rows[i].Date
	}
	t := NewTable(cols, dates)
	for i := range rows {
		for j, c := range cols {
			v, _ := rows[i].Get(c)
			t.cells[i][j] = v
		}
	}
	return t
}

// FeatureRows converts a table back into rows. Columns the table lacks stay missing;
// unknown table columns are ignored.
func FeatureRows(t *Table) []FeatureRow {
	out := make([]FeatureRow, t.Len())
	for i := range out {
		out[i] = NewFeatureRow(JoinedRow{Date: t.dates[i]})
		out[i].IndexValue = Missing()
		out[i].VariationPct = Missing()
		out[i].LiquidativeValue = Missing()
		for h := range out[i].Performance {
			out[i].Performance[h] = Missing()
		}
		for j, c := range t.columns {
			out[i].Set(c, t.cells[i][j])
		}
	}
	return out
}
