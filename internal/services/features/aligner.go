package features

import (
	"sort"
	"time"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	"VolCast/pkg/util"
)

// DefaultWeeklyOffsetDays is how far ahead of the index cadence the weekly source dates its rows.
const DefaultWeeklyOffsetDays = 2

// Aligner merges the historical index series with the incremental weekly one.
type Aligner struct {
	offsetDays int
}

func NewAligner(offsetDays int) *Aligner {
	return &Aligner{offsetDays: offsetDays}
}

// Align merges weekly into historical. A nil weekly series means the source is
// absent and historical is returned unchanged. Otherwise weekly dates are shifted
// back by the offset, rows are concatenated (historical first), stably sorted by
// date and deduplicated keeping the last occurrence, so weekly wins ties.
// variation_pct is then recomputed over the merged values.
func (a *Aligner) Align(historical, weekly models.Series) models.Series {
	if weekly == nil {
		return historical.Clone()
	}

	merged := make(models.Series, 0, len(historical)+len(weekly))
	merged = append(merged, historical...)
	for _, p := range weekly {
		p.Date = util.ShiftDays(p.Date, -a.offsetDays)
		merged = append(merged, p)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })

	out := make(models.Series, 0, len(merged))
	for _, p := range merged {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	RecomputeVariation(out)
	return out
}

// RecomputeVariation overwrites variation_pct with the period-over-period percent
// change of value. The first point, points after a missing value and points after
// a zero value are missing.
func RecomputeVariation(s models.Series) {
	for i := range s {
		if i == 0 {
			s[i].VariationPct = models.Missing()
			continue
		}
		s[i].VariationPct = pctChange(s[i-1].Value, s[i].Value)
	}
}

func pctChange(prev, cur float64) float64 {
	if models.IsMissing(prev) || models.IsMissing(cur) || prev == 0 {
		return models.Missing()
	}
	return (cur - prev) / prev * 100
}

// ParseSeries reads an index table into a series in file order. Rows whose date
// does not parse are skipped with a warning; unparsable values become missing.
func ParseSeries(raw *models.RawTable, schema IndexSchema) (models.Series, []errs.ParseWarning, error) {
	dateCol := raw.ColumnIndex(schema.Date)
	if dateCol < 0 {
		return nil, nil, &errs.SchemaError{Source: raw.Source, Column: schema.Date}
	}
	valueCol := raw.ColumnIndex(schema.Value)
	if valueCol < 0 {
		return nil, nil, &errs.SchemaError{Source: raw.Source, Column: schema.Value}
	}
	varCol := raw.ColumnIndex(schema.Variation)

	var warnings []errs.ParseWarning
	out := make(models.Series, 0, len(raw.Records))
	for i := range raw.Records {
		cell := raw.Cell(i, dateCol)
		date, ok := util.ParseDate(cell)
		if !ok {
			warnings = append(warnings, errs.ParseWarning{Source: raw.Source, Column: schema.Date, Row: i, Raw: cell})
			continue
		}
		p := models.TimePoint{Date: date, Value: models.Missing(), VariationPct: models.Missing()}
		if v, ok := util.ParseFloat(raw.Cell(i, valueCol)); ok {
			p.Value = v
		} else if c := raw.Cell(i, valueCol); c != "" {
			warnings = append(warnings, errs.ParseWarning{Source: raw.Source, Column: schema.Value, Row: i, Raw: c})
		}
		if varCol >= 0 {
			if v, ok := util.ParseFloat(raw.Cell(i, varCol)); ok {
				p.VariationPct = v
			}
		}
		out = append(out, p)
	}
	return out, warnings, nil
}

// DateSpan returns the first and last dates of a sorted series.
func DateSpan(s models.Series) (time.Time, time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s[0].Date, s[len(s)-1].Date, true
}
