package features

import (
	"sort"
	"time"

	"VolCast/internal/domain/models"
)

// Join inner-joins the aligned series with the fund records on date. Dates
// present on only one side are dropped. A date repeated in the fund report keeps
// its last record; a date repeated in the series keeps its first point. Output is
// ascending by date.
func Join(series models.Series, funds []models.FundRecord) []models.JoinedRow {
	byDate := make(map[time.Time]models.FundRecord, len(funds))
	for _, f := range funds {
		byDate[f.Date] = f
	}

	out := make([]models.JoinedRow, 0, min(len(series), len(byDate)))
	seen := make(map[time.Time]bool, len(series))
	for _, p := range series {
		f, ok := byDate[p.Date]
		if !ok || seen[p.Date] {
			continue
		}
		seen[p.Date] = true
		out = append(out, models.JoinedRow{
			Date:             p.Date,
			IndexValue:       p.Value,
			VariationPct:     p.VariationPct,
			LiquidativeValue: f.LiquidativeValue,
			Performance:      f.Performance,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
