package features

import (
	"strings"

	"github.com/shopspring/decimal"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
	"VolCast/pkg/util"
)

// Cleaner normalizes the fund report into FundRecords.
type Cleaner struct {
	schema FundSchema
}

func NewCleaner(schema FundSchema) *Cleaner {
	return &Cleaner{schema: schema}
}

// Clean converts raw fund rows. The date and liquidative-value columns are
// required; every other column is optional and missing columns yield missing
// cells. Dropped identifier columns are never read.
func (c *Cleaner) Clean(raw *models.RawTable) ([]models.FundRecord, []errs.ParseWarning, error) {
	dateCol := raw.ColumnIndex(c.schema.Date)
	if dateCol < 0 {
		return nil, nil, &errs.SchemaError{Source: raw.Source, Column: c.schema.Date}
	}
	liqCol := raw.ColumnIndex(c.schema.Liquidative)
	if liqCol < 0 {
		return nil, nil, &errs.SchemaError{Source: raw.Source, Column: c.schema.Liquidative}
	}

	dropped := make(map[string]bool, len(c.schema.Drop))
	for _, d := range c.schema.Drop {
		dropped[d] = true
	}
	perfCols := make(map[models.Horizon]int, len(c.schema.Performance))
	for h, name := range c.schema.Performance {
		if dropped[name] {
			continue
		}
		if j := raw.ColumnIndex(name); j >= 0 {
			perfCols[h] = j
		}
	}

	var warnings []errs.ParseWarning
	warn := func(col string, row int, cell string) {
		warnings = append(warnings, errs.ParseWarning{Source: raw.Source, Column: col, Row: row, Raw: cell})
	}

	out := make([]models.FundRecord, 0, len(raw.Records))
	for i := range raw.Records {
		cell := raw.Cell(i, dateCol)
		date, ok := util.ParseDate(cell)
		if !ok {
			warn(c.schema.Date, i, cell)
			continue
		}
		rec := models.NewFundRecord(date)

		cell = raw.Cell(i, liqCol)
		if v, ok := NormalizeDecimal(cell); ok {
			rec.LiquidativeValue = v
		} else if !isBlank(cell) {
			warn(c.schema.Liquidative, i, cell)
		}

		for h, j := range perfCols {
			cell = raw.Cell(i, j)
			if v, ok := NormalizePercent(cell); ok {
				rec.Performance[h] = v
			} else if !isBlank(cell) {
				warn(c.schema.Performance[h], i, cell)
			}
		}
		out = append(out, rec)
	}
	return out, warnings, nil
}

// NormalizePercent parses a locale-formatted percentage such as "1,25 %" into
// 1.25. The percent sign is stripped and comma decimal separators become dots.
// Blank and unparsable cells return (Missing(), false); zero is a valid value.
func NormalizePercent(s string) (float64, bool) {
	return NormalizeDecimal(strings.ReplaceAll(s, "%", ""))
}

// NormalizeDecimal parses a comma-decimal number such as "1234,5". A percent
// sign is not accepted.
func NormalizeDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", ".")
	if isBlank(s) {
		return models.Missing(), false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return models.Missing(), false
	}
	return d.InexactFloat64(), true
}

func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null")
}
