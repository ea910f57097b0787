package features

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/errs"
	"VolCast/internal/domain/models"
)

func TestNormalizePercent(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,25%", 1.25, true},
		{" -0,40 % ", -0.4, true},
		{"0%", 0, true},
		{"0,00", 0, true},
		{"3.5", 3.5, true},
		{"", 0, false},
		{"nan", 0, false},
		{"n/a", 0, false},
		{"1,2,3", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := NormalizePercent(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-12)
			} else {
				assert.True(t, models.IsMissing(got))
			}
		})
	}
}

func TestNormalizeDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1234,5", 1234.5, true},
		{" 1000,00 ", 1000, true},
		{"987.25", 987.25, true},
		{"12,5%", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := NormalizeDecimal(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-12)
			} else {
				assert.True(t, models.IsMissing(got))
			}
		})
	}
}

func TestCleanLiquidativeRejectsPercent(t *testing.T) {
	raw := fundRaw(
		[]string{"2024-01-05", "ATTIJARI", "1234,5", "0,10%", "12,1%", "3 ans"},
		[]string{"2024-01-12", "ATTIJARI", "12,5%", "0,20%", "11,9%", "3 ans"},
	)
	recs, warnings, err := NewCleaner(DefaultFundSchema()).Clean(raw)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1234.5, recs[0].LiquidativeValue)
	assert.True(t, models.IsMissing(recs[1].LiquidativeValue))
	require.Len(t, warnings, 1)
	assert.Equal(t, "Valeur Liquidative", warnings[0].Column)
}

func fundRaw(records ...[]string) *models.RawTable {
	return &models.RawTable{
		Source: "fund.csv",
		Header: []string{"Date", "Fonds", "Valeur Liquidative", "Performances glissantes 1 semaine", "Performances glissantes 1 an", "Horizon minimum conseillé"},
		Records: records,
	}
}

func TestCleanMissingDistinctFromZero(t *testing.T) {
	raw := fundRaw(
		[]string{"2024-01-05", "ATTIJARI", "1234,5", "0,00%", "12,1%", "3 ans"},
		[]string{"2024-01-12", "ATTIJARI", "1240", "-", "11,9%", "3 ans"},
	)
	recs, warnings, err := NewCleaner(DefaultFundSchema()).Clean(raw)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 1234.5, recs[0].LiquidativeValue)
	assert.Equal(t, 0.0, recs[0].Performance[models.Horizon1W])
	assert.False(t, models.IsMissing(recs[0].Performance[models.Horizon1W]))
	assert.InDelta(t, 12.1, recs[0].Performance[models.Horizon1Y], 1e-12)

	assert.True(t, models.IsMissing(recs[1].Performance[models.Horizon1W]))
	assert.True(t, models.IsMissing(recs[1].Performance[models.Horizon5Y]), "absent column yields missing")

	require.Len(t, warnings, 1)
	assert.Equal(t, "Performances glissantes 1 semaine", warnings[0].Column)
	assert.Equal(t, 1, warnings[0].Row)
	assert.Equal(t, "-", warnings[0].Raw)
}

func TestCleanRequiresLoadBearingColumns(t *testing.T) {
	for _, col := range []string{"Date", "Valeur Liquidative"} {
		t.Run(col, func(t *testing.T) {
			raw := fundRaw()
			for i, h := range raw.Header {
				if h == col {
					raw.Header[i] = "renamed"
				}
			}
			_, _, err := NewCleaner(DefaultFundSchema()).Clean(raw)
			var se *errs.SchemaError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, col, se.Column)
			assert.Equal(t, "fund.csv", se.Source)
		})
	}
}
