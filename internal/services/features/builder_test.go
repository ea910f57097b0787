package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VolCast/internal/domain/models"
)

func joinedWithPerf(perf ...float64) []models.JoinedRow {
	rows := make([]models.JoinedRow, len(perf))
	for i, p := range perf {
		f := models.NewFundRecord(day(2024, 1, 5).AddDate(0, 0, 7*i))
		f.Performance[models.Horizon1W] = p
		rows[i] = models.JoinedRow{Date: f.Date, IndexValue: 100, LiquidativeValue: 10, Performance: f.Performance}
	}
	return rows
}

func TestBuildFeaturesTargetDefinition(t *testing.T) {
	perf := []float64{1.0, -2.0, 0.5, 3.0, -1.5, 0.25}
	rows := BuildFeatures(joinedWithPerf(perf...))
	require.Len(t, rows, 6)

	r := make([]float64, len(perf))
	for i, p := range perf {
		r[i] = p / 100
		assert.InDelta(t, r[i], rows[i].WeeklyReturn, 1e-15)
	}
	for i := 0; i <= 3; i++ {
		want := math.Sqrt((r[i+1]*r[i+1] + r[i+2]*r[i+2]) / 2)
		assert.InDelta(t, want, rows[i].TargetVol2W, 1e-15, "row %d", i)
	}
	assert.True(t, models.IsMissing(rows[4].TargetVol2W))
	assert.True(t, models.IsMissing(rows[5].TargetVol2W))
}

func TestBuildFeaturesLags(t *testing.T) {
	rows := BuildFeatures(joinedWithPerf(1, 2, 3, 4, 5, 6))

	assert.True(t, models.IsMissing(rows[0].ReturnLag1))
	assert.True(t, models.IsMissing(rows[1].ReturnLag2))
	assert.InDelta(t, 0.01, rows[1].ReturnLag1, 1e-15)
	assert.InDelta(t, 0.02, rows[3].ReturnLag2, 1e-15)

	for i := 3; i < 6; i++ {
		assert.Equal(t, rows[i-1].TargetVol2W, rows[i].TargetVol2WLag1, "lag1 row %d", i)
		assert.Equal(t, rows[i-2].TargetVol2W, rows[i].TargetVol2WLag2, "lag2 row %d", i)
		assert.Equal(t, rows[i-3].TargetVol2W, rows[i].TargetVol2WLag3, "lag3 row %d", i)
	}
	assert.True(t, models.IsMissing(rows[2].TargetVol2WLag3))
}

func TestBuildFeaturesMissingReturnPropagates(t *testing.T) {
	rows := BuildFeatures(joinedWithPerf(1, math.NaN(), 3, 4, 5))
	assert.True(t, models.IsMissing(rows[1].WeeklyReturn))
	assert.True(t, models.IsMissing(rows[0].TargetVol2W), "needs r1")
	assert.False(t, models.IsMissing(rows[1].TargetVol2W), "needs r2 and r3 only")
}

func TestAttachVolatility(t *testing.T) {
	rows := BuildFeatures(joinedWithPerf(1, math.NaN(), 3, 4))
	returns, pos := DefinedReturns(rows)
	require.Equal(t, []int{0, 2, 3}, pos)
	require.Len(t, returns, 3)

	require.NoError(t, AttachVolatility(rows, pos, []float64{0.1, 0.2, 0.3}))
	assert.Equal(t, 0.1, rows[0].GarchVol)
	assert.True(t, models.IsMissing(rows[1].GarchVol))
	assert.Equal(t, 0.2, rows[2].GarchVol)
	assert.True(t, models.IsMissing(rows[2].GarchVolLag1))
	assert.Equal(t, 0.1, rows[2].GarchVolLag2)
	assert.Equal(t, 0.2, rows[3].GarchVolLag1)

	assert.Error(t, AttachVolatility(rows, pos, []float64{0.1}))
}

func TestJoinInnerAscending(t *testing.T) {
	s := models.Series{
		{Date: day(2024, 1, 5), Value: 1},
		{Date: day(2024, 1, 12), Value: 2},
		{Date: day(2024, 1, 19), Value: 3},
	}
	funds := []models.FundRecord{
		models.NewFundRecord(day(2024, 1, 19)),
		models.NewFundRecord(day(2024, 1, 5)),
		models.NewFundRecord(day(2024, 2, 2)),
	}
	funds[0].LiquidativeValue = 19

	rows := Join(s, funds)
	require.Len(t, rows, 2)
	assert.Equal(t, day(2024, 1, 5), rows[0].Date)
	assert.Equal(t, day(2024, 1, 19), rows[1].Date)
	assert.Equal(t, 3.0, rows[1].IndexValue)
	assert.Equal(t, 19.0, rows[1].LiquidativeValue)
}
