package features

import (
	"fmt"
	"math"

	"VolCast/internal/domain/models"
)

// BuildFeatures derives weekly returns, return lags, the forward two-week
// realized-volatility target and its lags. No row is dropped; undefined cells
// are missing. The last two rows never have a target.
func BuildFeatures(rows []models.JoinedRow) []models.FeatureRow {
	out := make([]models.FeatureRow, len(rows))
	for i := range rows {
		out[i] = models.NewFeatureRow(rows[i])
		out[i].WeeklyReturn = weeklyReturn(rows[i].Performance[models.Horizon1W])
	}

	returns := make([]float64, len(out))
	for i := range out {
		returns[i] = out[i].WeeklyReturn
	}
	lag1, lag2 := Shift(returns, 1), Shift(returns, 2)
	target := ForwardRMS(returns, 2)
	tl1, tl2, tl3 := Shift(target, 1), Shift(target, 2), Shift(target, 3)

	for i := range out {
		out[i].ReturnLag1 = lag1[i]
		out[i].ReturnLag2 = lag2[i]
		out[i].TargetVol2W = target[i]
		out[i].TargetVol2WLag1 = tl1[i]
		out[i].TargetVol2WLag2 = tl2[i]
		out[i].TargetVol2WLag3 = tl3[i]
	}
	return out
}

func weeklyReturn(perf1w float64) float64 {
	if models.IsMissing(perf1w) {
		return models.Missing()
	}
	return perf1w / 100
}

// Shift returns xs moved down by k positions; the first k cells are missing.
func Shift(xs []float64, k int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		if i-k < 0 || i-k >= len(xs) {
			out[i] = models.Missing()
			continue
		}
		out[i] = xs[i-k]
	}
	return out
}

// ForwardRMS returns sqrt(mean(xs[i+1..i+h]^2)). It is missing when any of the
// next h values is missing or beyond the end.
func ForwardRMS(xs []float64, h int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		if i+h >= len(xs) {
			out[i] = models.Missing()
			continue
		}
		sum := 0.0
		for k := 1; k <= h; k++ {
			sum += xs[i+k] * xs[i+k]
		}
		out[i] = math.Sqrt(sum / float64(h))
	}
	return out
}

// DefinedReturns extracts the non-missing weekly returns with their row positions.
func DefinedReturns(rows []models.FeatureRow) ([]float64, []int) {
	returns := make([]float64, 0, len(rows))
	positions := make([]int, 0, len(rows))
	for i := range rows {
		if models.Defined(rows[i].WeeklyReturn) {
			returns = append(returns, rows[i].WeeklyReturn)
			positions = append(positions, i)
		}
	}
	return returns, positions
}

// AttachVolatility scatters fitted volatility back to the rows it was estimated
// from and fills the garch_vol lags. Rows without a return keep a missing garch_vol.
func AttachVolatility(rows []models.FeatureRow, positions []int, vol []float64) error {
	if len(positions) != len(vol) {
		return fmt.Errorf("attach volatility: %d positions for %d values", len(positions), len(vol))
	}
	garch := make([]float64, len(rows))
	for i := range garch {
		garch[i] = models.Missing()
	}
	for k, pos := range positions {
		if pos < 0 || pos >= len(rows) {
			return fmt.Errorf("attach volatility: position %d out of range (len %d)", pos, len(rows))
		}
		garch[pos] = vol[k]
	}
	lag1, lag2 := Shift(garch, 1), Shift(garch, 2)
	for i := range rows {
		rows[i].GarchVol = garch[i]
		rows[i].GarchVolLag1 = lag1[i]
		rows[i].GarchVolLag2 = lag2[i]
	}
	return nil
}
