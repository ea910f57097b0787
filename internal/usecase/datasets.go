package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"gonum.org/v1/gonum/stat"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	icache "VolCast/internal/service/cache"
	"VolCast/internal/services/features"
)

// ErrNotComputed is returned when an artifact has not been produced yet.
var ErrNotComputed = errors.New("dataset not computed yet")

// DatasetPaths locates the artifacts served over HTTP.
type DatasetPaths struct {
	CombinedIndex string
	CleanedFund   string
	Forecast      string
}

// Datasets answers the read-only serving queries from the pipeline artifacts.
type Datasets struct {
	paths  DatasetPaths
	reader domrepo.ArtifactWriter
	tables *icache.TableCache
}

func NewDatasets(paths DatasetPaths, reader domrepo.ArtifactWriter, tables *icache.TableCache) *Datasets {
	return &Datasets{paths: paths, reader: reader, tables: tables}
}

func (d *Datasets) load(ctx context.Context, path string) (*models.Table, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: artifact disabled", ErrNotComputed)
	}
	t, err := d.tables.Get(ctx, path, d.reader.Read)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotComputed, path)
	}
	return t, err
}

// window returns the row range [from, n) whose dates fall in the period
// ending at the last row.
func window(t *models.Table, p domrepo.Period) (int, int) {
	n := t.Len()
	if n == 0 {
		return 0, 0
	}
	latest, _ := t.Date(n - 1)
	since := p.Since(latest)
	from := n - 1
	for from > 0 {
		d, _ := t.Date(from - 1)
		if d.Before(since) {
			break
		}
		from--
	}
	return from, n
}

func cell(t *models.Table, i int, col string) *float64 {
	v, err := t.Value(i, col)
	if err != nil {
		return nil
	}
	return models.OptFloat(v)
}

func dateAt(t *models.Table, i int) string {
	d, _ := t.Date(i)
	return models.FormatDate(d)
}

func (d *Datasets) IndexData(ctx context.Context, p domrepo.Period) ([]models.IndexPoint, error) {
	t, err := d.load(ctx, d.paths.CombinedIndex)
	if err != nil {
		return nil, err
	}
	from, to := window(t, p)
	out := make([]models.IndexPoint, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, indexPoint(t, i))
	}
	return out, nil
}

func indexPoint(t *models.Table, i int) models.IndexPoint {
	return models.IndexPoint{
		Date:         dateAt(t, i),
		Value:        cell(t, i, models.ColIndexValue),
		VariationPct: cell(t, i, models.ColVariationPct),
	}
}

func (d *Datasets) IndexLatest(ctx context.Context) (models.IndexPoint, error) {
	t, err := d.load(ctx, d.paths.CombinedIndex)
	if err != nil {
		return models.IndexPoint{}, err
	}
	if t.Len() == 0 {
		return models.IndexPoint{}, fmt.Errorf("%w: empty index", ErrNotComputed)
	}
	return indexPoint(t, t.Len()-1), nil
}

func (d *Datasets) IndexStats(ctx context.Context, p domrepo.Period) (models.SeriesStats, error) {
	t, err := d.load(ctx, d.paths.CombinedIndex)
	if err != nil {
		return models.SeriesStats{}, err
	}
	return columnStats(t, models.ColIndexValue, p, nil)
}

func (d *Datasets) FundData(ctx context.Context, p domrepo.Period) ([]models.FundPoint, error) {
	t, err := d.load(ctx, d.paths.CleanedFund)
	if err != nil {
		return nil, err
	}
	from, to := window(t, p)
	out := make([]models.FundPoint, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, fundPoint(t, i))
	}
	return out, nil
}

func fundPoint(t *models.Table, i int) models.FundPoint {
	perf := make(map[string]*float64, len(models.Horizons()))
	for _, h := range models.Horizons() {
		if t.HasColumn(h.Column()) {
			perf[h.Key()] = cell(t, i, h.Column())
		}
	}
	return models.FundPoint{
		Date:             dateAt(t, i),
		LiquidativeValue: cell(t, i, models.ColLiquidativeValue),
		Performance:      perf,
	}
}

func (d *Datasets) FundLatest(ctx context.Context) (models.FundPoint, error) {
	t, err := d.load(ctx, d.paths.CleanedFund)
	if err != nil {
		return models.FundPoint{}, err
	}
	if t.Len() == 0 {
		return models.FundPoint{}, fmt.Errorf("%w: empty fund table", ErrNotComputed)
	}
	return fundPoint(t, t.Len()-1), nil
}

func (d *Datasets) FundStats(ctx context.Context, p domrepo.Period) (models.SeriesStats, error) {
	t, err := d.load(ctx, d.paths.CleanedFund)
	if err != nil {
		return models.SeriesStats{}, err
	}
	return columnStats(t, models.ColLiquidativeValue, p, nil)
}

// forecastMask flags rows whose target was filled by the forecaster: the
// realized two-week volatility is undefined there but the target is set.
func forecastMask(t *models.Table) []bool {
	mask := make([]bool, t.Len())
	returns, err := t.Column(models.ColWeeklyReturn)
	if err != nil {
		return mask
	}
	targets, err := t.Column(models.ColTargetVol2W)
	if err != nil {
		return mask
	}
	realized := features.ForwardRMS(returns, 2)
	for i := range mask {
		mask[i] = models.IsMissing(realized[i]) && models.Defined(targets[i])
	}
	return mask
}

func volatilityPoint(t *models.Table, i int, forecast bool) models.VolatilityPoint {
	return models.VolatilityPoint{
		Date:        dateAt(t, i),
		GarchVol:    cell(t, i, models.ColGarchVol),
		TargetVol2W: cell(t, i, models.ColTargetVol2W),
		Forecast:    forecast,
	}
}

func (d *Datasets) VolatilityData(ctx context.Context, p domrepo.Period) ([]models.VolatilityPoint, error) {
	t, err := d.load(ctx, d.paths.Forecast)
	if err != nil {
		return nil, err
	}
	mask := forecastMask(t)
	from, to := window(t, p)
	out := make([]models.VolatilityPoint, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, volatilityPoint(t, i, mask[i]))
	}
	return out, nil
}

// VolatilityForecast lists the forecast rows of the latest artifact.
func (d *Datasets) VolatilityForecast(ctx context.Context) (models.ForecastSummary, error) {
	t, err := d.load(ctx, d.paths.Forecast)
	if err != nil {
		return models.ForecastSummary{}, err
	}
	return forecastSummary(t), nil
}

func forecastSummary(t *models.Table) models.ForecastSummary {
	var s models.ForecastSummary
	if t.Len() > 0 {
		s.LatestDate = dateAt(t, t.Len()-1)
	}
	s.Predictions = []models.VolatilityPoint{}
	for i, f := range forecastMask(t) {
		if f {
			s.Predictions = append(s.Predictions, volatilityPoint(t, i, true))
		}
	}
	return s
}

func (d *Datasets) DashboardStats(ctx context.Context, p domrepo.Period) (models.DashboardStats, error) {
	t, err := d.load(ctx, d.paths.Forecast)
	if err != nil {
		return models.DashboardStats{}, err
	}
	mask := forecastMask(t)
	realizedOnly := func(i int) bool { return !mask[i] }

	garch, err := columnStats(t, models.ColGarchVol, p, nil)
	if err != nil {
		return models.DashboardStats{}, err
	}
	realized, err := columnStats(t, models.ColTargetVol2W, p, realizedOnly)
	if err != nil {
		return models.DashboardStats{}, err
	}
	out := models.DashboardStats{Period: string(p), GarchVol: garch, RealizedVol: realized}
	summary := forecastSummary(t)
	out.LatestDate = summary.LatestDate
	out.ForecastRowCount = len(summary.Predictions)
	if n := len(summary.Predictions); n > 0 {
		out.LatestForecast = summary.Predictions[n-1].TargetVol2W
	}
	return out, nil
}

// FinalFundLiquidative serves the fund net asset value of the final dataset.
func (d *Datasets) FinalFundLiquidative(ctx context.Context, p domrepo.Period) ([]models.FinalPoint, error) {
	return d.finalColumn(ctx, models.ColLiquidativeValue, p)
}

// FinalIndexWeeklyMean serves the index level of the final dataset.
func (d *Datasets) FinalIndexWeeklyMean(ctx context.Context, p domrepo.Period) ([]models.FinalPoint, error) {
	return d.finalColumn(ctx, models.ColIndexValue, p)
}

func (d *Datasets) finalColumn(ctx context.Context, col string, p domrepo.Period) ([]models.FinalPoint, error) {
	t, err := d.load(ctx, d.paths.Forecast)
	if err != nil {
		return nil, err
	}
	if !t.HasColumn(col) {
		return nil, fmt.Errorf("final dataset: column %q missing", col)
	}
	from, to := window(t, p)
	out := make([]models.FinalPoint, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, models.FinalPoint{Date: dateAt(t, i), Value: cell(t, i, col)})
	}
	return out, nil
}

// columnStats summarizes the defined values of col inside the period window.
// keep, when set, filters rows further.
func columnStats(t *models.Table, col string, p domrepo.Period, keep func(int) bool) (models.SeriesStats, error) {
	values, err := t.Column(col)
	if err != nil {
		return models.SeriesStats{}, err
	}
	s := models.SeriesStats{Period: string(p)}
	from, to := window(t, p)

	var xs []float64
	var first, last time.Time
	for i := from; i < to; i++ {
		if models.IsMissing(values[i]) || (keep != nil && !keep(i)) {
			continue
		}
		d, _ := t.Date(i)
		if len(xs) == 0 {
			first = d
		}
		last = d
		xs = append(xs, values[i])
	}
	s.Count = len(xs)
	if s.Count == 0 {
		return s, nil
	}

	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = min(lo, x)
		hi = max(hi, x)
	}
	mean := stat.Mean(xs, nil)
	s.Min = models.OptFloat(lo)
	s.Max = models.OptFloat(hi)
	s.Mean = models.OptFloat(mean)
	if s.Count > 1 {
		s.Std = models.OptFloat(stat.StdDev(xs, nil))
	}
	s.Current = models.OptFloat(xs[s.Count-1])
	if xs[0] != 0 {
		s.ChangePercent = models.OptFloat((xs[s.Count-1] - xs[0]) / xs[0] * 100)
	}
	s.From = models.FormatDate(first)
	s.To = models.FormatDate(last)
	return s, nil
}
