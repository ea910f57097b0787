package repository

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	"VolCast/pkg/util"
)

// NewArtifactWriter returns the writer for format (csv, parquet, json), nil if unsupported.
func NewArtifactWriter(format string) domrepo.ArtifactWriter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVArtifact{}
	case "parquet":
		return ParquetArtifact{}
	case "json":
		return JSONArtifact{}
	default:
		return nil
	}
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place, so readers never observe a partial artifact.
func writeAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CSVArtifact writes a "date" column followed by the table columns. Missing
// cells are empty.
type CSVArtifact struct{}

func (CSVArtifact) Extension() string { return "csv" }

func (CSVArtifact) Write(ctx context.Context, path string, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cols := t.Columns()
	return writeAtomic(path, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := w.Write(append([]string{models.ColDate}, cols...)); err != nil {
			return err
		}
		rec := make([]string, len(cols)+1)
		for i := 0; i < t.Len(); i++ {
			d, _ := t.Date(i)
			vals, err := t.Vector(i, cols)
			if err != nil {
				return err
			}
			rec[0] = util.FormatDate(d)
			for j, v := range vals {
				rec[j+1] = util.FormatFloat(v)
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func (CSVArtifact) Read(ctx context.Context, path string) (*models.Table, error) {
	raw, err := CSVSource{}.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return TableFromRaw(raw)
}

// TableFromRaw parses a raw table whose "date" column is ISO formatted and
// whose other columns are plain floats.
func TableFromRaw(raw *models.RawTable) (*models.Table, error) {
	dateCol := raw.ColumnIndex(models.ColDate)
	if dateCol < 0 {
		return nil, fmt.Errorf("%s: no %q column", raw.Source, models.ColDate)
	}
	var cols []string
	var idx []int
	for j, h := range raw.Header {
		if j != dateCol {
			cols = append(cols, h)
			idx = append(idx, j)
		}
	}
	dates := make([]time.Time, len(raw.Records))
	for i := range raw.Records {
		d, ok := util.ParseDate(raw.Cell(i, dateCol))
		if !ok {
			return nil, fmt.Errorf("%s: row %d: bad date %q", raw.Source, i, raw.Cell(i, dateCol))
		}
		dates[i] = d
	}
	t := models.NewTable(cols, dates)
	for i := range raw.Records {
		for k, j := range idx {
			v, _ := util.ParseFloat(raw.Cell(i, j))
			if err := t.SetValue(i, cols[k], v); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// JSONArtifact stores the table JSON encoding (missing cells as null).
type JSONArtifact struct{}

func (JSONArtifact) Extension() string { return "json" }

func (JSONArtifact) Write(ctx context.Context, path string, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(t)
	})
}

func (JSONArtifact) Read(ctx context.Context, path string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var t models.Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &t, nil
}

// featureRecord is the Parquet row layout. Every table the pipeline writes uses
// a subset of these columns; absent columns are stored as nulls.
type featureRecord struct {
	Date             string   `parquet:"date"`
	IndexValue       *float64 `parquet:"index_value,optional"`
	VariationPct     *float64 `parquet:"variation_pct,optional"`
	LiquidativeValue *float64 `parquet:"liquidative_value,optional"`
	PerfYTD          *float64 `parquet:"perf_ytd,optional"`
	Perf1W           *float64 `parquet:"perf_1w,optional"`
	Perf6M           *float64 `parquet:"perf_6m,optional"`
	Perf1Y           *float64 `parquet:"perf_1y,optional"`
	Perf2Y           *float64 `parquet:"perf_2y,optional"`
	Perf3Y           *float64 `parquet:"perf_3y,optional"`
	Perf5Y           *float64 `parquet:"perf_5y,optional"`
	WeeklyReturn     *float64 `parquet:"weekly_return,optional"`
	ReturnLag1       *float64 `parquet:"return_lag_1,optional"`
	ReturnLag2       *float64 `parquet:"return_lag_2,optional"`
	GarchVol         *float64 `parquet:"garch_vol,optional"`
	GarchVolLag1     *float64 `parquet:"garch_vol_lag_1,optional"`
	GarchVolLag2     *float64 `parquet:"garch_vol_lag_2,optional"`
	TargetVol2W      *float64 `parquet:"target_vol_2w,optional"`
	TargetVol2WLag1  *float64 `parquet:"target_vol_2w_lag_1,optional"`
	TargetVol2WLag2  *float64 `parquet:"target_vol_2w_lag_2,optional"`
	TargetVol2WLag3  *float64 `parquet:"target_vol_2w_lag_3,optional"`
}

func (r *featureRecord) fields() []**float64 {
	return []**float64{
		&r.IndexValue, &r.VariationPct, &r.LiquidativeValue,
		&r.PerfYTD, &r.Perf1W, &r.Perf6M, &r.Perf1Y, &r.Perf2Y, &r.Perf3Y, &r.Perf5Y,
		&r.WeeklyReturn, &r.ReturnLag1, &r.ReturnLag2,
		&r.GarchVol, &r.GarchVolLag1, &r.GarchVolLag2,
		&r.TargetVol2W, &r.TargetVol2WLag1, &r.TargetVol2WLag2, &r.TargetVol2WLag3,
	}
}

// ParquetArtifact stores tables as Parquet files with the featureRecord schema.
type ParquetArtifact struct{}

func (ParquetArtifact) Extension() string { return "parquet" }

func (ParquetArtifact) Write(ctx context.Context, path string, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cols := models.FeatureColumns()
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c] = true
	}
	for _, c := range t.Columns() {
		if !known[c] {
			return fmt.Errorf("parquet artifact: unsupported column %q", c)
		}
	}

	records := make([]featureRecord, t.Len())
	for i := range records {
		d, _ := t.Date(i)
		records[i].Date = util.FormatDate(d)
		fields := records[i].fields()
		for j, c := range cols {
			if !t.HasColumn(c) {
				continue
			}
			v, err := t.Value(i, c)
			if err != nil {
				return err
			}
			*fields[j] = models.OptFloat(v)
		}
	}
	return writeAtomic(path, func(w io.Writer) error {
		return parquet.Write(w, records)
	})
}

func (ParquetArtifact) Read(ctx context.Context, path string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	records, err := parquet.ReadFile[featureRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	cols := models.FeatureColumns()
	dates := make([]time.Time, len(records))
	for i := range records {
		d, ok := util.ParseDate(records[i].Date)
		if !ok {
			return nil, fmt.Errorf("%s: row %d: bad date %q", path, i, records[i].Date)
		}
		dates[i] = d
	}
	t := models.NewTable(cols, dates)
	for i := range records {
		for j, p := range records[i].fields() {
			if *p == nil {
				continue
			}
			if err := t.SetValue(i, cols[j], **p); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

var (
	_ domrepo.ArtifactWriter = CSVArtifact{}
	_ domrepo.ArtifactWriter = JSONArtifact{}
	_ domrepo.ArtifactWriter = ParquetArtifact{}
)
