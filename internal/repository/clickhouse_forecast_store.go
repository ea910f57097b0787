package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	applogger "VolCast/pkg/logger"
)

// sqlDB is the subset of *sql.DB the store uses.
type sqlDB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// CHForecastStore appends forecast tables to a ClickHouse MergeTree, one row
// per date, tagged with the run id.
type CHForecastStore struct {
	db       sqlDB
	database string
	table    string
	l        *applogger.Logger
}

func NewCHForecastStore(db sqlDB, database, table string, l *applogger.Logger) *CHForecastStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHForecastStore{db: db, database: database, table: table, l: l}
}

var _ domrepo.ForecastStore = (*CHForecastStore)(nil)

func (s *CHForecastStore) qualified() string {
	return s.database + "." + s.table
}

// Schema returns the idempotent DDL for the store.
func (s *CHForecastStore) Schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            run_id String,
            run_at DateTime,
            date Date,
            garch_vol Nullable(Float64),
            target_vol_2w Nullable(Float64),
            forecast UInt8
        ) ENGINE = MergeTree ORDER BY (date, run_at)`, s.qualified()),
	}
}

func (s *CHForecastStore) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// StoreForecast inserts the garch and target columns of t. Rows whose target
// was filled by the run are flagged with forecast=1.
func (s *CHForecastStore) StoreForecast(ctx context.Context, report *models.RunReport, t *models.Table) error {
	if t.Len() == 0 {
		return nil
	}
	start := time.Now()
	runID := report.RunID
	runAt := report.StartedAt.UTC().Truncate(time.Second)
	predicted := make(map[time.Time]bool, len(report.Predictions))
	for _, p := range report.Predictions {
		predicted[p.Date] = true
	}

	const chunkSize = 1000
	for from := 0; from < t.Len(); from += chunkSize {
		to := min(from+chunkSize, t.Len())
		values := make([]string, 0, to-from)
		args := make([]any, 0, (to-from)*6)
		for i := from; i < to; i++ {
			d, err := t.Date(i)
			if err != nil {
				return err
			}
			vol, _ := t.Value(i, models.ColGarchVol)
			target, _ := t.Value(i, models.ColTargetVol2W)
			flag := uint8(0)
			if predicted[d] {
				flag = 1
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, runID, runAt, d, models.OptFloat(vol), models.OptFloat(target), flag)
		}
		q := fmt.Sprintf("INSERT INTO %s (run_id, run_at, date, garch_vol, target_vol_2w, forecast) VALUES %s",
			s.qualified(), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse insert forecast error",
				applogger.String("table", s.qualified()),
				applogger.String("run_id", runID),
				applogger.Error(err))
			return fmt.Errorf("insert forecast: %w", err)
		}
	}
	s.l.Debug("forecast stored",
		applogger.String("table", s.qualified()),
		applogger.Int("rows", t.Len()),
		applogger.Duration("took", time.Since(start)))
	return nil
}

func (s *CHForecastStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHForecastStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}
