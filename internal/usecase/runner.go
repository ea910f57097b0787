package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolCast/internal/domain/models"
	icache "VolCast/internal/service/cache"
	pkgcache "VolCast/pkg/cache"
	"VolCast/pkg/logger"
)

const runLockKey = "lock:pipeline-run"

var (
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("pipeline run already in progress")
	// ErrRunTimeout marks a run aborted by its deadline.
	ErrRunTimeout = errors.New("pipeline run timed out")
)

// Runner triggers pipeline runs under a deadline, one at a time, and drops
// the serving cache once a run has rewritten the artifacts.
type Runner struct {
	pipeline       *Pipeline
	locks          pkgcache.Service
	tables         *icache.TableCache
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	log            *logger.Logger
}

func NewRunner(p *Pipeline, locks pkgcache.Service, tables *icache.TableCache, defaultTimeout, maxTimeout time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	if maxTimeout < defaultTimeout {
		maxTimeout = defaultTimeout
	}
	return &Runner{
		pipeline:       p,
		locks:          locks,
		tables:         tables,
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
		log:            log,
	}
}

// Timeout clamps a requested deadline: zero or negative selects the default,
// anything above the maximum is capped.
func (r *Runner) Timeout(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return r.defaultTimeout
	case requested > r.maxTimeout:
		return r.maxTimeout
	default:
		return requested
	}
}

// Run executes the pipeline under timeout. A run exceeding its deadline
// returns an error matching ErrRunTimeout; any other failure is returned as is
// so callers can read its taxonomy code.
func (r *Runner) Run(ctx context.Context, timeout time.Duration) (*models.RunReport, error) {
	timeout = r.Timeout(timeout)

	ok, err := r.locks.TryLock(ctx, runLockKey, timeout+time.Minute)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := r.locks.Unlock(context.WithoutCancel(ctx), runLockKey); err != nil {
			r.log.Warn("release run lock failed", logger.Error(err))
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := r.pipeline.Run(rctx)
	r.invalidate(ctx)
	if err != nil {
		fields := []logger.Field{
			logger.String("run_id", report.RunID),
			logger.String("status", string(report.Status)),
			logger.Duration("timeout", timeout),
			logger.Error(err),
		}
		if report.Status == models.RunTimedOut {
			r.log.Error("pipeline run timed out", fields...)
			return report, errors.Join(ErrRunTimeout, err)
		}
		r.log.Error("pipeline run failed", append(fields, logger.String("code", report.ErrorCode))...)
		return report, err
	}
	return report, nil
}

func (r *Runner) invalidate(ctx context.Context) {
	if r.tables == nil {
		return
	}
	if err := r.tables.Invalidate(context.WithoutCancel(ctx)); err != nil {
		r.log.Warn("table cache invalidation failed", logger.Error(err))
	}
}
