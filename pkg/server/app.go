package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"VolCast/internal/domain/models"
	"VolCast/pkg/config"
	xhttp "VolCast/pkg/http"
	applogger "VolCast/pkg/logger"
)

// Runner triggers one pipeline run under a deadline.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration) (*models.RunReport, error)
}

// App encapsulates the serving process: the HTTP server plus optional
// cron-scheduled reruns.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    xhttp.Handler
	runner     Runner
	httpServer *xhttp.Server
	cron       *cron.Cron
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, h xhttp.Handler, runner Runner) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l, handler: h, runner: runner}
}

// Run starts the application and blocks until ctx is done or an interrupt
// arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	)

	if err := a.startSchedule(ctx); err != nil {
		return err
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// startSchedule registers the rerun job when a schedule is configured.
func (a *App) startSchedule(ctx context.Context) error {
	if !a.cfg.Schedule.Enabled || a.runner == nil {
		return nil
	}
	a.cron = cron.New()
	_, err := a.cron.AddFunc(a.cfg.Schedule.Cron, func() { a.scheduledRun(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.Schedule.Cron, err)
	}
	a.cron.Start()
	a.log.Info("scheduled reruns enabled", applogger.String("cron", a.cfg.Schedule.Cron))
	return nil
}

func (a *App) scheduledRun(ctx context.Context) {
	report, err := a.runner.Run(ctx, a.cfg.Runner.DefaultTimeout)
	if err != nil {
		a.log.Error("scheduled run failed", applogger.Error(err))
		return
	}
	a.log.Info("scheduled run finished",
		applogger.String("run_id", report.RunID),
		applogger.Date("latest_date", report.LatestDate),
		applogger.Duration("took", report.Duration()))
}

// shutdown stops the scheduler first so no run starts mid-shutdown, then
// drains the HTTP server.
func (a *App) shutdown() error {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.log.Info("shutdown complete")
	return nil
}
