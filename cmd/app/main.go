package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"VolCast/internal/di"
	"VolCast/pkg/config"
	"VolCast/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "volcast",
	Short:         "Weekly fund volatility forecasting pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the batch pipeline once and write the forecast artifact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		runner, cleanup, err := di.InitializeRunner(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer cleanup()

		l, err := logger.New(&cfg.Log)
		if err != nil {
			return err
		}
		report, err := runner.Run(cmd.Context(), timeout)
		if err != nil {
			return err
		}
		l.Info("pipeline run finished",
			logger.String("run_id", report.RunID),
			logger.Int("rows", report.Rows),
			logger.Int("known_targets", report.KnownTargets),
			logger.Int("predictions", len(report.Predictions)),
			logger.Date("latest_date", report.LatestDate),
			logger.String("artifact", report.Artifact),
			logger.Duration("took", report.Duration()))
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the computed datasets over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadWithEnv(configPath)
		if err != nil {
			return err
		}
		app, cleanup, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer cleanup()
		return app.Run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	runCmd.Flags().Duration("timeout", 0, "run deadline, 0 selects runner.default_timeout")
	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "volcast: %v\n", err)
		os.Exit(1)
	}
}
