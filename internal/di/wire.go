//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"VolCast/internal/usecase"
	"VolCast/pkg/config"
	"VolCast/pkg/server"
)

var pipelineSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideForecaster,
	ProvideVolatilityEstimator,
	ProvideTableSource,
	ProvideArtifactWriter,
	ProvideForecastStore,
	ProvideRunPublisher,
	ProvidePipeline,
	ProvideCache,
	ProvideTableCache,
	ProvideRunner,
)

// InitializeRunner wires a Runner for one-shot CLI runs.
func InitializeRunner(cfg *config.Config) (*usecase.Runner, func(), error) {
	wire.Build(pipelineSet)
	return nil, nil, nil
}

// InitializeApp wires up all dependencies and returns the serving application.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		pipelineSet,
		ProvideDatasets,
		ProvideLimiter,
		ProvideHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
