package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
	domsvc "VolCast/internal/domain/service"
	"VolCast/internal/handler/api"
	internalrepo "VolCast/internal/repository"
	icache "VolCast/internal/service/cache"
	"VolCast/internal/service/ratelimit"
	"VolCast/internal/services/analytics"
	"VolCast/internal/services/features"
	"VolCast/internal/usecase"
	pkgcache "VolCast/pkg/cache"
	pkgch "VolCast/pkg/clickhouse"
	"VolCast/pkg/config"
	pkgkafka "VolCast/pkg/kafka"
	"VolCast/pkg/logger"
	"VolCast/pkg/metrics"
	"VolCast/pkg/server"
)

// Version is reported by GET /.
var Version = "dev"

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideForecaster selects the regression backend once at startup.
func ProvideForecaster(cfg *config.Config, l *logger.Logger, m domrepo.Metrics) *analytics.Forecaster {
	gbt := analytics.GBTParams{
		NEstimators:     cfg.Model.GBT.NEstimators,
		LearningRate:    cfg.Model.GBT.LearningRate,
		MaxDepth:        cfg.Model.GBT.MaxDepth,
		MinChildWeight:  cfg.Model.GBT.MinChildWeight,
		Subsample:       cfg.Model.GBT.Subsample,
		ColsampleByTree: cfg.Model.GBT.ColsampleByTree,
		Lambda:          cfg.Model.GBT.Lambda,
		Seed:            cfg.Model.Seed,
	}
	forest := analytics.ForestParams{
		NEstimators:    cfg.Model.Forest.NEstimators,
		MaxDepth:       cfg.Model.Forest.MaxDepth,
		MinSamplesLeaf: cfg.Model.Forest.MinSamplesLeaf,
		Workers:        cfg.Model.Forest.Workers,
		Seed:           cfg.Model.Seed,
	}
	registry := analytics.NewRegistry(gbt, forest)
	return analytics.NewForecaster(analytics.SelectBackend(registry, cfg.Model.Backend, l), l, m)
}

func ProvideVolatilityEstimator() domsvc.VolatilityEstimator {
	return analytics.NewGarchEstimator()
}

// ProvideTableSource dispatches input files to the CSV or XLSX reader by extension.
func ProvideTableSource(cfg *config.Config) domrepo.TableSource {
	return internalrepo.NewMultiSource(internalrepo.CSVSource{}, internalrepo.XLSXSource{Sheet: cfg.Sources.Sheet})
}

func ProvideArtifactWriter(cfg *config.Config) (domrepo.ArtifactWriter, error) {
	w := internalrepo.NewArtifactWriter(cfg.Outputs.Format)
	if w == nil {
		return nil, fmt.Errorf("unsupported artifact format %q", cfg.Outputs.Format)
	}
	return w, nil
}

// ProvideCache returns the in-process cache, layered over Redis when enabled.
// The same store backs the table cache and the run lock.
func ProvideCache(cfg *config.Config, l *logger.Logger) (pkgcache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Serving.CacheSize),
			pkgcache.WithMemoryCleanup(cfg.Serving.CacheTTL),
		)
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Addr),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(cfg.Serving.CacheSize))
	l.Info("redis cache enabled", logger.String("addr", cfg.Redis.Addr))
	return lc, func() {
		if err := lc.Close(); err != nil {
			l.Warn("cache close error", logger.Error(err))
		}
	}, nil
}

func ProvideTableCache(store pkgcache.Service, cfg *config.Config, l *logger.Logger) *icache.TableCache {
	return icache.NewTableCache(store, cfg.Serving.CacheTTL, l)
}

// ProvideForecastStore connects the optional ClickHouse sink and creates its
// table. Disabled configs yield a nil store.
func ProvideForecastStore(cfg *config.Config, l *logger.Logger) (domrepo.ForecastStore, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}

	store := internalrepo.NewCHForecastStore(client.DB(), cfg.ClickHouse.Database, cfg.ClickHouse.Table, l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse forecast store ready", logger.String("database", cfg.ClickHouse.Database))
	return store, cleanup, nil
}

// ProvideRunPublisher creates the optional Kafka run-event sink.
func ProvideRunPublisher(cfg *config.Config, l *logger.Logger) (domrepo.RunPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithTopic(cfg.Kafka.Topic),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaRunPublisher(producer)
	l.Info("kafka run publisher ready", logger.Strings("brokers", cfg.Kafka.Brokers), logger.String("topic", cfg.Kafka.Topic))
	return pub, func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}, nil
}

// IndexSchema maps the configured index headers.
func IndexSchema(cfg *config.Config) features.IndexSchema {
	return features.IndexSchema{
		Date:      cfg.Columns.Date,
		Value:     cfg.Columns.IndexValue,
		Variation: cfg.Columns.Variation,
	}
}

// FundSchema maps the configured fund headers. Performance headers are merged
// over the built-in ones by horizon key; unknown keys are ignored.
func FundSchema(cfg *config.Config) features.FundSchema {
	s := features.DefaultFundSchema()
	s.Date = cfg.Columns.Date
	s.Liquidative = cfg.Columns.Liquidative
	if cfg.Columns.Drop != nil {
		s.Drop = cfg.Columns.Drop
	}
	for key, header := range cfg.Columns.Performance {
		if h, ok := models.ParseHorizon(key); ok {
			s.Performance[h] = header
		}
	}
	return s
}

// ForecastFeatures returns the regressor inputs. AllFeatures selects every
// column but the target.
func ForecastFeatures(cfg *config.Config) []string {
	switch {
	case cfg.Model.AllFeatures:
		return nil
	case len(cfg.Model.Features) > 0:
		return cfg.Model.Features
	default:
		return analytics.DefaultModelFeatures
	}
}

func ProvidePipeline(
	cfg *config.Config,
	source domrepo.TableSource,
	writer domrepo.ArtifactWriter,
	vol domsvc.VolatilityEstimator,
	forecaster *analytics.Forecaster,
	store domrepo.ForecastStore,
	pub domrepo.RunPublisher,
	m domrepo.Metrics,
	l *logger.Logger,
) *usecase.Pipeline {
	p := usecase.NewPipeline(usecase.PipelineOptions{
		Paths: usecase.PipelinePaths{
			HistoricalIndex: cfg.SourcePath(cfg.Sources.HistoricalIndex),
			WeeklyIndex:     cfg.SourcePath(cfg.Sources.WeeklyIndex),
			Fund:            cfg.SourcePath(cfg.Sources.Fund),
			CombinedIndex:   cfg.OutputPath(cfg.Outputs.CombinedIndex),
			CleanedFund:     cfg.OutputPath(cfg.Outputs.CleanedFund),
			Features:        cfg.OutputPath(cfg.Outputs.Features),
			Forecast:        cfg.OutputPath(cfg.Outputs.Forecast),
		},
		WeeklyOffsetDays: cfg.Sources.WeeklyOffsetDays,
		IndexSchema:      IndexSchema(cfg),
		FundSchema:       FundSchema(cfg),
		Forecast: analytics.ForecastOptions{
			Target:   cfg.Model.Target,
			Features: ForecastFeatures(cfg),
		},
	}, source, writer, vol, forecaster, m, l)
	if store != nil {
		p.WithStore(store)
	}
	if pub != nil {
		p.WithPublisher(pub)
	}
	return p
}

func ProvideRunner(p *usecase.Pipeline, locks pkgcache.Service, tables *icache.TableCache, cfg *config.Config, l *logger.Logger) *usecase.Runner {
	return usecase.NewRunner(p, locks, tables, cfg.Runner.DefaultTimeout, cfg.Runner.MaxTimeout, l)
}

func ProvideDatasets(cfg *config.Config, reader domrepo.ArtifactWriter, tables *icache.TableCache) *usecase.Datasets {
	return usecase.NewDatasets(usecase.DatasetPaths{
		CombinedIndex: cfg.OutputPath(cfg.Outputs.CombinedIndex),
		CleanedFund:   cfg.OutputPath(cfg.Outputs.CleanedFund),
		Forecast:      cfg.OutputPath(cfg.Outputs.Forecast),
	}, reader, tables)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Serving.RateLimit.Requests, cfg.Serving.RateLimit.Window)
}

func ProvideHandler(l *logger.Logger, data *usecase.Datasets, runner *usecase.Runner, limiter *ratelimit.Limiter) *api.DatasetsEchoHandler {
	return api.NewDatasetsEchoHandler(l, data, runner, limiter, Version)
}

// ProvideApp creates the serving application.
func ProvideApp(cfg *config.Config, l *logger.Logger, h *api.DatasetsEchoHandler, runner *usecase.Runner) *server.App {
	return server.New(cfg, l, h, runner)
}
