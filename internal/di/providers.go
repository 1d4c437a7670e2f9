package di

import (
	"context"
	"fmt"
	"time"

	"VolScreen/internal/domain/repository"
	"VolScreen/internal/handler/api"
	internalrepo "VolScreen/internal/repository"
	"VolScreen/internal/service/metricsapi"
	"VolScreen/internal/service/ratelimit"
	"VolScreen/internal/service/stream"
	"VolScreen/internal/service/yahoo"
	"VolScreen/internal/usecase"
	"VolScreen/pkg/cache"
	pkgch "VolScreen/pkg/clickhouse"
	"VolScreen/pkg/config"
	xhttp "VolScreen/pkg/http"
	pkgkafka "VolScreen/pkg/kafka"
	applogger "VolScreen/pkg/logger"
	"VolScreen/pkg/metrics"
	"VolScreen/pkg/server"
)

// ProvideLogger creates the application logger with the diagnostics
// collector attached.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{})
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRateController creates the shared outbound rate controller with
// per-provider budgets from config.
func ProvideRateController(cfg *config.Config, m repository.Metrics) *ratelimit.Controller {
	return ratelimit.New(
		ratelimit.WithBudget("metricsapi", cfg.Providers.Metrics.Budget.Capacity, cfg.Providers.Metrics.Budget.RefillPerSec),
		ratelimit.WithBudget("yahoo", cfg.Providers.Yahoo.Budget.Capacity, cfg.Providers.Yahoo.Budget.RefillPerSec),
		ratelimit.WithWaitObserver(func(provider string, d time.Duration) {
			m.RecordRateLimitWait(provider, d.Seconds())
		}),
	)
}

// ProvideStore selects the cache backing store from config.
func ProvideStore(cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "bolt":
		return cache.NewBoltStore(cfg.Cache.Path)
	case "redis":
		return cache.NewRedisStore(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
		)
	case "memory":
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// ProvideCache creates the session-aware persistent cache.
func ProvideCache(store cache.Store, cfg *config.Config) (*cache.PersistentCache, error) {
	sched, err := cache.NewSessionSchedule(
		cfg.Cache.Session.Open, cfg.Cache.Session.Close, cfg.Cache.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session schedule: %w", err)
	}
	return cache.NewPersistentCache(store, sched, cfg.MetricSetVersion), nil
}

// ProvideResolver builds the composite resolver over the primary metrics
// provider, the Yahoo price provider and the streaming HV fallback.
func ProvideResolver(cfg *config.Config, rc *ratelimit.Controller, m repository.Metrics, log *applogger.Logger) repository.Resolver {
	primary := metricsapi.New(
		cfg.Providers.Metrics.BaseURL,
		cfg.Providers.Metrics.APIKey,
		rc, log,
		cfg.Providers.Metrics.Timeout,
	)
	secondary := yahoo.New(
		cfg.Providers.Yahoo.QuoteSummaryURL,
		cfg.Providers.Yahoo.ReturnsDays,
		rc, log,
		cfg.Providers.Yahoo.Timeout,
	)
	candles := stream.New(
		cfg.Stream.URL,
		cfg.Stream.APIKey,
		cfg.Stream.Timeout,
		rc, log,
	)
	return usecase.NewComposite(primary, secondary, candles, m, log,
		usecase.WithStreamWindow(cfg.Stream.WindowDays, cfg.Stream.MinSamples),
		usecase.WithProxies(cfg.Proxies),
		usecase.WithThrottleReset(rc, primary.Name(), secondary.Name(), "stream"),
	)
}

// ProvideOrchestrator creates the fetch orchestrator.
func ProvideOrchestrator(c *cache.PersistentCache, r repository.Resolver, m repository.Metrics, log *applogger.Logger, cfg *config.Config) *usecase.Orchestrator {
	return usecase.NewOrchestrator(c, r, m, log,
		cfg.Orchestrator.Concurrency, cfg.Orchestrator.FailFastRatio)
}

// ProvideExporter selects the export backend from config.
func ProvideExporter(cfg *config.Config, log *applogger.Logger) (repository.Exporter, error) {
	switch cfg.Export.Backend {
	case "kafka":
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Export.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Export.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Export.Kafka.RequiredAcks),
			pkgkafka.WithTimeouts(cfg.Export.Kafka.WriteTimeout, cfg.Export.Kafka.WriteTimeout),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		return internalrepo.NewKafkaExporter(producer, cfg.Export.Kafka.Topic, log), nil
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.Export.ClickHouse.Host),
			pkgch.WithPort(cfg.Export.ClickHouse.Port),
			pkgch.WithDatabase(cfg.Export.ClickHouse.Database),
			pkgch.WithCredentials(cfg.Export.ClickHouse.User, cfg.Export.ClickHouse.Password),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		exporter, err := internalrepo.NewClickHouseExporter(ctx, client, cfg.Export.ClickHouse.Table, log)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return exporter, nil
	default:
		return internalrepo.NewNopExporter(), nil
	}
}

// ProvideSummaryHolder creates the shared last-run summary slot.
func ProvideSummaryHolder() *usecase.SummaryHolder {
	return usecase.NewSummaryHolder()
}

// ProvideReportHandler creates the diagnostics HTTP handler.
func ProvideReportHandler(log *applogger.Logger, summary *usecase.SummaryHolder) xhttp.Handler {
	return api.NewReportHandler(log, summary)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	orchestrator *usecase.Orchestrator,
	exporter repository.Exporter,
	c *cache.PersistentCache,
	summary *usecase.SummaryHolder,
	handler xhttp.Handler,
) *server.App {
	app := server.New(cfg, log, orchestrator, exporter, c, summary)
	app.SetHTTPHandler(handler)
	return app
}
