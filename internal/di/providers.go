package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"CapFlow/internal/domain/repository"
	dservice "CapFlow/internal/domain/service"
	"CapFlow/internal/handler/api"
	internalrepo "CapFlow/internal/repository"
	"CapFlow/internal/service/provider"
	"CapFlow/internal/service/ratelimit"
	"CapFlow/internal/services/analytics"
	"CapFlow/internal/services/narrative"
	"CapFlow/internal/usecase"
	"CapFlow/pkg/cache"
	pkgch "CapFlow/pkg/clickhouse"
	"CapFlow/pkg/config"
	xhttp "CapFlow/pkg/http"
	pkgkafka "CapFlow/pkg/kafka"
	"CapFlow/pkg/logger"
	"CapFlow/pkg/metrics"
	"CapFlow/pkg/server"
	"CapFlow/pkg/sqldb"
	"CapFlow/pkg/util"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache creates the layered cache; Redis is only dialled when enabled.
func ProvideCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	var rc *cache.RedisCache
	if cfg.Cache.Redis.Enabled {
		var err error
		rc, err = cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		l.Info("redis cache connected", logger.String("addr", cfg.Cache.Redis.Addr))
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemorySize))
	cleanup := func() {
		if err := lc.Close(); err != nil {
			l.Warn("cache close error", logger.Error(err))
		}
	}
	return lc, cleanup, nil
}

// ProvideObservationStore opens the database behind a store-backed provider.
// It returns a nil store for the http and synthetic providers.
func ProvideObservationStore(cfg *config.Config, l *logger.Logger) (repository.ObservationStore, func(), error) {
	if !cfg.StoreBacked() {
		return nil, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var (
		store   *internalrepo.SQLObservationStore
		closeDB func() error
		err     error
	)
	switch cfg.Provider.Type {
	case config.ProviderClickHouse:
		client, cerr := pkgch.NewClient(ctx,
			pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if cerr != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", cerr)
		}
		closeDB = client.Close
		store, err = internalrepo.NewSQLObservationStore(client.DB(), sqldb.DriverClickHouse,
			client.Database()+".flow_observations", l)

	case config.ProviderSQLite:
		if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		db, oerr := sqldb.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if oerr != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", oerr)
		}
		closeDB = db.Close
		store, err = internalrepo.NewSQLObservationStore(db, sqldb.DriverSQLite, "", l)

	case config.ProviderPostgres:
		db, oerr := sqldb.OpenPostgres(ctx, cfg.Database.PostgresDSN)
		if oerr != nil {
			return nil, nil, fmt.Errorf("postgres: %w", oerr)
		}
		closeDB = db.Close
		store, err = internalrepo.NewSQLObservationStore(db, sqldb.DriverPostgres, "", l)

	default:
		return nil, nil, fmt.Errorf("provider %q has no store", cfg.Provider.Type)
	}
	if err == nil {
		err = store.Init(ctx)
	}
	if err != nil {
		_ = closeDB()
		return nil, nil, fmt.Errorf("observation store: %w", err)
	}

	l.Info("observation store ready", logger.String("driver", cfg.Provider.Type))
	cleanup := func() {
		if err := closeDB(); err != nil {
			l.Warn("observation store close error", logger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideFlowSource picks the configured provider. Remote sources are
// fronted by the cache; the synthetic generator and the local stores are not,
// so a refresh always sees freshly ingested rows.
func ProvideFlowSource(cfg *config.Config, store repository.ObservationStore, c cache.Service, l *logger.Logger) (repository.FlowSource, error) {
	var src repository.FlowSource
	switch cfg.Provider.Type {
	case config.ProviderSynthetic:
		cal := util.NewTradingCalendar(cfg.Provider.Calendar)
		if cal.IsFallback() {
			l.Warn("trading calendar unavailable, using weekdays", logger.String("calendar", cfg.Provider.Calendar))
		}
		return provider.NewSyntheticProvider(cfg.Provider.Seed, cal), nil
	case config.ProviderClickHouse, config.ProviderSQLite, config.ProviderPostgres:
		if store == nil {
			return nil, fmt.Errorf("provider %q requires an observation store", cfg.Provider.Type)
		}
		return provider.NewStoreProvider(cfg.Provider.Type, store), nil
	case config.ProviderHTTP:
		src = provider.NewHTTPProvider(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	case config.ProviderPolygon:
		src = provider.NewPolygon(cfg.Provider.APIKey,
			provider.WithPolygonBaseURL(cfg.Provider.BaseURL),
			provider.WithPolygonSymbols(cfg.Provider.Symbols),
			provider.WithPolygonPacing(cfg.Provider.Pacing),
			provider.WithPolygonTimeout(cfg.Provider.Timeout),
			provider.WithPolygonLogger(l),
		)
	case config.ProviderAlpha:
		src = provider.NewAlphaVantage(cfg.Provider.APIKey,
			provider.WithAlphaBaseURL(cfg.Provider.BaseURL),
			provider.WithAlphaSymbols(cfg.Provider.Symbols),
			provider.WithAlphaPacing(cfg.Provider.Pacing),
			provider.WithAlphaTimeout(cfg.Provider.Timeout),
			provider.WithAlphaLogger(l),
		)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
	return provider.NewCached(src, c, cfg.Provider.CacheTTL, l), nil
}

// ProvideAnalyzer creates the flow analytics engine.
func ProvideAnalyzer(cfg *config.Config) dservice.FlowAnalyzer {
	return analytics.NewEngine(
		analytics.WithTapeSize(cfg.Analytics.TapeSize),
		analytics.WithSummarySize(cfg.Analytics.SummarySize),
	)
}

// ProvideNarrator uses the remote narrative service when one is configured.
func ProvideNarrator(cfg *config.Config, l *logger.Logger) dservice.Narrator {
	fallback := narrative.NewFallback()
	if cfg.Narrative.ServiceURL == "" {
		return fallback
	}
	return narrative.NewHTTPNarrator(cfg.Narrative.ServiceURL, cfg.Narrative.Timeout, fallback, l)
}

// ProvideSnapshotPublisher creates the Kafka snapshot publisher, or nil when
// no snapshot topic is configured.
func ProvideSnapshotPublisher(cfg *config.Config) (repository.SnapshotPublisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.SnapshotTopic == "" {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithAutoCreateTopics(true),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotTopic)
	return pub, func() { _ = pub.Close() }, nil
}

// ProvideFlowDashboard creates the dashboard use case.
func ProvideFlowDashboard(
	cfg *config.Config,
	src repository.FlowSource,
	analyzer dservice.FlowAnalyzer,
	narrator dservice.Narrator,
	pub repository.SnapshotPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.FlowDashboard {
	return usecase.NewFlowDashboard(src, analyzer, narrator,
		usecase.WithPublisher(pub),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
		usecase.WithLookbackDays(cfg.Provider.LookbackDays),
		usecase.WithNoiseThreshold(cfg.Analytics.NoiseThreshold),
		usecase.WithTapeSize(cfg.Analytics.TapeSize),
		usecase.WithDefaultAssetClass(cfg.Analytics.DefaultAssetClass),
	)
}

// ProvideTapeHub creates the websocket tape hub.
func ProvideTapeHub(l *logger.Logger) *api.TapeHub {
	return api.NewTapeHub(l)
}

// ProvideFlowsHandler creates the HTTP handler.
func ProvideFlowsHandler(cfg *config.Config, l *logger.Logger, dash *usecase.FlowDashboard, c cache.Service, hub *api.TapeHub) xhttp.Handler {
	return api.NewFlowsEchoHandler(l, dash,
		api.WithRefreshLimiter(ratelimit.New(cfg.Server.RefreshBurst, cfg.Server.RefreshRate)),
		api.WithSummaryCache(c),
		api.WithTapeHub(hub),
	)
}

// ProvideKafkaConsumer creates a consumer for observation ingestion, or nil
// when ingestion is off.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Kafka.ObservationsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideObservationsHandler writes ingested observations to the store.
func ProvideObservationsHandler(cfg *config.Config, store repository.ObservationStore, m repository.Metrics, l *logger.Logger) pkgkafka.MessageHandler {
	if cfg.Kafka.ObservationsTopic == "" || store == nil {
		return nil
	}
	return usecase.NewKafkaObservationsHandler(cfg.Kafka.ObservationsTopic, store, m, l)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	dash *usecase.FlowDashboard,
	hub *api.TapeHub,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
) *server.App {
	var opts []server.Option
	if consumer != nil && kh != nil {
		opts = append(opts, server.WithConsumer(consumer, kh))
	}
	return server.New(cfg, l, dash, hub, handler, opts...)
}
