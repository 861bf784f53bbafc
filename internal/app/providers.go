package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	creativehttp "github.com/brandcraft/server/internal/adapter/inbound/http/creative"
	"github.com/brandcraft/server/internal/adapter/outbound/aiprovider"
	"github.com/brandcraft/server/internal/adapter/outbound/memory"
	"github.com/brandcraft/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/brandcraft/server/internal/adapter/outbound/redis"
	"github.com/brandcraft/server/internal/domain/fingerprint"
	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/domain/orchestrator"
	"github.com/brandcraft/server/internal/domain/validator"
	"github.com/brandcraft/server/internal/infra/audit"
	"github.com/brandcraft/server/internal/infra/httpclient"
	"github.com/brandcraft/server/internal/port/outbound"
	"github.com/brandcraft/server/internal/shared/cache"
	"github.com/brandcraft/server/internal/shared/config"
	"github.com/brandcraft/server/internal/shared/database"
	"github.com/brandcraft/server/internal/shared/logger"
	"github.com/brandcraft/server/internal/shared/middleware"
	"github.com/brandcraft/server/internal/utils/metrics"
)

const connectTimeout = 5 * time.Second

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideDatabase,
	ProvideHTTPClient,
)

// StoreSet provides the outbound store adapters selected by configuration.
var StoreSet = wire.NewSet(
	ProvideFingerprintStore,
	ProvideBalanceStore,
	ProvideSettlementGuard,
	ProvideAuditStore,
	ProvideRateLimiter,
)

// DomainSet provides domain services.
var DomainSet = wire.NewSet(
	ProvideGenerationProvider,
	ProvideLedger,
	ProvideFingerprintCache,
	ProvideValidator,
	ProvideOrchestrator,
)

// HTTPSet provides the HTTP layer.
var HTTPSet = wire.NewSet(
	ProvideHandler,
	ProvideRouter,
)

// ===== Infrastructure Providers =====

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config) *zap.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideRegistry creates the Prometheus registry served on the metrics route.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the metrics instance, or nil when metrics are disabled.
func ProvideMetrics(cfg *config.Config, reg *prometheus.Registry) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New(cfg.Metrics.Namespace, reg)
}

// ProvideRedisClient connects to Redis when any store uses it.
func ProvideRedisClient(cfg *config.Config, log *zap.Logger) (*goredis.Client, func(), error) {
	if !cfg.UsesRedis() {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info("redis connected", zap.String("address", cfg.Redis.Address))
	return client, func() {
		if err := cache.Close(client); err != nil {
			log.Warn("close redis", zap.Error(err))
		}
	}, nil
}

// ProvideDatabase connects to Postgres when any store uses it.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	if !cfg.UsesPostgres() {
		return nil, func() {}, nil
	}
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.Database))
	return db, func() {
		if err := database.Close(db); err != nil {
			log.Warn("close database", zap.Error(err))
		}
	}, nil
}

// ProvideHTTPClient creates the pooled client shared by the generation backends.
func ProvideHTTPClient(cfg *config.Config) (*http.Client, func()) {
	client := httpclient.New(cfg.HTTPClient)
	return client, client.CloseIdleConnections
}

// ===== Store Providers =====

// ProvideFingerprintStore selects the fingerprint cache backend.
func ProvideFingerprintStore(cfg *config.Config, redis *goredis.Client) outbound.FingerprintStorePort {
	if cfg.Stores.Fingerprint == config.StoreRedis {
		return redisadapter.NewFingerprintStore(redis)
	}
	return memory.NewFingerprintStore()
}

// ProvideBalanceStore selects the balance backend. Seed balances only apply to the memory backend.
func ProvideBalanceStore(cfg *config.Config, redis *goredis.Client, db *gorm.DB) outbound.BalanceStorePort {
	switch cfg.Stores.Balance {
	case config.StoreRedis:
		return redisadapter.NewBalanceStore(redis)
	case config.StorePostgres:
		return postgres.NewBalanceStoreAdapter(db)
	default:
		return memory.NewBalanceStore(cfg.Stores.Seed)
	}
}

// ProvideSettlementGuard selects the settlement idempotency backend.
func ProvideSettlementGuard(cfg *config.Config, redis *goredis.Client) outbound.SettlementGuardPort {
	if cfg.Stores.Settlement == config.StoreRedis {
		return redisadapter.NewSettlementGuard(redis, cfg.Stores.Retention)
	}
	return memory.NewSettlementGuard(cfg.Stores.Retention, nil)
}

// ProvideAuditStore selects the audit backend and puts the async recorder in front of it.
func ProvideAuditStore(cfg *config.Config, db *gorm.DB, m *metrics.Metrics, log *zap.Logger) (outbound.AuditStorePort, func()) {
	var store outbound.AuditStorePort
	if cfg.Stores.Audit == config.StorePostgres {
		store = postgres.NewAuditStoreAdapter(db)
	} else {
		store = memory.NewAuditStore()
	}

	opts := []audit.Option{audit.WithWriteTimeout(cfg.Audit.WriteTimeout)}
	if m != nil {
		opts = append(opts, audit.WithDropHook(m.RecordAuditDrop))
	}
	recorder := audit.NewRecorder(store, log, cfg.Audit.BufferSize, opts...)
	return recorder, recorder.Close
}

// ProvideRateLimiter selects the dispatch rate limiter backend, or nil when rate limiting is disabled.
func ProvideRateLimiter(cfg *config.Config, redis *goredis.Client) outbound.RateLimiterPort {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if cfg.Stores.RateLimit == config.StoreRedis {
		return redisadapter.NewRateLimiter(redis)
	}
	return memory.NewRateLimiter(nil)
}

// ===== Domain Providers =====

// ProvideGenerationProvider builds the configured backend behind a circuit breaker.
func ProvideGenerationProvider(cfg *config.Config, client *http.Client, m *metrics.Metrics, log *zap.Logger) (outbound.GenerationProviderPort, error) {
	var onHealth func(string, bool)
	if m != nil {
		onHealth = m.SetProviderHealth
	}
	provider, err := aiprovider.New(&cfg.Generation, client, log, onHealth)
	if err != nil {
		return nil, fmt.Errorf("init generation provider: %w", err)
	}
	if m != nil {
		m.SetProviderHealth(cfg.Generation.Type, true)
	}
	return provider, nil
}

// ProvideLedger creates the cost ledger.
func ProvideLedger(
	cfg *config.Config,
	balances outbound.BalanceStorePort,
	guard outbound.SettlementGuardPort,
	auditStore outbound.AuditStorePort,
	log *zap.Logger,
) *ledger.Ledger {
	return ledger.NewLedger(balances, guard, auditStore, &cfg.Ledger, log)
}

// ProvideFingerprintCache creates the fingerprint cache.
func ProvideFingerprintCache(cfg *config.Config, store outbound.FingerprintStorePort, log *zap.Logger) *fingerprint.Cache {
	return fingerprint.NewCache(store, &cfg.Cache, log)
}

// ProvideValidator loads the validator policy file when configured.
func ProvideValidator(cfg *config.Config) (*validator.Validator, error) {
	if cfg.Validator.PolicyFile == "" {
		return validator.New(nil), nil
	}
	policy, err := validator.LoadPolicy(cfg.Validator.PolicyFile)
	if err != nil {
		return nil, err
	}
	return validator.New(policy), nil
}

// ProvideOrchestrator creates the orchestrator and starts its batch flusher.
// The cleanup flushes pending batches.
func ProvideOrchestrator(
	cfg *config.Config,
	provider outbound.GenerationProviderPort,
	costLedger *ledger.Ledger,
	fpCache *fingerprint.Cache,
	contentValidator *validator.Validator,
	m *metrics.Metrics,
	log *zap.Logger,
) (*orchestrator.Orchestrator, func()) {
	var opts []orchestrator.Option
	if m != nil {
		opts = append(opts, orchestrator.WithMetrics(m))
	}
	o := orchestrator.NewOrchestrator(provider, costLedger, fpCache, contentValidator, &cfg.Orchestrator, &cfg.Batch, log, opts...)
	o.Start()

	return o, func() {
		ctx, cancel := shutdownContext()
		defer cancel()
		o.Stop(ctx)
	}
}

// ===== HTTP Providers =====

// ProvideHandler creates the dispatch API handler.
func ProvideHandler(o *orchestrator.Orchestrator, costLedger *ledger.Ledger) *creativehttp.Handler {
	return creativehttp.NewHandler(o, costLedger)
}

// ProvideRouter creates and configures the Gin router.
func ProvideRouter(
	cfg *config.Config,
	handler *creativehttp.Handler,
	reg *prometheus.Registry,
	m *metrics.Metrics,
	redis *goredis.Client,
	limiter outbound.RateLimiterPort,
	log *zap.Logger,
) *gin.Engine {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpLog := log.Named("http")
	r := gin.New()
	r.Use(middleware.Recovery(httpLog))
	r.Use(middleware.RequestID(httpLog))
	r.Use(middleware.Logging(httpLog))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if m != nil {
		r.Use(middleware.Metrics(m, cfg.Metrics.Path, "/healthz"))
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	r.GET("/healthz", creativehttp.Health)

	// Idempotent replays still count against the rate limit.
	var dispatchChain []gin.HandlerFunc
	if limiter != nil {
		dispatchChain = append(dispatchChain, middleware.RateLimit(limiter, middleware.RateLimitConfig{
			Limit:  cfg.RateLimit.Requests,
			Window: cfg.RateLimit.Window,
			Logger: httpLog,
		}))
	}
	if redis != nil {
		dispatchChain = append(dispatchChain, middleware.Idempotency(redis, middleware.IdempotencyConfig{Logger: httpLog}))
	}
	handler.RegisterRoutes(&r.RouterGroup, dispatchChain...)
	handler.RegisterAdminRoutes(&r.RouterGroup, cfg.Server.AdminToken)

	return r
}
