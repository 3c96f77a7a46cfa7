package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/TheHatt/revboard/internal/config"
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/event"
	handler "github.com/TheHatt/revboard/internal/handler/http"
	"github.com/TheHatt/revboard/internal/repository/postgres"
	rediscache "github.com/TheHatt/revboard/internal/repository/redis"
	"github.com/TheHatt/revboard/internal/service"
	"github.com/TheHatt/revboard/internal/suggest"
	"github.com/TheHatt/revboard/migrations"
	"github.com/TheHatt/revboard/pkg/database"
	"github.com/TheHatt/revboard/pkg/health"
	pkgkafka "github.com/TheHatt/revboard/pkg/kafka"
	"github.com/TheHatt/revboard/pkg/middleware"
	"github.com/TheHatt/revboard/pkg/tracing"
)

// eventIDTTL bounds how long consumed event ids are remembered.
const eventIDTTL = 24 * time.Hour

// App wires together all dependencies and runs the dashboard service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DeadLetterQueue
	limiter        *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	prometheus.MustRegister(database.NewPoolStatsCollector(pool, config.ServiceName))

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

	kafkaProducer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Repositories.
	reviewRepo := postgres.NewReviewRepository(pool)
	replyRepo := postgres.NewReplyRepository(pool)
	locationRepo := postgres.NewLocationRepository(pool)
	membershipRepo := postgres.NewMembershipRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	statsCache := rediscache.NewStatsCache(redisClient, cfg.StatsCacheTTL())

	suggester, err := suggest.New(cfg.Suggest(), logger)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init reply suggestions: %w", err)
	}

	// Services.
	settingsService := service.NewSettingsService(settingsRepo, statsCache, domain.Settings{
		Timezone:        cfg.DashboardTimezone,
		KeywordsEnabled: cfg.StatsKeywordsEnabled,
		TopKeywords:     cfg.StatsTopKeywords,
	}, logger)
	scopeService := service.NewScopeService(membershipRepo, locationRepo, logger)
	reviewService := service.NewReviewService(reviewRepo, settingsService, nil, logger)
	statsService := service.NewStatsService(reviewRepo, locationRepo, statsCache, settingsService, nil, logger)
	replyService := service.NewReplyService(reviewRepo, replyRepo, statsCache,
		event.NewProducer(kafkaProducer, logger), suggester, logger)

	// Review ingestion.
	var (
		consumer *pkgkafka.Consumer
		dlq      *pkgkafka.DeadLetterQueue
	)
	if cfg.IngestEnabled {
		dlq = pkgkafka.NewDeadLetterQueue(cfg.KafkaBrokers, logger)
		consumer = event.NewConsumer(cfg.KafkaBrokers, cfg.IngestGroupID, cfg.IngestMaxAttempts,
			event.NewConsumerHandler(reviewRepo, locationRepo, statsCache, logger),
			pkgkafka.NewRedisIdempotencyStore(redisClient, cfg.IngestGroupID, eventIDTTL),
			dlq, logger)
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", kafkaProducer.Ping)

	limiter := middleware.NewRateLimiter(cfg.ReplyRateLimitRPS, cfg.ReplyRateLimitBurst, logger)
	router := handler.NewRouter(
		handler.RouterConfig{
			JWTSecret:          cfg.JWTSecret,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			PprofAllowedCIDRs:  cfg.PprofAllowedCIDRs,
		},
		handler.NewDashboardHandler(statsService, reviewService, replyService, settingsService, logger),
		scopeService,
		limiter,
		healthHandler,
		logger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       kafkaProducer,
		consumer:       consumer,
		dlq:            dlq,
		limiter:        limiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server, the ingest consumer and the rate limiter
// sweeper, then blocks until ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.limiter.Run(gctx)
		return nil
	})

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Run(gctx); err != nil {
				return fmt.Errorf("ingest consumer: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown signal received")
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dead letter queue close error", slog.String("error", err.Error()))
		}
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}
	a.pool.Close()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
