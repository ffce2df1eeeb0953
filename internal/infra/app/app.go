package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veluna/media-platform-auth/internal/core/port"
	"github.com/veluna/media-platform-auth/internal/infra/config"
	"github.com/veluna/media-platform-auth/internal/infra/database"
	kafkainfra "github.com/veluna/media-platform-auth/internal/infra/kafka"
	"github.com/veluna/media-platform-auth/internal/infra/logger"
	redisinfra "github.com/veluna/media-platform-auth/internal/infra/redis"
	"github.com/veluna/media-platform-auth/internal/infra/security"
	postgresrepo "github.com/veluna/media-platform-auth/internal/repository/postgres"
	redisrepo "github.com/veluna/media-platform-auth/internal/repository/redis"
	"github.com/veluna/media-platform-auth/internal/transport/http/middleware"
	"github.com/veluna/media-platform-auth/internal/transport/http/routes"
	"github.com/veluna/media-platform-auth/internal/usecase"
)

// Application wires the service graph and owns the process lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	sessionTTL := cfg.Session.TokenTTL
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	signer, err := security.NewSessionTokenSigner(cfg.Session.Secret, cfg.App.Name, sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("init session signer: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	challengeStore := redisrepo.NewChallengeRepository(redisClient.Client(), "auth:2fa")
	sessionContextStore := redisrepo.NewSessionContextRepository(redisClient.Client(), "auth:sessctx")

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "auth:rate-limit",
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	policy := security.NewPolicyEvaluator()

	recoveryService := usecase.NewRecoveryTokenService(repos.Tokens, log)
	if cfg.Reset.TokenTTL > 0 {
		recoveryService.WithTTL(cfg.Reset.TokenTTL)
	}

	authService := usecase.NewAuthService(cfg, repos.Users, repos.Credentials, repos.Sessions,
		challengeStore, sessionContextStore, rateLimitStore, eventPublisher, signer, log)

	passwordResetService := usecase.NewPasswordResetService(cfg, repos.Users, repos.Credentials,
		recoveryService, repos.Sessions, rateLimitStore, eventPublisher, policy, log)

	metrics, err := middleware.NewHTTPMetrics(cfg.Telemetry.MetricsNamespace)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			PasswordReset: passwordResetService,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
