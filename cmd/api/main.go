package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/jewelry-concierge/cmd/mainconfig"
	"github.com/wolfman30/jewelry-concierge/internal/api/router"
	"github.com/wolfman30/jewelry-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/jewelry-concierge/internal/config"
	httpmiddleware "github.com/wolfman30/jewelry-concierge/internal/http/middleware"
	"github.com/wolfman30/jewelry-concierge/internal/webchat"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("starting jewelry concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"matcher", cfg.MatcherMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	products, err := bootstrap.BuildCatalog(cfg, pool, logger)
	if err != nil {
		return err
	}

	bedrock, err := bedrockClient(ctx, cfg)
	if err != nil {
		return err
	}
	llm, embedder, err := bootstrap.BuildLLM(ctx, cfg, bedrock, logger)
	if err != nil {
		return err
	}

	knowledge, err := bootstrap.BuildKnowledge(ctx, cfg, redisClient, embedder, logger)
	if err != nil {
		return err
	}

	chatMetrics, metricsHandler := bootstrap.BuildMetrics(prometheus.NewRegistry())

	engine, err := bootstrap.BuildEngine(cfg, bootstrap.EngineInputs{
		Redis:     redisClient,
		LLM:       llm,
		Products:  products,
		Knowledge: knowledge,
		Metrics:   chatMetrics,
	}, logger)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.ChatRateLimitRPS, cfg.ChatRateLimitBurst)
	go limiter.RunEviction(ctx, 5*time.Minute, 10*time.Minute)

	r := router.New(&router.Config{
		Logger:             logger,
		Chat:               webchat.NewHandler(engine, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatLimiter:        limiter,
		HealthChecks:       healthChecks(redisClient, pool),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Replies stream for up to one turn timeout.
		WriteTimeout: cfg.TurnTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bedrockClient returns nil when no Bedrock model is configured.
func bedrockClient(ctx context.Context, cfg *appconfig.Config) (*bedrockruntime.Client, error) {
	if strings.TrimSpace(cfg.BedrockModelID) == "" && strings.TrimSpace(cfg.BedrockEmbeddingModelID) == "" {
		return nil, nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return mainconfig.NewBedrockClient(awsCfg, cfg), nil
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
