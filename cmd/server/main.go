// Command server starts the essay grading HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanyue-dev/ai-essay-grader/internal/adapter/ai/openai"
	"github.com/hanyue-dev/ai-essay-grader/internal/adapter/ai/stub"
	httpserver "github.com/hanyue-dev/ai-essay-grader/internal/adapter/httpserver"
	"github.com/hanyue-dev/ai-essay-grader/internal/adapter/repo/postgres"
	"github.com/hanyue-dev/ai-essay-grader/internal/app"
	"github.com/hanyue-dev/ai-essay-grader/internal/config"
	"github.com/hanyue-dev/ai-essay-grader/internal/domain"
	"github.com/hanyue-dev/ai-essay-grader/internal/grading"
	"github.com/hanyue-dev/ai-essay-grader/internal/observability"
	"github.com/hanyue-dev/ai-essay-grader/internal/service/ratelimiter"
	"github.com/hanyue-dev/ai-essay-grader/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Repositories
	questionRepo := postgres.NewQuestionRepo(pool)
	rubricRepo := postgres.NewRubricRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)

	// Redis is optional; it backs the cross-replica Oracle call budget.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid redis url", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}
	var limiter ratelimiter.Limiter
	if rdb != nil {
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			openai.OracleBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.OracleCallsPerMin),
		})
		slog.Info("oracle throttling enabled", slog.Int("calls_per_min", cfg.OracleCallsPerMin))
	}

	// Oracle client: real when a key is configured, deterministic stub
	// otherwise so local development needs no credentials.
	var oracle domain.OracleClient
	if cfg.OracleAPIKey != "" {
		oracle = openai.New(cfg, limiter)
		slog.Info("oracle client initialized", slog.String("model", cfg.OracleModel))
	} else {
		oracle = stub.New()
		slog.Warn("ORACLE_API_KEY not set; using deterministic stub oracle")
	}

	// Grading pipeline
	semantic := grading.NewSemanticEvaluator(oracle, cfg.SemanticThreshold, cfg.SemanticFullCreditCutoff)
	holistic := grading.NewHolisticGenerator(oracle, cfg.OracleTemperature, cfg.OracleMaxTokens)
	orch := grading.NewOrchestrator(questionRepo, rubricRepo, semantic, holistic, grading.ReconcileConfig{
		HybridAlgoWeight: cfg.HybridAlgoWeight,
		HybridAIWeight:   cfg.HybridAIWeight,
	})
	gradeSvc := usecase.NewGradeService(jobRepo, orch, cfg.JobTimeout)

	// Optional question bank seeding
	if cfg.SeedFile != "" {
		if err := seedFromFile(ctx, cfg.SeedFile, questionRepo, rubricRepo); err != nil {
			slog.Error("seeding failed", slog.String("file", cfg.SeedFile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbCheck := func(ctx context.Context) error { return pool.Ping(ctx) }
	var redisCheck func(ctx context.Context) error
	if rdb != nil {
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	srv := httpserver.NewServer(cfg, gradeSvc, questionRepo, rubricRepo, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)

	// The synchronous custom grading route can hold a connection for up to
	// a full job budget; the write timeout must not cut it off first.
	writeTimeout := cfg.HTTPWriteTimeout
	if writeTimeout > 0 && writeTimeout < cfg.JobTimeout {
		writeTimeout = cfg.JobTimeout + 30*time.Second
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
