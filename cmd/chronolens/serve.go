package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chronolens/chronolens/internal/config"
	dbRedis "github.com/chronolens/chronolens/internal/db/redis"
	logpkg "github.com/chronolens/chronolens/internal/logger"
	"github.com/chronolens/chronolens/internal/metrics"
	"github.com/chronolens/chronolens/internal/repository/usagestore"
	"github.com/chronolens/chronolens/internal/transport/activity"
	chiTransport "github.com/chronolens/chronolens/internal/transport/chi"
	openaiTransport "github.com/chronolens/chronolens/internal/transport/openai"
	"github.com/chronolens/chronolens/internal/usecase/aggregate"
	"github.com/chronolens/chronolens/internal/usecase/extract"
	healthuc "github.com/chronolens/chronolens/internal/usecase/health"
	pipelineuc "github.com/chronolens/chronolens/internal/usecase/pipeline"
	usageuc "github.com/chronolens/chronolens/internal/usecase/usage"
	"github.com/chronolens/chronolens/internal/valves"
	"github.com/chronolens/chronolens/internal/version"
)

const (
	dailyCounterTTL   = 48 * time.Hour
	monthlyCounterTTL = 62 * 24 * time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chronolens HTTP API server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func runServe() error {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting chronolens API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()

	// Usage counters persist in Redis when configured; otherwise they live
	// in process memory and reset on restart.
	var kvStore *dbRedis.Store
	if len(cfg.Redis.Addrs) > 0 {
		kvStore, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create redis store", zap.Error(err))
		}
		defer kvStore.Close()

		if err := kvStore.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Redis not ready", zap.Error(err))
		}
		logger.Info("Connected to redis")
	}

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Single Tracker shared by the pipeline (enforcement) and the usage
	// service (reporting).
	var tracker *usageuc.Tracker
	if cfg.Usage.DailyTokenLimit > 0 || cfg.Usage.MonthlyTokenLimit > 0 {
		action := usageuc.ActionWarn
		if cfg.Usage.Action == "reject" {
			action = usageuc.ActionReject
		}
		tracker = usageuc.NewTracker(
			cfg.Usage.DailyTokenLimit, cfg.Usage.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store; loads current counters from redis.
		if kvStore != nil {
			tracker.WithStore(ctx, usagestore.New(kvStore, dailyCounterTTL, monthlyCounterTTL))
		}
	}

	// Pass nil interface (not typed nil pointer!) if no budget is configured.
	// Go gotcha: (*Tracker)(nil) wrapped in UsageRecorder != nil.
	var recorder pipelineuc.UsageRecorder
	var budgetReader usageuc.BudgetReader
	if tracker != nil {
		recorder = tracker
		budgetReader = tracker
	}

	// Valve store: built-in defaults, file layer from config, env overrides.
	valveStore := valves.NewStore()
	if len(cfg.Pipeline.Valves) > 0 {
		if err := valveStore.SetFileDefaults(cfg.Pipeline.Valves); err != nil {
			logger.Fatal("Invalid pipeline.valves in config", zap.Error(err))
		}
	}

	llmClient := openaiTransport.NewClient(logger)
	idxClient := activity.NewClient(logger)

	pipeline := pipelineuc.New(pipelineuc.Deps{
		Valves:       valveStore,
		Builder:      extract.New(llmClient, logger),
		Searcher:     idxClient,
		Aggregator:   aggregate.New(logger),
		Completer:    llmClient,
		Usage:        recorder,
		Replacements: replacementsFromConfig(cfg.Pipeline.Replacements),
		Logger:       logger,
	})

	usageSvc := usageuc.New(budgetReader)

	var kvPinger healthuc.KVPinger
	if kvStore != nil {
		kvPinger = kvStore
	}
	healthSvc := healthuc.New(valveStore, idxClient, llmClient, kvPinger)

	server := chiTransport.NewServer(pipeline, idxClient, valveStore, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	// Hot-reload valve defaults on config file edits.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		load := func() (map[string]string, error) {
			c, err := config.Load(env)
			if err != nil {
				return nil, err
			}
			return c.Pipeline.Valves, nil
		}
		if err := valves.Watch(watchCtx, config.Path(env), valveStore, load, logger); err != nil {
			logger.Warn("Valve watcher stopped", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// Zero write timeout: SSE responses are open-ended.
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func replacementsFromConfig(reps []config.ReplacementConfig) []aggregate.Replacement {
	if len(reps) == 0 {
		return nil
	}
	out := make([]aggregate.Replacement, len(reps))
	for i, r := range reps {
		out[i] = aggregate.Replacement{Old: r.Old, New: r.New}
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
