// Package main is the entry point for the pinstack log service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/pinstack/internal/api"
	"github.com/onnwee/pinstack/internal/audit"
	"github.com/onnwee/pinstack/internal/auth"
	"github.com/onnwee/pinstack/internal/config"
	"github.com/onnwee/pinstack/internal/errtrack"
	"github.com/onnwee/pinstack/internal/health"
	"github.com/onnwee/pinstack/internal/logging"
	"github.com/onnwee/pinstack/internal/logstore"
	"github.com/onnwee/pinstack/internal/middleware"
)

// rateLimitCleanupInterval is how often expired in-memory rate limit
// windows are evicted. Not used with the Redis store, which expires
// keys itself.
const rateLimitCleanupInterval = 5 * time.Minute

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	if *help {
		fmt.Println("Pinstack Log Service")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", e)
		}
		os.Exit(1)
	}

	console := middleware.NewLogger(cfg.Env)
	slog.SetDefault(console)
	console.Info("configuration loaded", "config", cfg.LogSummary())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	storeMetrics := logstore.NewMetrics()
	if err := storeMetrics.Register(registry); err != nil {
		console.Error("failed to register store metrics", "error", err)
		os.Exit(1)
	}

	var archiver logstore.Archiver
	if cfg.ArchiveEnabled() {
		s3, err := logstore.NewS3Archiver(logstore.S3ArchiverConfig{
			BucketName:      cfg.ArchiveBucketName,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			Endpoint:        cfg.ArchiveEndpoint,
			Prefix:          cfg.ArchivePrefix,
		})
		if err != nil {
			console.Error("failed to initialize archiver", "error", err)
			os.Exit(1)
		}
		archiver = s3
		console.Info("log archiving enabled", "bucket", cfg.ArchiveBucketName)
	}

	store, err := logstore.New(logstore.Config{
		BaseDir:       cfg.LogDir,
		RetentionDays: cfg.LogRetentionDays,
		MaxFileSize:   int64(cfg.LogMaxFileSizeMB) * 1024 * 1024,
		Archiver:      archiver,
		Metrics:       storeMetrics,
	})
	if err != nil {
		console.Error("failed to initialize log store", "error", err, "dir", cfg.LogDir)
		os.Exit(1)
	}

	minLevel, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		console.Error("invalid log level", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{
		MinLevel: minLevel,
		Console:  cfg.LogConsole,
		File:     cfg.LogFile,
	}, store.Write)

	errMetrics := errtrack.NewMetrics()
	if err := errMetrics.Register(registry); err != nil {
		console.Error("failed to register error metrics", "error", err)
		os.Exit(1)
	}
	tracker := errtrack.NewTracker(logger, cfg.DedupeWindow(), errMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eviction := errtrack.NewEvictionService(tracker.Dedupe(), console, cfg.DedupeCleanupInterval())
	eviction.Start(ctx)

	retention := logstore.NewRetentionService(store, console, logstore.DefaultRetentionInterval)
	retention.Start(ctx)

	trail := audit.NewTrail(store, logger)
	jwtService := auth.NewJWTService(cfg.JWTSecret)

	mwMetrics := middleware.NewMetrics()
	if err := mwMetrics.Register(registry); err != nil {
		console.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}

	// Rate limit state lives in Redis when configured, so limits hold
	// across instances. Otherwise an in-memory store with periodic
	// eviction of stale windows.
	var limitStore middleware.RateLimitStore
	var redisChecker api.HealthChecker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer client.Close()
		limitStore = middleware.NewRedisRateLimitStore(client, console, mwMetrics)
		redisChecker = health.NewRedisChecker(client)
		console.Info("redis rate limiting enabled", "addr", cfg.RedisAddr)
	} else {
		memStore := middleware.NewInMemoryRateLimitStore()
		limitStore = memStore
		go func() {
			ticker := time.NewTicker(rateLimitCleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					memStore.Cleanup()
				}
			}
		}()
	}

	globalLimit := middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimitPerMinute,
		WindowDuration:    time.Minute,
	}

	requireAdmin := middleware.RequireAuth(jwtService, true)
	queryLimiter := middleware.RateLimiter(limitStore, middleware.DefaultQueryLimit(), middleware.UserKeyFunc())

	mux := api.NewRouter(api.RouterConfig{
		Logs:   api.NewLogHandlers(store),
		Stream: api.NewStreamHandlers(store),
		Audit:  api.NewAuditHandlers(trail),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			StoreChecker: health.NewStoreChecker(cfg.LogDir),
			RedisChecker: redisChecker,
		}),
		Auth:           requireAdmin,
		QueryLimiter:   queryLimiter,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	// Correlator runs innermost so it sees the final status and any error
	// code set by the handlers; RequestID runs first so every later stage
	// has an ID to correlate on.
	handler := middleware.RequestID(
		middleware.Tracing("pinstack")(
			middleware.HTTPMetrics(mwMetrics)(
				middleware.RateLimiter(limitStore, globalLimit, middleware.IPKeyFunc())(
					middleware.Correlator(middleware.CorrelatorConfig{
						Logger:  logger,
						Console: console,
					})(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No write timeout: /api/logs/stream holds its connection open
		// indefinitely. Handlers bound their own work instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		console.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		logger.Info("service started", logging.Context{"port": cfg.Port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			tracker.Capture(err, logging.Context{"source": "http-server"})
			console.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	console.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		console.Error("server forced to shutdown", "error", err)
	}

	cancel()
	retention.Stop()
	eviction.Stop()

	logger.Info("service stopped")
	logger.Flush()
	logger.Close()

	console.Info("server stopped")
}
