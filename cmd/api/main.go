// Package main is the entry point for the API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/kindred-social/kindred/internal/album"
	"github.com/kindred-social/kindred/internal/api"
	"github.com/kindred-social/kindred/internal/audit"
	"github.com/kindred-social/kindred/internal/auth"
	"github.com/kindred-social/kindred/internal/block"
	"github.com/kindred-social/kindred/internal/config"
	"github.com/kindred-social/kindred/internal/db"
	"github.com/kindred-social/kindred/internal/favorite"
	"github.com/kindred-social/kindred/internal/friendship"
	"github.com/kindred-social/kindred/internal/health"
	"github.com/kindred-social/kindred/internal/idempotency"
	"github.com/kindred-social/kindred/internal/jobs"
	"github.com/kindred-social/kindred/internal/location"
	"github.com/kindred-social/kindred/internal/middleware"
	"github.com/kindred-social/kindred/internal/notify"
	"github.com/kindred-social/kindred/internal/profile"
	"github.com/kindred-social/kindred/internal/stats"
	"github.com/kindred-social/kindred/internal/tracing"
	"github.com/kindred-social/kindred/internal/upload"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Kindred API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing is optional; a disabled provider is a no-op.
	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "kindred-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: "otlp-http",
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 0.1,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Redis backs rate limiting when configured; in-memory otherwise.
	var (
		redisClient    *redis.Client
		rateLimitStore middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// Location privacy stack: derived AES key, coordinate cipher,
	// proximity engine.
	keyProvider, err := location.DeriveKey(cfg.EncryptionSecret)
	if err != nil {
		logger.Error("failed to derive encryption key", "error", err)
		os.Exit(1)
	}
	cipher, err := location.NewCipher(keyProvider)
	if err != nil {
		logger.Error("failed to initialize coordinate cipher", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register http metrics", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		rateLimitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics).AsStore()
	}
	locationMetrics := location.NewMetrics()
	if err := locationMetrics.Register(registry); err != nil {
		logger.Error("failed to register location metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	locationStats := stats.NewUpsertStats()
	locations := location.NewPostgresRepository(database).WithStats(locationStats)
	profiles := profile.NewPostgresRepository(database)
	friendships := friendship.NewPostgresRepository(database)
	favorites := favorite.NewPostgresRepository(database)
	blocks := block.NewPostgresRepository(database)
	albums := album.NewPostgresRepository(database)
	audits := audit.NewPostgresRepository(database)

	engine := location.NewEngine(cipher, locations, logger, locationMetrics)
	hub := notify.NewHub()

	friendshipSvc := friendship.NewService(friendships, profiles, hub)
	favoriteSvc := favorite.NewService(favorites, profiles, hub)
	albumSvc := album.NewService(albums, hub)

	// Photo storage is optional; without it the album photo endpoints
	// degrade to 503.
	var signer api.PhotoSigner
	if cfg.S3Enabled() {
		uploadSvc, err := upload.NewService(upload.ServiceConfig{
			BucketName:      cfg.S3BucketName,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			MaxSizeMB:       cfg.S3MaxUploadSizeMB,
		})
		if err != nil {
			logger.Error("failed to initialize upload service", "error", err)
			os.Exit(1)
		}
		signer = uploadSvc
		logger.Info("photo storage enabled", "bucket", uploadSvc.BucketName())
	} else {
		logger.Warn("photo storage not configured; album photo uploads disabled")
	}

	verifier := auth.NewChatVerifier(cfg.ChatBaseURL).WithAPIKey(cfg.ChatAPIKey)
	sessions := auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret)

	// Daily retention pass over audit log IPs.
	anonymizationJob := audit.NewAnonymizationJob(audit.AnonymizationJobConfig{
		Anonymizer: audits,
		Logger:     logger,
	})
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if _, err := anonymizationJob.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("audit IP anonymization failed", "error", err)
					jobMetrics.IncJobsTotal(jobs.JobTypeIPAnonymization, jobs.StatusFailure)
					jobMetrics.IncJobErrors(jobs.JobTypeIPAnonymization, "run_failed")
				} else {
					jobMetrics.IncJobsTotal(jobs.JobTypeIPAnonymization, jobs.StatusSuccess)
				}
				jobMetrics.ObserveJobDuration(jobs.JobTypeIPAnonymization, time.Since(start).Seconds())
			}
		}
	}()

	// Duplicate-submission protection for request-creating POSTs, with
	// hourly expiry of cached responses.
	idempotencyKeys := idempotency.NewInMemoryRepository()
	go idempotency.RunPeriodicCleanup(idempotencyKeys, time.Hour, 24*time.Hour, ctx.Done())

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				locationStats.LogSummary(logger, "user_locations")
			}
		}
	}()

	healthConfig := api.HealthHandlersConfig{
		DBChecker: health.NewDBChecker(database),
	}
	if redisClient != nil {
		healthConfig.RedisChecker = health.NewRedisChecker(redisClient)
	}

	router := api.NewRouter(api.RouterConfig{
		Location:     api.NewLocationHandlers(cipher, locations, engine, blocks).WithAudit(audits).WithMetrics(locationMetrics),
		Profile:      api.NewProfileHandlers(profiles, locations, cipher),
		Friend:       api.NewFriendHandlers(friendshipSvc, profiles, locations, cipher),
		Favorite:     api.NewFavoriteHandlers(favoriteSvc, profiles),
		Block:        api.NewBlockHandlers(blocks, profiles).WithAudit(audits),
		Album:        api.NewAlbumHandlers(albumSvc, signer).WithAudit(audits),
		Notification: api.NewNotificationHandlers(hub),
		Health:       api.NewHealthHandlers(healthConfig),
		Session:      api.NewSessionHandlers(verifier, sessions),
		Verifier:     verifier,
		Sessions:     sessions,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry: registry,
		}),
	})

	// Middleware chain, outermost first: RequestID -> Tracing ->
	// Logging -> HTTPMetrics -> RateLimiter -> CORS -> Idempotency ->
	// router.
	var handler http.Handler = router
	handler = middleware.IdempotencyMiddleware(idempotencyKeys, map[string]bool{
		"/api/friends/requests": true,
		"/api/favorites":        true,
		"/api/blocks":           true,
		"/api/albums":           true,
	})(handler)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins:   strings.Split(origins, ","),
			AllowCredentials: true,
			MaxAge:           300,
		})(handler)
	}
	// Session issuance gets a stricter per-IP limit than the rest of
	// the API.
	handler = middleware.PathRateLimiter("/api/auth/", rateLimitStore, middleware.DefaultAuthLimit(), middleware.IPKeyFunc())(handler)
	handler = middleware.InstrumentedRateLimiter(rateLimitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc(), httpMetrics, "ip")(handler)
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("kindred-api")(handler)
	}
	handler = middleware.RequestID(handler)
	if cfg.Env == "development" {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
