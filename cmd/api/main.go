// Package main is the entrypoint for the Linkden API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/linkden/linkden/internal/cache"
	"github.com/linkden/linkden/internal/clicks"
	"github.com/linkden/linkden/internal/config"
	"github.com/linkden/linkden/internal/handler"
	"github.com/linkden/linkden/internal/metrics"
	"github.com/linkden/linkden/internal/middleware"
	"github.com/linkden/linkden/internal/repository"
	"github.com/linkden/linkden/internal/safety"
	"github.com/linkden/linkden/internal/server"
	"github.com/linkden/linkden/internal/service"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Redis is optional. Without it the resolver reads straight from
	// Postgres and creation rate limiting is off.
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL, cfg.RedisPoolSize, cfg.RedisMinIdleConns)
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		defer cacheClient.Close()
		logger.Info("connected to Redis")
	} else {
		logger.Warn("no REDIS_URL configured, running without cache")
	}

	metricsRecorder := metrics.NewInMemory()

	gate := safety.New(repo, repo, safety.Policy{
		AllowedSchemes:     cfg.GetAllowedSchemes(),
		DenyPrivateTargets: cfg.DenyPrivateTargets,
	}, logger)

	recorder := clicks.NewRecorder(repo, clicks.NewHasher(cfg.ClickHashKey), clicks.RecorderConfig{
		QueueSize:     cfg.ClickQueueSize,
		BatchSize:     cfg.ClickBatchSize,
		FlushInterval: cfg.ClickFlushInterval,
	}, metricsRecorder, logger)
	go recorder.Run()

	aggregator := clicks.NewAggregator(repo, metricsRecorder, logger)
	if err := aggregator.Start(cfg.AggregateAt); err != nil {
		logger.Error("failed to schedule aggregation", "error", err)
		os.Exit(1)
	}

	var linkCache service.LinkCache
	if cacheClient != nil {
		linkCache = cacheClient
	}
	linkService := service.NewLinkService(repo, repo, linkCache, gate, service.Options{
		AllowedSchemes: cfg.GetAllowedSchemes(),
		StrictSafety:   cfg.StrictSafety,
		LookupTimeout:  cfg.LookupTimeout,
		BaseURL:        cfg.BaseURL,
	}, metricsRecorder, logger)

	healthHandler := handler.NewHealthHandler(repo, pinger(cacheClient))
	linkHandler := handler.NewLinkHandler(linkService, logger)
	redirectHandler := handler.NewRedirectHandler(linkService, recorder, logger)
	adminHandler := handler.NewAdminHandler(repo, linkService, logger)
	metricsHandler := handler.NewMetricsHandler(metricsRecorder, recorder.QueueDepth)

	router := setupRouter(ctx, routerDeps{
		health:   healthHandler,
		link:     linkHandler,
		redirect: redirectHandler,
		admin:    adminHandler,
		metrics:  metricsHandler,
		cache:    cacheClient,
		cfg:      cfg,
		logger:   logger,
	})

	srv := server.New(router, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// LIFO: the recorder flushes its queue before the pool would close.
	srv.OnShutdown("aggregator", func(context.Context) error {
		aggregator.Stop()
		return nil
	})
	srv.OnShutdown("click recorder", recorder.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"strict_safety", cfg.StrictSafety,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

type routerDeps struct {
	health   *handler.HealthHandler
	link     *handler.LinkHandler
	redirect *handler.RedirectHandler
	admin    *handler.AdminHandler
	metrics  *handler.MetricsHandler
	cache    *cache.Cache
	cfg      *config.Config
	logger   *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(ctx context.Context, deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))

	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/metrics", deps.metrics.Metrics)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// Management API. Identity is asserted by the proxy in front.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.RequireIdentity)

		r.Route("/links", func(r chi.Router) {
			r.Get("/", deps.link.List)
			r.With(middleware.CreateRateLimit(deps.cache, deps.cfg.RateCreatePerMin, deps.logger)).
				Post("/", deps.link.Create)
			r.Get("/{id}", deps.link.Get)
			r.Patch("/{id}", deps.link.Update)
			r.Delete("/{id}", deps.link.Delete)
			r.Get("/{id}/stats", deps.link.Stats)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/denylist", deps.admin.ListDenylist)
			r.Post("/denylist", deps.admin.AddDenylistDomain)
			r.Get("/allowlist", deps.admin.ListAllowlist)
			r.Post("/allowlist", deps.admin.AddAllowlistDomain)
			r.Post("/links/{id}/recheck", deps.admin.RecheckLink)
		})
	})

	// Redirect hot path, last so API routes take precedence.
	r.With(middleware.RedirectRateLimit(ctx, float64(deps.cfg.RateRedirectRPS), deps.cfg.RateRedirectBurst)).
		Get("/{slug}", deps.redirect.Redirect)

	return r
}

// pinger adapts the nilable cache client to the health checker,
// keeping the nil a typed-nil-free nil.
func pinger(c *cache.Cache) handler.HealthChecker {
	if c == nil {
		return nil
	}
	return c
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactURL hides credentials in a connection URL for logging.
func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	if parsed.User != nil {
		parsed.User = url.User(parsed.User.Username())
	}
	return parsed.Redacted()
}

// sanitizeError strips a connection URL's password from error text.
func sanitizeError(err error, rawURL string) string {
	msg := err.Error()
	parsed, perr := url.Parse(rawURL)
	if perr != nil || parsed.User == nil {
		return msg
	}
	if pw, ok := parsed.User.Password(); ok && pw != "" {
		msg = strings.ReplaceAll(msg, pw, "***")
	}
	return msg
}
