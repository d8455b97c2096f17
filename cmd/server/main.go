// phishcoach - Phishing Awareness Training Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/phishcoach/internal/api"
	"github.com/ashureev/phishcoach/internal/config"
	"github.com/ashureev/phishcoach/internal/generation"
	"github.com/ashureev/phishcoach/internal/interaction"
	"github.com/ashureev/phishcoach/internal/llm"
	"github.com/ashureev/phishcoach/internal/metrics"
	"github.com/ashureev/phishcoach/internal/middleware"
	"github.com/ashureev/phishcoach/internal/prompt"
	"github.com/ashureev/phishcoach/internal/retention"
	"github.com/ashureev/phishcoach/internal/session"
	"github.com/ashureev/phishcoach/internal/source"
	"github.com/ashureev/phishcoach/internal/store"
	"github.com/ashureev/phishcoach/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.OpenAI.Model)

	// Prompt templates are required; a missing or broken file is fatal.
	templates, err := prompt.Load(cfg.Sources.TemplatesPath)
	if err != nil {
		slog.Error("Failed to load prompt templates", "path", cfg.Sources.TemplatesPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Prompt templates loaded", "names", templates.Names())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize services.
	model := llm.NewObserved(llm.NewOpenAI(cfg.OpenAI), m, repo, logger.With("component", "llm"))

	ctrl := interaction.NewController(templates, model, m, logger.With("component", "interaction"))
	gen := generation.New(
		source.Files{
			SamplesPath: cfg.Sources.SamplesPath,
			ContextPath: cfg.Sources.ContextPath,
			Logger:      logger.With("component", "source"),
		},
		templates,
		model,
		generation.Options{
			NormalizeHTML: cfg.Generation.NormalizeHTML,
			Metrics:       m,
			Logger:        logger.With("component", "generation"),
		},
	)
	sess := session.New(ctrl, gen, session.Options{
		EnvironmentID: cfg.Generation.EnvironmentID,
		UserID:        cfg.Generation.UserID,
		BatchSize:     cfg.Generation.BatchSize,
		Journal:       repo,
		Metrics:       m,
		Logger:        logger.With("component", "session"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	trainingHandler := api.NewTrainingHandler(sess, repo, web.Handler(), middleware.RateLimit(limiter))
	streamHandler := api.NewStreamHandler(sess, api.OriginPatterns(cfg.AllowedOrigins))

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	trainingHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// WebSocket endpoint.
	r.Get("/ws/generate", streamHandler.ServeHTTP)

	// Serve embedded frontend assets.
	r.Handle("/*", web.Handler())

	// Language model calls can take tens of seconds, so there is no write timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	retention.StartWorker(ctx, repo, cfg.Retention.ExchangeTTL, cfg.Retention.Interval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
