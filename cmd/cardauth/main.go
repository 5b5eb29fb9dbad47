package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"

	"cardauth/internal/banks/alfabank"
	"cardauth/internal/banks/kapitalbank"
	"cardauth/internal/banks/unibank"
	"cardauth/internal/common/database"
	"cardauth/internal/common/events"
	"cardauth/internal/common/middleware"
	natsclient "cardauth/internal/common/nats"
	"cardauth/internal/threeds"
	"cardauth/internal/threeds/api"
	"cardauth/internal/threeds/store"
)

// Config holds service configuration
type Config struct {
	Port           int      `envconfig:"CARDAUTH_PORT" default:"8086"`
	Environment    string   `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel       string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string   `envconfig:"LOG_FORMAT" default:"json"`
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Threeds  threeds.Config
	Database database.Config
	NATS     natsclient.Config

	Alfabank    alfabank.Config
	Kapitalbank kapitalbank.Config
	Unibank     unibank.Config
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Run migrations
	if err := database.Migrate(cfg.Database.URL, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS; the broker is optional and outcome events are
	// skipped when no URL is configured.
	var publisher events.Publisher
	if cfg.NATS.URL != "" {
		natsClient, err := natsclient.New(ctx, cfg.NATS, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()

		if _, err := natsClient.EnsureStream(ctx, natsclient.DefaultStreamConfig(
			"THREEDS", []string{"threeds.>"},
		)); err != nil {
			logger.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}

		publisher = natsclient.NewPublisher(natsClient, logger)
	} else {
		logger.Warn("NATS URL not configured, outcome events disabled")
	}

	// Register bank adapters; registration order decides ties when BIN
	// ranges overlap.
	registry := threeds.NewRegistry(logger)
	registry.Register(alfabank.NewAdapter(cfg.Alfabank, logger))
	registry.Register(kapitalbank.NewAdapter(cfg.Kapitalbank, logger))
	registry.Register(unibank.NewAdapter(cfg.Unibank, logger))

	// Create services
	attempts := store.NewPostgresStore(db)
	threedsService := threeds.NewService(cfg.Threeds, registry, attempts, publisher, logger)

	// Create handlers
	threedsHandler := api.NewHandler(threedsService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.ClientIP)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.MerchantExtractor)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// API routes
	r.Route("/3dsecure", func(r chi.Router) {
		r.Mount("/", threedsHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting cardauth service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"active_banks", len(registry.ListActive()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
