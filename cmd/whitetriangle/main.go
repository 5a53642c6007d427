package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	cfg "github.com/sand/whitetriangle/backend/config"
	"github.com/sand/whitetriangle/backend/internal/handlers"
	"github.com/sand/whitetriangle/backend/internal/support"
	supportclients "github.com/sand/whitetriangle/backend/internal/support/clients"
	supportrepository "github.com/sand/whitetriangle/backend/internal/support/repository"
	"github.com/sand/whitetriangle/backend/internal/usecases"
	"github.com/sand/whitetriangle/backend/internal/usecases/mocked"
	"github.com/sand/whitetriangle/backend/internal/usecases/repository"
	"github.com/sand/whitetriangle/backend/internal/workers"
	"github.com/sand/whitetriangle/backend/pkg/cache"
	"github.com/sand/whitetriangle/backend/pkg/database"
)

// Server timeout constants. Writes allow for a slow support reply.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 90
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Parse configuration
	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	opts := &slog.HandlerOptions{
		Level: config.Log.Level,
	}

	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"environment", config.App.Environment,
		"server_port", config.HTTP.Port,
		"postgres", config.DB.DatabaseURL != "",
		"redis", config.Redis.URL != "",
		"support_model", config.Support.Model)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feeRate, err := decimal.NewFromString(config.Escrow.FeeRate)
	if err != nil {
		logger.Error("Invalid escrow fee rate", "fee_rate", config.Escrow.FeeRate, "error", err)
		log.Fatal(err)
	}

	// Order storage
	ordersRepository, closeOrders, err := initOrdersRepository(ctx, logger, config)
	if err != nil {
		logger.Error("Failed to initialize order storage", "error", err)
		log.Fatal(err)
	}
	defer closeOrders()

	if config.Escrow.SeedDemoData {
		seeded, err := mocked.SeedOrders(ctx, ordersRepository, feeRate, time.Now())
		if err != nil {
			logger.Error("Failed to seed demo orders", "error", err)
			log.Fatal(err)
		}
		logger.Info("Demo orders seeded", "count", seeded)
	}

	// Support transcripts
	transcripts, closeTranscripts := initTranscripts(ctx, logger, config)
	defer closeTranscripts()

	// Create usecases and components
	orderHub := handlers.NewOrderHub(logger)
	defer orderHub.Close()

	orderService := usecases.NewOrderService(logger, ordersRepository, orderHub,
		usecases.WithFeeRate(feeRate),
		usecases.WithLockDelay(config.Escrow.LockDelay),
	)

	tokenIssuer := usecases.NewTokenIssuer(config.Auth.JWTSecret, config.Auth.TokenTTL)
	authService := usecases.NewAuthService(logger, repository.NewUsersRepository(logger, config.Auth.TokenTTL), tokenIssuer, config.Auth.ChallengeTTL)

	gemini := supportclients.NewGeminiClient(ctx, logger, config.Support.APIKey)
	supportService := support.NewSupportService(logger, gemini, transcripts, support.Config{
		Model:          config.Support.Model,
		ThinkingBudget: config.Support.ThinkingBudget,
		Temperature:    config.Support.Temperature,
		Timeout:        config.Support.Timeout,
	})

	// Initialize and run workers
	expirer := workers.NewOrderExpirer(logger, orderService, config.Escrow.OrderExpiration, config.Escrow.ExpiryCheckInterval)
	go expirer.Start(ctx)

	// Create handlers
	httpHandler := handlers.NewHTTPHandler(logger, orderService, authService, supportService)
	wsHandler := handlers.NewWebSocketHandler(logger, orderHub)

	// Create router
	router := mux.NewRouter()

	// Register WebSocket routes before HTTP routes
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Client-Location"},
		AllowCredentials: true,
	})

	// Wrap router in CORS middleware
	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer cancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

// initOrdersRepository connects to Postgres when a database URL is configured
// and falls back to the in-memory store otherwise.
func initOrdersRepository(ctx context.Context, logger *slog.Logger, config *cfg.Config) (usecases.OrdersRepository, func(), error) {
	if config.DB.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is empty, orders are kept in memory")
		return repository.NewMemoryOrdersRepository(logger), func() {}, nil
	}

	pg, err := database.New(ctx, config.DB.DatabaseURL,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
	)
	if err != nil {
		return nil, nil, err
	}

	migrationsPath := database.ResolveMigrationsPath(config.DB.MigrationsPath)
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("Database migrations completed successfully")

	return repository.NewOrdersRepository(logger, pg), pg.Close, nil
}

// initTranscripts uses Redis when reachable and memory otherwise.
func initTranscripts(ctx context.Context, logger *slog.Logger, config *cfg.Config) (support.TranscriptRepository, func()) {
	if config.Redis.URL == "" {
		return supportrepository.NewMemoryTranscripts(), func() {}
	}

	client, err := cache.Connect(ctx, config.Redis.URL)
	if err != nil {
		logger.Error("Redis unavailable, support transcripts are kept in memory", "error", err)
		return supportrepository.NewMemoryTranscripts(), func() {}
	}

	logger.Info("Support transcripts stored in Redis", "ttl", config.Redis.TranscriptTTL.String())
	return supportrepository.NewRedisTranscripts(logger, client, config.Redis.TranscriptTTL), func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close redis client", "error", err)
		}
	}
}
