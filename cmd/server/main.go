package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashcbrd/genealogy-buddy-ai/internal"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai/anthropic"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai/mock"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/billing"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/handler"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/metrics"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/ratelimit"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/repository"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/resilience"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/storage"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Resilience layer shared by every database-touching service
	breaker := resilience.NewBreaker(5, 30*time.Second)
	retrier := resilience.NewRetrier(breaker, 3, 100*time.Millisecond, logger)
	healthChecker := resilience.NewHealthChecker(db, breaker, resilience.DefaultHealthTTL)

	// Initialize storage backend
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Initialize AI provider
	provider, err := newAIProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	// Rate limiter for analysis requests, shared across scopes
	limiter := ratelimit.NewMultiLimiter(
		ratelimit.Config{MaxRequests: cfg.RateLimitPerIP, Window: cfg.RateLimitWindow},
		ratelimit.Config{MaxRequests: cfg.RateLimitPerUser, Window: cfg.RateLimitWindow},
		ratelimit.Config{MaxRequests: cfg.RateLimitEndpoint, Window: cfg.RateLimitWindow},
	)
	defer limiter.Stop()

	// Initialize services
	identityService := service.NewIdentityService(repo, db, logger)
	userService := service.NewUserService(repo, identityService, logger)
	usageService := service.NewUsageService(repo, retrier, logger)
	gateService := service.NewGateService(limiter, usageService, logger)
	artifactService := service.NewArtifactService(repo, store, service.NewImagingProcessor(), logger)
	analysisService := service.NewAnalysisService(repo, provider, artifactService, retrier, logger)

	// Stripe billing is optional; without credentials the billing
	// endpoints report unavailable and webhooks are ignored.
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ExplorerMonthlyPriceID:     cfg.StripeExplorerMonthlyPriceID,
			ExplorerYearlyPriceID:      cfg.StripeExplorerYearlyPriceID,
			ResearcherMonthlyPriceID:   cfg.StripeResearcherMonthlyPriceID,
			ResearcherYearlyPriceID:    cfg.StripeResearcherYearlyPriceID,
			ProfessionalMonthlyPriceID: cfg.StripeProfessionalMonthlyPriceID,
			ProfessionalYearlyPriceID:  cfg.StripeProfessionalYearlyPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled: STRIPE_SECRET_KEY not set")
	}

	// Initialize middleware
	isSecure := cfg.IsProduction()
	authMw := middleware.NewAuthMiddleware(userService, identityService, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, logger, isSecure)
	analysisHandler := handler.NewAnalysisHandler(analysisService, gateService, logger)
	artifactHandler := handler.NewArtifactHandler(artifactService, logger)
	usageHandler := handler.NewUsageHandler(usageService, logger)
	healthHandler := handler.NewHealthHandler(healthChecker, logger)
	billingHandler := handler.NewBillingHandler(billingService, userService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, userService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health and metrics (outside the identity stack)
	healthHandler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Stripe webhooks authenticate by signature, not session
	webhookHandler.RegisterRoutes(mux)

	// Locally stored artifacts are served straight from disk in development
	if cfg.StorageProvider == storage.ProviderLocal {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// API routes. Every request resolves an identity; protected routes
	// additionally require a logged-in user.
	api := http.NewServeMux()
	requireUser := middleware.Stack(authMw.RequireUser)

	api.Handle("POST /api/auth/login", authLimiter.LimitLogin(http.HandlerFunc(authHandler.Login)))
	api.Handle("POST /api/auth/register", authLimiter.LimitRegister(http.HandlerFunc(authHandler.Register)))
	api.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	api.Handle("GET /api/auth/me", requireUser(http.HandlerFunc(authHandler.Me)))

	analysisHandler.RegisterRoutes(api)
	artifactHandler.RegisterRoutes(api)
	usageHandler.RegisterRoutes(api)
	billingHandler.RegisterRoutes(api, requireUser)

	identityStack := middleware.Stack(authMw.WithUser, authMw.WithIdentity)
	mux.Handle("/api/", identityStack(api))

	// Outermost middleware: logging, metrics, security headers
	root := middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		securityMw.Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage builds the storage backend selected by configuration.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

// newAIProvider builds the AI provider selected by configuration.
func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider == "anthropic" {
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	}
	return mock.New(logger), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
