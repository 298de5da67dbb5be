// Package main is the entry point for the veriscope-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/database"
	"github.com/veriscope/veriscope-api/internal/http/handlers"
	"github.com/veriscope/veriscope-api/internal/http/mw"
	"github.com/veriscope/veriscope-api/internal/logging"
	"github.com/veriscope/veriscope-api/internal/metrics"
	"github.com/veriscope/veriscope-api/internal/repository"
	"github.com/veriscope/veriscope-api/internal/service"
	"github.com/veriscope/veriscope-api/internal/version"
	"github.com/veriscope/veriscope-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection and format control
	logger := logging.SetDefault()

	// Log version info first thing
	v := version.Get()
	logger.Info("starting veriscope-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations
	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if schemaVersion, err := database.SchemaVersion(db); err == nil && schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	// Initialize repositories and metrics
	repos := repository.NewRepositories(db)
	m := metrics.New()

	// Initialize services. Startup work (the SEC symbol-map download)
	// is bounded so a slow upstream cannot block boot indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	services, err := service.NewServices(startupCtx, cfg, repos, m, logger)
	startupCancel()
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	// Start the maintenance worker (fact-cache sweep, quota-ledger prune)
	maintenance := worker.New(services.Facts, repos.Quota, worker.Config{
		SweepInterval:  cfg.SweepInterval,
		QuotaRetention: cfg.QuotaRetention,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	maintenance.Start(ctx)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(mw.ObserveRequests(m))

	// Request timeout middleware; the LLM-backed endpoints get the
	// extended end-to-end deadline
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:          15 * time.Second,
		Extended:         cfg.RequestTimeout,
		ExtendedPatterns: []string{"/query", "/synthesize"},
	}))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (1MB) - prevent large payload attacks
	router.Use(middleware.RequestSize(1 * 1024 * 1024))

	// Global rate limit by IP and concurrency throttle
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	// Create Huma API config for main API with OpenAPI docs
	humaConfig := huma.DefaultConfig("Veriscope API", version.Get().Short())
	humaConfig.Info.Description = "Citation-grounded research assistant: financial facts, academic papers, and web context behind a quota-gated LLM pipeline."
	humaConfig.Servers = []*huma.Server{
		{URL: cfg.BaseURL, Description: "API Server"},
	}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Bearer token from /api/v1/auth/login or /api/v1/auth/register.",
		},
	}

	// Main API with OpenAPI docs
	api := humachi.New(router, humaConfig)

	// Config for hidden routes (K8s probes - no docs needed)
	hiddenConfig := huma.DefaultConfig("Veriscope API", version.Get().Short())
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	// Config for protected routes (documented by the main API)
	protectedConfig := huma.DefaultConfig("Veriscope API", version.Get().Short())
	protectedConfig.Info.Description = humaConfig.Info.Description
	protectedConfig.Servers = humaConfig.Servers
	protectedConfig.DocsPath = ""
	protectedConfig.OpenAPIPath = ""
	protectedConfig.SchemasPath = ""

	// Health check (public, shown in docs)
	huma.Get(api, "/api/v1/health", handlers.HealthCheck)

	// Registration and login (public by nature)
	authHandler := handlers.NewAuthHandler(services.Auth, services.Quota.Ceiling())
	huma.Post(api, "/api/v1/auth/register", authHandler.Register)
	huma.Post(api, "/api/v1/auth/login", authHandler.Login)

	// Kubernetes probes (hidden from docs - internal use only)
	huma.Get(hiddenAPI, "/healthz", handlers.Livez)
	readyzHandler := handlers.NewReadyzHandler(db)
	huma.Get(hiddenAPI, "/readyz", readyzHandler.Readyz)

	// Prometheus scrape endpoint
	router.Handle("/metrics", m.Handler())

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(mw.Auth(services.Auth))

		protectedAPI := humachi.New(r, protectedConfig)

		// Grounded pipeline
		huma.Post(protectedAPI, "/api/v1/query", handlers.NewQueryHandler(services.Query).Query)
		huma.Post(protectedAPI, "/api/v1/synthesize", handlers.NewSynthesizeHandler(services.Synthesis).Synthesize)

		// Financial facts
		financeHandler := handlers.NewFinanceHandler(services.Finance)
		huma.Get(protectedAPI, "/api/v1/finance/metrics", financeHandler.ListMetrics)
		huma.Get(protectedAPI, "/api/v1/finance/{ticker}/metrics/{metric}", financeHandler.ComputeMetric)
		huma.Get(protectedAPI, "/api/v1/finance/{ticker}/quote", financeHandler.GetQuote)

		// Papers and web search
		papersHandler := handlers.NewPapersHandler(services.Papers)
		huma.Get(protectedAPI, "/api/v1/papers", papersHandler.SearchPapers)
		huma.Get(protectedAPI, "/api/v1/papers/lookup", papersHandler.GetPaper)
		huma.Get(protectedAPI, "/api/v1/search", handlers.NewSearchHandler(services.Web).WebSearch)

		// Quota ledger
		huma.Get(protectedAPI, "/api/v1/usage", handlers.NewUsageHandler(services.Quota).GetUsage)
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan

		logger.Info("shutting down server")

		cancel()
		maintenance.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
