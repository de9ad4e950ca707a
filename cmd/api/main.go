package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kestrelworks/beacon/internal/auth"
	"github.com/kestrelworks/beacon/internal/background"
	"github.com/kestrelworks/beacon/internal/config"
	"github.com/kestrelworks/beacon/internal/database"
	"github.com/kestrelworks/beacon/internal/handlers"
	"github.com/kestrelworks/beacon/internal/middleware"
	"github.com/kestrelworks/beacon/internal/repositories"
	"github.com/kestrelworks/beacon/internal/routes"
	"github.com/kestrelworks/beacon/internal/services"
	"github.com/kestrelworks/beacon/internal/session"
	"github.com/kestrelworks/beacon/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Run migrations through database/sql; the pool below uses pgx natively
	if err := runMigrations(cfg); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	contactRepo := repositories.NewContactRepository(db)

	// Server-side state: sessions and rate-limit counters
	sessions := session.NewManager(cfg.Auth.SessionTTL)
	counters := middleware.NewMemoryCounterStore()

	cookieConfig := auth.CookieConfig{Secure: cfg.Server.Env == "production"}

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 100})

	twoFactorManager := auth.NewTwoFactorManager(cfg.Auth.TwoFactorIssuer)

	// AWS SES email service
	emailService, err := services.NewAWSSESEmailService(
		cfg.Email.AWSRegion,
		cfg.Email.FromAddress,
		cfg.Email.ResetURLBase,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	authService := services.NewAuthService(userRepo, timingDelay, logger)
	passwordResetService := services.NewPasswordResetService(userRepo, emailService, sessions, logger, cfg.Auth.ResetTokenTTL)
	twoFactorService := services.NewTwoFactorService(userRepo, twoFactorManager, logger, cfg.Auth.BackupCodeCount)

	// Initialize handlers
	h := &routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, sessions, userRepo, cfg.Auth.SessionTTL, cookieConfig),
		PasswordReset: handlers.NewPasswordResetHandler(passwordResetService),
		TwoFactor:     handlers.NewTwoFactorHandler(twoFactorService, sessions, userRepo),
		CSRF:          handlers.NewCSRFHandler(cfg.Auth.CSRFTokenTTL, cookieConfig),
		Contact:       handlers.NewContactHandler(contactRepo),
		Admin:         handlers.NewAdminHandler(userRepo),
	}

	// Bootstrap admin account from the environment
	if cfg.Admin.IsComplete() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := authService.EnsureAdminUser(ctx, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.Email); err != nil {
			logger.Error("failed to ensure admin user", slog.Any("error", err))
		}
		cancel()
	} else {
		// config.Load already refuses to start in production without these
		logger.Info("admin bootstrap credentials not set, skipping admin user creation")
	}

	// Setup CORS middleware
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middleware.CORS(corsConfig))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))
	router.Use(middleware.APIRateLimit(counters))

	// Register API routes behind CSRF protection
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.CSRFProtection(cfg.Auth.CSRFTokenTTL, cookieConfig, logger))
		routes.RegisterRoutes(r, h, sessions, userRepo, counters)
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(sessions, counters, userRepo, logger, cfg.Auth.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// runMigrations applies embedded goose migrations over a short-lived
// database/sql connection.
func runMigrations(cfg *config.Config) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	return migrations.Migrate(sqlDB)
}
