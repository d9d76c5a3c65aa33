// identityd is the identity service daemon.
//
// It serves account registration, login, token refresh, and claim-based
// authorisation over a REST API backed by a local SQLite store. The
// daemon is designed to run unattended: embedded migrations, an
// auto-seeded admin account on first start, and a periodic sweep of
// expired refresh tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/icsolutions/identity-core/migrations"

	"github.com/icsolutions/identity-core/internal/api"
	"github.com/icsolutions/identity-core/internal/audit"
	"github.com/icsolutions/identity-core/internal/email"
	"github.com/icsolutions/identity-core/internal/identity"
	"github.com/icsolutions/identity-core/internal/infrastructure/config"
	"github.com/icsolutions/identity-core/internal/infrastructure/database"
	"github.com/icsolutions/identity-core/internal/infrastructure/logging"
	"github.com/icsolutions/identity-core/internal/obs"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// tokenSweepInterval is how often expired refresh tokens are purged.
const tokenSweepInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting identity service",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories and the refresh-token ledger
	accounts := identity.NewAccountRepository(db.DB)
	roles := identity.NewRoleRepository(db.DB)
	ledger := identity.NewTokenLedger(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Confirmation mailer: real SMTP when configured, otherwise the
	// tokens are written to the log so development setups still work.
	var mailer identity.ConfirmationMailer
	if cfg.Email.Enabled {
		mailer = email.NewSMTPSender(cfg.Email, log)
		log.Info("SMTP mailer configured", "host", cfg.Email.Host, "port", cfg.Email.Port)
	} else {
		mailer = email.NewLogSender(log)
		log.Info("SMTP disabled, confirmation tokens will be logged")
	}

	service := identity.NewService(identity.Deps{
		Accounts: accounts,
		Roles:    roles,
		Ledger:   ledger,
		Mailer:   mailer,
		Logger:   log,
	}, identity.Config{
		JWTSecret:         cfg.Security.JWT.Secret,
		JWTIssuer:         cfg.Security.JWT.Issuer,
		AccessTokenTTL:    time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute,
		RefreshTokenTTL:   time.Duration(cfg.Security.JWT.RefreshTokenTTL) * time.Minute,
		MaxFailedAttempts: cfg.Security.Lockout.MaxFailedAttempts,
		LockoutDuration:   time.Duration(cfg.Security.Lockout.Duration) * time.Minute,
	})

	// Seed the initial admin on an empty database. The generated
	// password appears once in the log and must be changed after the
	// first login.
	if _, seedErr := identity.SeedAdmin(ctx, accounts, roles, log); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Register Prometheus collectors before the first scrape
	obs.Init()

	// Start API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Service:  service,
		Accounts: accounts,
		Roles:    roles,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Periodic sweep of expired refresh tokens
	go sweepExpiredTokens(ctx, service, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Database

	log.Info("identity service stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IDENTITY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IDENTITY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// sweepExpiredTokens periodically deletes expired refresh tokens so the
// ledger does not accumulate rows for accounts that never log out.
func sweepExpiredTokens(ctx context.Context, service *identity.Service, log *logging.Logger) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := service.SweepExpiredTokens(ctx)
			if err != nil {
				log.Error("sweeping expired refresh tokens", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("swept expired refresh tokens", "removed", removed)
			}
		}
	}
}
