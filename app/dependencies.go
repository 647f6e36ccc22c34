package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sheetwise/modelmux/auth"
	"github.com/sheetwise/modelmux/config"
	"github.com/sheetwise/modelmux/handlers"
	"github.com/sheetwise/modelmux/internal/secrets"
	"github.com/sheetwise/modelmux/middleware"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/repositories/postgres"
	"github.com/sheetwise/modelmux/services/registry"
	"github.com/sheetwise/modelmux/services/routing"
	"github.com/sheetwise/modelmux/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	ModelConfigs    repositories.ModelConfigRepository
	RoutingPolicies repositories.RoutingPolicyRepository
	UsageLogs       repositories.UsageLogRepository
	TxManager       repositories.TransactionManager

	// Services
	Cipher        *secrets.Cipher
	Registry      *registry.Service
	UsageRecorder *usage.Recorder
	Router        *routing.Manager

	// Middleware
	AuthMiddleware   *middleware.AuthMiddleware
	APIKeyMiddleware *middleware.APIKeyMiddleware

	// Handlers
	ChatHandler        *handlers.ChatHandler
	ModelConfigHandler *handlers.ModelConfigHandler
	PolicyHandler      *handlers.RoutingPolicyHandler
	UsageHandler       *handlers.UsageHandler
	DiagnosticsHandler *handlers.DiagnosticsHandler
	HealthHandler      *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.initRepositories()

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL connection and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := d.DB.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.ModelConfigs = repos.ModelConfigs
	d.RoutingPolicies = repos.RoutingPolicies
	d.UsageLogs = repos.UsageLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices wires the registry, usage recorder and routing manager
func (d *Dependencies) initServices(cfg *config.Config) error {
	secretKey := cfg.SecretKey
	if secretKey == "" {
		// Development convenience: credentials encrypted with an
		// ephemeral key do not survive a restart
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("failed to generate ephemeral secret key: %w", err)
		}
		secretKey = hex.EncodeToString(raw)
		d.Logger.Warn("MODELMUX_SECRET_KEY not set, using ephemeral key")
	}

	cipher, err := secrets.NewCipher(secretKey)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	d.Cipher = cipher

	d.Registry = registry.NewService(d.ModelConfigs, d.Logger)

	d.UsageRecorder = usage.NewRecorder(d.UsageLogs, d.Logger, usage.Config{
		BufferSize:  cfg.Usage.BufferSize,
		WorkerCount: cfg.Usage.WorkerCount,
	})
	if err := d.UsageRecorder.Start(); err != nil {
		return fmt.Errorf("failed to start usage recorder: %w", err)
	}

	adapterFactory := routing.NewAdapterFactory(cipher, cfg.Providers)
	d.Router = routing.NewManager(d.Registry, d.RoutingPolicies, d.UsageRecorder, adapterFactory, d.Logger)

	d.Logger.Info("routing services initialized")
	return nil
}

// initAuth wires the JWT validator and the API key middleware
func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		d.Logger.Warn("JWT secret not configured, admin endpoints will reject all tokens")
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
	} else {
		validator, err := auth.NewValidator(auth.Config{Secret: cfg.Auth.JWTSecret})
		if err != nil {
			return fmt.Errorf("failed to create token validator: %w", err)
		}
		d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	}

	if cfg.Auth.APIKey == "" {
		d.Logger.Warn("API key not configured, chat endpoint will reject all requests")
	}
	d.APIKeyMiddleware = middleware.NewAPIKeyMiddleware(cfg.Auth.APIKey, d.Logger)

	return nil
}

// initHandlers builds the HTTP handlers on top of the wired services
func (d *Dependencies) initHandlers() {
	d.ChatHandler = handlers.NewChatHandler(d.Router, d.Logger)
	d.ModelConfigHandler = handlers.NewModelConfigHandler(d.ModelConfigs, d.UsageLogs, d.Registry, d.Cipher, d.Logger)
	d.PolicyHandler = handlers.NewRoutingPolicyHandler(d.RoutingPolicies, d.Logger)
	d.UsageHandler = handlers.NewUsageHandler(d.UsageLogs, d.Logger)
	d.DiagnosticsHandler = handlers.NewDiagnosticsHandler(d.Router, d.Registry, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Logger)
}

// rejectAllValidator rejects all tokens (used when no JWT secret is configured)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain buffered usage entries before the DB goes away
	if d.UsageRecorder != nil {
		timeout := 10 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.UsageRecorder.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop usage recorder: %w", err))
		} else {
			d.Logger.Info("usage recorder drained")
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
