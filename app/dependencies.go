package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/auth"
	"github.com/appgeocercas/api/config"
	"github.com/appgeocercas/api/handlers"
	"github.com/appgeocercas/api/identity"
	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/middleware"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/repositories"
	"github.com/appgeocercas/api/repositories/postgres"
	"github.com/appgeocercas/api/repositories/rpc"
	"github.com/appgeocercas/api/services/audit"
	"github.com/appgeocercas/api/services/tenant"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Memberships repositories.MembershipRepository
	AuditLogs   repositories.AuditRepository

	// Outbound clients
	Identity identity.Provider
	RPC      rpc.Caller

	// Observability
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	// Audit
	Audit        audit.Logger
	auditService *audit.AuditService

	// Session and tenant resolution
	Tenants         tenant.Resolver
	Bootstrapper    *tenant.Bootstrapper
	ContextResolver *auth.ContextResolver

	// HTTP
	authHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware
	SessionHandler *handlers.SessionHandler
	AuditHandler   *handlers.AuditHandler
	HealthHandler  *handlers.HealthHandler

	shutdownTracing func(context.Context) error
}

// AuthHandler returns the auth handler for route wiring
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	deps.initRepositories()

	// Initialize metrics and tracing
	if err := deps.initObservability(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	// Initialize identity provider and RPC clients
	deps.initClients(cfg)

	// Initialize audit pipeline
	if err := deps.initAudit(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	if err := deps.InitServices(); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Initialize audit schema when using separate audit DB
	if err := factory.InitAuditSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Memberships = repos.Memberships
	d.AuditLogs = repos.AuditLogs

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initObservability(ctx context.Context, cfg *config.Config) error {
	if cfg.Observability.MetricsEnabled {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		d.Metrics = observability.NewPrometheusMetrics(d.Registry)
	}

	shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Endpoint:    cfg.Observability.TracingEndpoint,
		Insecure:    cfg.Observability.TracingInsecure,
	})
	if err != nil {
		return err
	}
	d.shutdownTracing = shutdown

	if cfg.Observability.TracingEnabled {
		d.Logger.Info("tracing enabled", zap.String("endpoint", cfg.Observability.TracingEndpoint))
	}
	return nil
}

func (d *Dependencies) initClients(cfg *config.Config) {
	client := identity.NewClient(identity.Config{
		URL:         cfg.Identity.URL,
		APIKey:      cfg.Identity.APIKey,
		HTTPTimeout: cfg.Identity.Timeout,
	})

	d.Identity = client
	if cfg.Identity.JWTSecret != "" {
		d.Identity = identity.NewLocalVerifier(client, cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer)
		d.Logger.Info("access tokens verified locally", zap.String("issuer", cfg.Identity.JWTIssuer))
	}

	if cfg.Identity.RPCURL != "" {
		d.RPC = rpc.NewClient(rpc.Config{
			URL:         cfg.Identity.RPCURL,
			APIKey:      cfg.Identity.APIKey,
			HTTPTimeout: cfg.Identity.Timeout,
		}, d.Logger)
	}
}

func (d *Dependencies) initAudit(cfg *config.Config) error {
	if !cfg.Audit.Enabled || d.AuditLogs == nil {
		d.Audit = audit.Discard{}
		return nil
	}

	svc := audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := svc.Start(); err != nil {
		return err
	}

	d.auditService = svc
	d.Audit = svc
	return nil
}

// InitServices builds the session, tenant and HTTP layers from the clients and
// repositories already set on d. Missing metrics and audit fall back to no-ops.
func (d *Dependencies) InitServices() error {
	cfg := d.Config
	if d.Identity == nil {
		return fmt.Errorf("identity provider is required")
	}
	if d.Metrics == nil {
		d.Metrics = observability.NopMetrics{}
	}
	if d.Audit == nil {
		d.Audit = audit.Discard{}
	}

	var lister handlers.MembershipLister
	if d.Memberships != nil {
		memberships := tenant.NewMembershipResolver(d.Memberships, d.Logger)
		lister = memberships
		d.Tenants = memberships
	}

	source := models.SourceMemberships
	if cfg.Tenant.Strategy == config.TenantStrategyRPC {
		if d.RPC == nil {
			return fmt.Errorf("rpc strategy requires an RPC endpoint")
		}
		d.Tenants = tenant.NewRPCResolver(d.RPC, d.Logger)
		source = models.SourceRPC
	}
	if d.Tenants == nil {
		return fmt.Errorf("membership repository is required for the %s strategy", cfg.Tenant.Strategy)
	}

	if cfg.Tenant.BootstrapEnabled && d.RPC == nil {
		return fmt.Errorf("bootstrap requires an RPC endpoint")
	}
	d.Bootstrapper = tenant.NewBootstrapper(d.RPC, cfg.Tenant.BootstrapEnabled, d.Logger)

	cookies := auth.NewCookieWriter(cfg.Session.CookieSecure, cfg.Session.RefreshTTL)
	validator := auth.NewValidator(d.Identity, cookies, d.Audit, d.Metrics, d.Logger)
	d.ContextResolver = auth.NewContextResolver(validator, d.Tenants, source, d.Metrics, d.Logger)

	d.authHandler = auth.NewHandler(d.Identity, cookies, d.Audit, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.ContextResolver, d.Logger)
	d.SessionHandler = handlers.NewSessionHandler(d.ContextResolver, lister, d.Bootstrapper, d.Audit, d.Logger)
	if d.AuditLogs != nil {
		d.AuditHandler = handlers.NewAuditHandler(d.AuditLogs, d.Logger)
	}

	checks := map[string]handlers.HealthChecker{}
	if d.DB != nil {
		checks["database"] = d.DB
	}
	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)

	d.Logger.Info("session services initialized",
		zap.String("tenant_strategy", string(source)),
		zap.Bool("bootstrap_enabled", cfg.Tenant.BootstrapEnabled))
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain pending audit events before the database goes away
	if d.auditService != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.auditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.auditService = nil
	}

	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracing: %w", err))
		}
		d.shutdownTracing = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
