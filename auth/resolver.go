package auth

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/services/tenant"
)

// ContextResolver is the single entry point that turns a request into a
// ResolvedContext: extract credentials, validate or refresh, resolve the tenant.
type ContextResolver struct {
	validator *Validator
	tenants   tenant.Resolver
	source    models.ContextSource
	metrics   observability.Metrics
	logger    *zap.Logger
}

// NewContextResolver creates a new context resolver. source labels metrics
// with the configured tenant strategy.
func NewContextResolver(validator *Validator, tenants tenant.Resolver, source models.ContextSource, metrics observability.Metrics, logger *zap.Logger) *ContextResolver {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &ContextResolver{
		validator: validator,
		tenants:   tenants,
		source:    source,
		metrics:   metrics,
		logger:    logger,
	}
}

// Authenticate validates the session without resolving a tenant
func (cr *ContextResolver) Authenticate(w http.ResponseWriter, r *http.Request) (*models.Identity, error) {
	ctx, span := observability.Tracer().Start(r.Context(), "session.authenticate")
	defer span.End()
	r = r.WithContext(ctx)

	creds := ExtractCredentials(r)
	span.SetAttributes(
		attribute.Bool("session.credential_from_header", creds.FromHeader),
		attribute.Bool("session.has_refresh", creds.RefreshToken != ""),
	)

	id, err := cr.validator.Validate(w, r, creds)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}

	span.SetAttributes(attribute.String("enduser.id", id.UserID.String()))
	return id, nil
}

// Resolve returns the (user, organization, role) for r. Client-supplied
// organization ids are never consulted.
func (cr *ContextResolver) Resolve(w http.ResponseWriter, r *http.Request) (*models.ResolvedContext, error) {
	ctx, span := observability.Tracer().Start(r.Context(), "session.resolve")
	defer span.End()
	r = r.WithContext(ctx)

	id, err := cr.Authenticate(w, r)
	if err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		cr.metrics.ContextResolved(string(cr.source), observability.OutcomeFailed)
		return nil, err
	}

	rc, err := cr.tenants.Resolve(ctx, id)
	if err != nil {
		outcome := observability.OutcomeFailed
		if services.IsNoOrganizationError(err) {
			outcome = observability.OutcomeNoOrganization
		} else {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, string(services.GetErrorType(err)))
		cr.metrics.ContextResolved(string(cr.source), outcome)

		observability.WithContext(ctx, cr.logger).Info("tenant resolution failed",
			zap.String("user_id", id.UserID.String()),
			zap.String("outcome", outcome),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("tenant.org_id", rc.OrgID.String()),
		attribute.String("tenant.role", rc.Role.String()),
		attribute.String("tenant.source", string(rc.Source)),
	)
	cr.metrics.ContextResolved(string(rc.Source), observability.OutcomeResolved)

	return rc, nil
}
