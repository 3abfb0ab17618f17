package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/identity"
	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/services/audit"
)

type refreshGuardKey struct{}

// refreshGuard makes the refresh-and-retry sequence run at most once for the
// request it is attached to. Later callers get the first outcome.
type refreshGuard struct {
	once sync.Once
	id   *models.Identity
	err  error
}

func (g *refreshGuard) do(fn func() (*models.Identity, error)) (id *models.Identity, first bool, err error) {
	g.once.Do(func() {
		first = true
		g.id, g.err = fn()
	})
	return g.id, first, g.err
}

// RequestScope attaches a fresh refresh guard to every request, so all session
// validations during one request share a single refresh attempt.
func RequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), refreshGuardKey{}, &refreshGuard{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// guardFrom returns the request's guard. Without RequestScope the guard only
// covers a single Validate call.
func guardFrom(ctx context.Context) *refreshGuard {
	if g, ok := ctx.Value(refreshGuardKey{}).(*refreshGuard); ok {
		return g
	}
	return &refreshGuard{}
}

// Validator turns presented credentials into a provider-vouched identity,
// refreshing the session at most once per request when the access credential fails.
type Validator struct {
	provider identity.Provider
	cookies  *CookieWriter
	audit    audit.Logger
	metrics  observability.Metrics
	logger   *zap.Logger
}

// NewValidator creates a new session validator
func NewValidator(provider identity.Provider, cookies *CookieWriter, auditLogger audit.Logger, metrics observability.Metrics, logger *zap.Logger) *Validator {
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Validator{
		provider: provider,
		cookies:  cookies,
		audit:    auditLogger,
		metrics:  metrics,
		logger:   logger,
	}
}

// Validate validates creds for r. Refreshed cookies, or cleared ones after a
// failed refresh, are written to w. Every failure is unauthenticated.
// A rejected Bearer header is final: a tg_rt cookie on the same request is
// never exchanged for it.
func (v *Validator) Validate(w http.ResponseWriter, r *http.Request, creds Credentials) (*models.Identity, error) {
	ctx := r.Context()
	logger := observability.WithContext(ctx, v.logger)

	if !creds.HasAny() {
		v.metrics.SessionValidated(observability.OutcomeUnauthenticated)
		return nil, services.ErrNoCredentials
	}

	var accessErr error
	if creds.AccessToken != "" {
		id, err := v.getUser(ctx, creds.AccessToken)
		if err == nil {
			v.metrics.SessionValidated(observability.OutcomeValid)
			return id, nil
		}
		accessErr = err
		logger.Debug("access credential rejected",
			zap.Bool("from_header", creds.FromHeader),
			zap.Error(err))
	}

	// A header credential names its own identity; a cookie refresh could swap it.
	if creds.FromHeader || creds.RefreshToken == "" {
		v.metrics.SessionValidated(observability.OutcomeUnauthenticated)
		return nil, services.WrapUnauthenticated("access credential rejected", accessErr)
	}

	id, first, err := guardFrom(ctx).do(func() (*models.Identity, error) {
		return v.refreshAndRetry(w, r, creds.RefreshToken, logger)
	})
	if !first {
		logger.Debug("reusing refresh outcome from earlier in this request")
	}
	if err != nil {
		v.metrics.SessionValidated(observability.OutcomeUnauthenticated)
		return nil, err
	}

	v.metrics.SessionValidated(observability.OutcomeRefreshed)
	return id, nil
}

// refreshAndRetry exchanges the refresh credential once and validates the new
// access credential once. Success writes the new cookies; any failure clears both.
func (v *Validator) refreshAndRetry(w http.ResponseWriter, r *http.Request, refreshToken string, logger *zap.Logger) (*models.Identity, error) {
	ctx := r.Context()

	start := time.Now()
	pair, err := v.provider.RefreshToken(ctx, refreshToken)
	v.metrics.ProviderCall("refresh_token", time.Since(start), err)
	v.metrics.RefreshAttempted(err == nil)
	if err != nil {
		logger.Info("session refresh failed", zap.Error(err))
		v.cookies.Clear(w, r)
		return nil, services.WrapUnauthenticated("session refresh failed", err)
	}

	id, err := v.getUser(ctx, pair.AccessToken)
	if err != nil {
		logger.Warn("refreshed access credential rejected", zap.Error(err))
		v.cookies.Clear(w, r)
		return nil, services.WrapUnauthenticated("refreshed credential rejected", err)
	}
	v.cookies.WriteSession(w, r, pair)

	logger.Info("session refreshed", zap.String("user_id", id.UserID.String()))
	if err := v.audit.LogRefresh(id, audit.MetaFromRequest(r)); err != nil {
		logger.Warn("failed to audit refresh", zap.Error(err))
	}

	return id, nil
}

func (v *Validator) getUser(ctx context.Context, accessToken string) (*models.Identity, error) {
	start := time.Now()
	id, err := v.provider.GetUser(ctx, accessToken)
	v.metrics.ProviderCall("get_user", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, identity.ErrMalformedResponse
	}
	id.AccessToken = accessToken
	return id, nil
}
