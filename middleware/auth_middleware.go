package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/utils"
)

// ContextResolver resolves the tenant context for a request, writing any
// refreshed or cleared session cookies to w
type ContextResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) (*models.ResolvedContext, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	resolver ContextResolver
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(resolver ContextResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		logger:   logger,
	}
}

// RequireContext resolves the (user, org, role) for the request and stores it
// in the context. Failures end the request with the mapped status.
func (m *AuthMiddleware) RequireContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		rc, err := m.resolver.Resolve(w, r)
		if err != nil {
			status, _ := utils.ErrorStatus(err)
			fields := []zap.Field{
				zap.String("request_id", requestID),
				zap.Int("status", status),
				zap.String("error_type", string(services.GetErrorType(err))),
			}
			if status >= http.StatusInternalServerError {
				m.logger.Error("context resolution failed", append(fields, zap.Error(err))...)
			} else {
				m.logger.Debug("context resolution rejected", append(fields, zap.Error(err))...)
			}
			_, _ = utils.WriteServiceError(w, err)
			return
		}

		m.logger.Debug("context resolved",
			zap.String("request_id", requestID),
			zap.String("user_id", rc.User.UserID.String()),
			zap.String("org_id", rc.OrgID.String()),
			zap.String("role", rc.Role.String()),
			zap.String("source", string(rc.Source)))

		next.ServeHTTP(w, r.WithContext(WithResolvedContext(ctx, rc)))
	})
}

// RequireRole is a middleware that requires one of roles. It must run after RequireContext.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			rc := GetResolvedContext(ctx)
			if rc == nil {
				m.logger.Error("resolved context not found",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, utils.MsgUnauthorized)
				return
			}

			for _, role := range roles {
				if rc.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.logger.Warn("insufficient permissions",
				zap.String("request_id", requestID),
				zap.String("user_id", rc.User.UserID.String()),
				zap.String("role", rc.Role.String()))
			_, _ = utils.WriteServiceError(w, services.ErrInsufficientPermissions)
		})
	}
}

// RequireWriter allows only roles that may write (owner, admin)
func (m *AuthMiddleware) RequireWriter(next http.Handler) http.Handler {
	return m.RequireRole(writerRoles()...)(next)
}

func writerRoles() []models.Role {
	var roles []models.Role
	for _, role := range models.Roles {
		if role.CanWrite() {
			roles = append(roles, role)
		}
	}
	return roles
}
