package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/appgeocercas/api/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ResolvedContextKey is the context key for the request's resolved tenant context
	ResolvedContextKey contextKey = "resolved_context"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// WithResolvedContext adds the resolved (user, org, role) to the context
func WithResolvedContext(ctx context.Context, rc *models.ResolvedContext) context.Context {
	return context.WithValue(ctx, ResolvedContextKey, rc)
}

// GetResolvedContext retrieves the resolved context, or nil outside RequireContext
func GetResolvedContext(ctx context.Context) *models.ResolvedContext {
	if val := ctx.Value(ResolvedContextKey); val != nil {
		if rc, ok := val.(*models.ResolvedContext); ok {
			return rc
		}
	}
	return nil
}

// GetOrgIDFromContext retrieves the resolved organization ID from context
func GetOrgIDFromContext(ctx context.Context) uuid.UUID {
	if rc := GetResolvedContext(ctx); rc != nil {
		return rc.OrgID
	}
	return uuid.Nil
}

// GetUserIDFromContext retrieves the resolved user ID from context
func GetUserIDFromContext(ctx context.Context) *uuid.UUID {
	if rc := GetResolvedContext(ctx); rc != nil {
		id := rc.User.UserID
		return &id
	}
	return nil
}
