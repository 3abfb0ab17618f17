package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/middleware"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/services/audit"
	"github.com/appgeocercas/api/utils"
)

// Authenticator validates the session of a request without resolving a tenant
type Authenticator interface {
	Authenticate(w http.ResponseWriter, r *http.Request) (*models.Identity, error)
}

// MembershipLister lists a user's active memberships
type MembershipLister interface {
	Memberships(ctx context.Context, id *models.Identity) ([]*models.Membership, error)
}

// OrgBootstrapper runs the explicit organization bootstrap
type OrgBootstrapper interface {
	Enabled() bool
	EnsureOrganization(ctx context.Context, id *models.Identity) (*models.ResolvedContext, error)
}

// SessionResponse is the body of GET /api/v1/session
type SessionResponse struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	OrgID    string `json:"org_id"`
	Role     string `json:"role"`
	CanWrite bool   `json:"can_write"`
	Source   string `json:"source"`
}

// MembershipResponse is one entry of GET /api/v1/session/memberships
type MembershipResponse struct {
	OrgID     string    `json:"org_id"`
	Role      string    `json:"role"`
	IsDefault bool      `json:"is_default"`
	Current   bool      `json:"current"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionHandler serves the caller's resolved session
type SessionHandler struct {
	authenticator Authenticator
	memberships   MembershipLister
	bootstrapper  OrgBootstrapper
	audit         audit.Logger
	logger        *zap.Logger
}

// NewSessionHandler creates a new SessionHandler. memberships and bootstrapper may be nil.
func NewSessionHandler(authenticator Authenticator, memberships MembershipLister, bootstrapper OrgBootstrapper, auditLogger audit.Logger, logger *zap.Logger) *SessionHandler {
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	return &SessionHandler{
		authenticator: authenticator,
		memberships:   memberships,
		bootstrapper:  bootstrapper,
		audit:         auditLogger,
		logger:        logger,
	}
}

// HandleGetSession handles GET /api/v1/session
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	rc := middleware.GetResolvedContext(r.Context())
	if rc == nil {
		HandleServiceError(w, services.ErrUnauthenticated, h.logger)
		return
	}

	_ = utils.WriteOK(w, newSessionResponse(rc))
}

// HandleListMemberships handles GET /api/v1/session/memberships
func (h *SessionHandler) HandleListMemberships(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithContext(ctx, h.logger)

	rc := middleware.GetResolvedContext(ctx)
	if rc == nil {
		HandleServiceError(w, services.ErrUnauthenticated, logger)
		return
	}
	if h.memberships == nil {
		HandleServiceError(w, services.ErrForbidden, logger)
		return
	}

	memberships, err := h.memberships.Memberships(ctx, &rc.User)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	response := make([]MembershipResponse, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, MembershipResponse{
			OrgID:     m.OrgID.String(),
			Role:      m.Role.String(),
			IsDefault: m.IsDefault,
			Current:   m.OrgID == rc.OrgID,
			CreatedAt: m.CreatedAt,
		})
	}

	_ = utils.WriteOK(w, response)
}

// HandleBootstrap handles POST /api/v1/session/bootstrap. It only needs a valid
// session, since the caller may not belong to any organization yet.
func (h *SessionHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithContext(ctx, h.logger)

	if h.bootstrapper == nil || !h.bootstrapper.Enabled() {
		HandleServiceError(w, services.ErrBootstrapDisabled, logger)
		return
	}

	id, err := h.authenticator.Authenticate(w, r)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	rc, err := h.bootstrapper.EnsureOrganization(ctx, id)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if err := h.audit.LogBootstrap(rc, audit.MetaFromRequest(r)); err != nil {
		logger.Warn("failed to audit bootstrap", zap.Error(err))
	}

	_ = utils.WriteOK(w, newSessionResponse(rc))
}

func newSessionResponse(rc *models.ResolvedContext) SessionResponse {
	return SessionResponse{
		UserID:   rc.User.UserID.String(),
		Email:    rc.User.Email,
		OrgID:    rc.OrgID.String(),
		Role:     rc.Role.String(),
		CanWrite: rc.CanWrite(),
		Source:   string(rc.Source),
	}
}
