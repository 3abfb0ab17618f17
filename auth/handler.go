package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/identity"
	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services/audit"
	"github.com/appgeocercas/api/utils"
)

const maxBodyBytes = 1 << 16

// loginRequest is the body of POST /auth/login
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// refreshRequest lets native clients without cookies pass the refresh credential
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse carries the rotated pair only when the credential came from the body
type refreshResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// sessionUser is the public part of an identity returned by login
type sessionUser struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Handler serves the password login, refresh and logout endpoints.
type Handler struct {
	provider identity.Provider
	cookies  *CookieWriter
	audit    audit.Logger
	logger   *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(provider identity.Provider, cookies *CookieWriter, auditLogger audit.Logger, logger *zap.Logger) *Handler {
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	return &Handler{
		provider: provider,
		cookies:  cookies,
		audit:    auditLogger,
		logger:   logger,
	}
}

// HandleLogin runs the password grant and sets both session cookies
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Email and password are required")
		return
	}

	pair, id, err := h.provider.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidGrant) {
			logger.Info("login rejected")
			_ = h.audit.LogLoginFailed(req.Email, "invalid credentials", audit.MetaFromRequest(r))
			_ = utils.WriteUnauthorized(w, "Invalid credentials")
			return
		}
		logger.Error("login provider call failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, utils.MsgInternalError)
		return
	}

	h.cookies.WriteSession(w, r, pair)
	if err := h.audit.LogLogin(id, audit.MetaFromRequest(r)); err != nil {
		logger.Warn("failed to audit login", zap.Error(err))
	}
	logger.Info("user logged in", zap.String("user_id", id.UserID.String()))

	_ = utils.WriteOK(w, sessionUser{UserID: id.UserID.String(), Email: id.Email})
}

// HandleRefresh exchanges the refresh credential once and re-issues both cookies.
// A credential read from the body gets the rotated pair back in the response.
// Any failure clears the cookies.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)

	refreshToken := ExtractCredentials(r).RefreshToken
	fromBody := false
	if refreshToken == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err == nil {
			refreshToken = req.RefreshToken
			fromBody = refreshToken != ""
		}
	}
	if refreshToken == "" {
		_ = utils.WriteUnauthorized(w, utils.MsgUnauthorized)
		return
	}

	pair, err := h.provider.RefreshToken(r.Context(), refreshToken)
	if err != nil {
		logger.Info("explicit refresh failed", zap.Error(err))
		h.cookies.Clear(w, r)
		_ = utils.WriteUnauthorized(w, utils.MsgUnauthorized)
		return
	}

	h.cookies.WriteSession(w, r, pair)

	var id *models.Identity
	if user, err := h.provider.GetUser(r.Context(), pair.AccessToken); err == nil {
		id = user
	}
	if err := h.audit.LogRefresh(id, audit.MetaFromRequest(r)); err != nil {
		logger.Warn("failed to audit refresh", zap.Error(err))
	}

	resp := refreshResponse{ExpiresIn: int(pair.AccessTTL().Seconds())}
	if fromBody {
		resp.AccessToken = pair.AccessToken
		resp.RefreshToken = pair.RefreshToken
	}
	_ = utils.WriteOK(w, resp)
}

// HandleLogout revokes the session at the provider when possible and always
// clears both cookies.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithContext(r.Context(), h.logger)
	creds := ExtractCredentials(r)

	var id *models.Identity
	if creds.AccessToken != "" {
		if user, err := h.provider.GetUser(r.Context(), creds.AccessToken); err == nil {
			id = user
		}
		if err := h.provider.SignOut(r.Context(), creds.AccessToken); err != nil {
			logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}

	h.cookies.Clear(w, r)
	if err := h.audit.LogLogout(id, audit.MetaFromRequest(r)); err != nil {
		logger.Warn("failed to audit logout", zap.Error(err))
	}

	_ = utils.WriteOK(w, nil)
}
