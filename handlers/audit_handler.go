package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/internal/observability"
	"github.com/appgeocercas/api/middleware"
	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/services"
	"github.com/appgeocercas/api/utils"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 100
)

// AuditHistory reads a user's audit trail, newest first
type AuditHistory interface {
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// AuditEntryResponse is one entry of GET /api/v1/session/audit
type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	OrgID     string    `json:"org_id,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditHandler serves the caller's own session audit trail
type AuditHandler struct {
	history AuditHistory
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(history AuditHistory, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{history: history, logger: logger}
}

// HandleListMine handles GET /api/v1/session/audit?limit=&offset=.
// Entries are always scoped to the authenticated user.
func (h *AuditHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithContext(ctx, h.logger)

	rc := middleware.GetResolvedContext(ctx)
	if rc == nil {
		HandleServiceError(w, services.ErrUnauthenticated, logger)
		return
	}

	limit, offset, err := parsePage(r)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	logs, err := h.history.GetByUserID(ctx, rc.User.UserID, limit, offset)
	if err != nil {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeInternal, "audit lookup failed", err), logger)
		return
	}

	response := make([]AuditEntryResponse, 0, len(logs))
	for _, l := range logs {
		entry := AuditEntryResponse{
			ID:        l.ID.String(),
			Action:    string(l.Action),
			IPAddress: l.IPAddress,
			UserAgent: l.UserAgent,
			RequestID: l.RequestID,
			Timestamp: l.Timestamp,
		}
		if l.OrgID != nil {
			entry.OrgID = l.OrgID.String()
		}
		response = append(response, entry)
	}

	_ = utils.WriteOK(w, response)
}

// parsePage reads limit and offset. limit defaults to 20 and is capped at 100.
func parsePage(r *http.Request) (int, int, error) {
	q := r.URL.Query()

	limit := defaultAuditLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, services.ErrInvalidInput
		}
		limit = min(n, maxAuditLimit)
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, services.ErrInvalidInput
		}
		offset = n
	}

	return limit, offset, nil
}
