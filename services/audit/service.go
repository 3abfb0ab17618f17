package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/appgeocercas/api/models"
	"github.com/appgeocercas/api/repositories"
)

// Logger records session events. Implementations must not block the request.
type Logger interface {
	LogLogin(id *models.Identity, meta RequestMeta) error
	LogLoginFailed(email, reason string, meta RequestMeta) error
	LogRefresh(id *models.Identity, meta RequestMeta) error
	LogLogout(id *models.Identity, meta RequestMeta) error
	LogBootstrap(rc *models.ResolvedContext, meta RequestMeta) error
}

// RequestMeta is the request metadata attached to every audit entry
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// MetaFromRequest collects audit metadata from r
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestMeta{
		RequestID: chimiddleware.GetReqID(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}

// AuditEvent represents an event to be audited
type AuditEvent struct {
	Log *models.AuditLog
}

// AuditService handles asynchronous audit logging
type AuditService struct {
	auditRepo   repositories.AuditRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if config.BufferSize <= 0 || config.WorkerCount <= 0 {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &AuditService{
		auditRepo:   auditRepo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the audit service
// Waits for all pending events to be processed
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent logs an event asynchronously (non-blocking)
// Returns immediately, event is processed in background
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Log.Action)))
		return fmt.Errorf("audit event buffer full")
	}
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Log.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent processes a single audit event
func (s *AuditService) processEvent(event *AuditEvent) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, event.Log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Convenience methods for logging session events

// LogLogin logs a successful password login
func (s *AuditService) LogLogin(id *models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLoginSucceeded).
		WithUser(id.UserID).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogLoginFailed logs a rejected login. Only the email is recorded, never the password.
func (s *AuditService) LogLoginFailed(email, reason string, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLoginFailed).
		WithDetails(map[string]interface{}{"email": email}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithError(http.StatusUnauthorized, reason)

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogRefresh logs a successful refresh credential exchange
func (s *AuditService) LogRefresh(id *models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionSessionRefreshed).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if id != nil {
		log.WithUser(id.UserID)
	}

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogLogout logs a logout. id is nil when the caller had no valid session.
func (s *AuditService) LogLogout(id *models.Identity, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionLogout).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	if id != nil {
		log.WithUser(id.UserID)
	}

	return s.LogEvent(&AuditEvent{Log: log})
}

// LogBootstrap logs an explicit organization bootstrap
func (s *AuditService) LogBootstrap(rc *models.ResolvedContext, meta RequestMeta) error {
	log := models.NewAuditLog(models.AuditActionOrgBootstrapped).
		WithOrg(rc.OrgID).
		WithUser(rc.User.UserID).
		WithDetails(map[string]interface{}{"role": rc.Role}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)

	return s.LogEvent(&AuditEvent{Log: log})
}

// Discard is a Logger that drops every event. Used when auditing is disabled.
type Discard struct{}

func (Discard) LogLogin(*models.Identity, RequestMeta) error            { return nil }
func (Discard) LogLoginFailed(string, string, RequestMeta) error        { return nil }
func (Discard) LogRefresh(*models.Identity, RequestMeta) error          { return nil }
func (Discard) LogLogout(*models.Identity, RequestMeta) error           { return nil }
func (Discard) LogBootstrap(*models.ResolvedContext, RequestMeta) error { return nil }

var (
	_ Logger = (*AuditService)(nil)
	_ Logger = Discard{}
)
