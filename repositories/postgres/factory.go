package postgres

import (
	"context"

	"go.uber.org/zap"

	"github.com/appgeocercas/api/config"
	"github.com/appgeocercas/api/repositories"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	auditDB *DB // Optional: separate DB for audit logs
	logger  *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	f := &RepositoryFactory{db: db, logger: logger}

	if cfg.AuditDatabase != nil {
		auditDB, err := NewDB(*cfg.AuditDatabase, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		f.auditDB = auditDB
	}

	return f, nil
}

// InitAuditSchema initializes the audit schema on whichever DB stores audit logs.
func (f *RepositoryFactory) InitAuditSchema(ctx context.Context) error {
	return f.auditStore().InitAuditSchema(ctx)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Memberships: NewMembershipRepository(f.db, f.logger),
		AuditLogs:   NewAuditRepository(f.auditStore(), f.logger),
	}
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection(s)
func (f *RepositoryFactory) Close() error {
	if f.auditDB != nil {
		_ = f.auditDB.Close()
	}
	return f.db.Close()
}

func (f *RepositoryFactory) auditStore() *DB {
	if f.auditDB != nil {
		return f.auditDB
	}
	return f.db
}
