package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const insertAuditLog = `
INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, source, request_id, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :source, :request_id, :created_at)`

// AuditRepository appends to the audit trail. Rows are never updated.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog appends one entry, assigning ID and timestamp when unset.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Source == "" {
		log.Source = "system"
	}
	if _, err := r.db.NamedExecContext(ctx, insertAuditLog, log); err != nil {
		return fmt.Errorf("append audit log %s: %w", log.Action, err)
	}
	return nil
}
