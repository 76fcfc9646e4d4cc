package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const correctionSelect = `SELECT c.id, c.kind, c.attendance_id, ar.session_id, s.course_id, c.requested_by, c.message,
       c.status, c.target_status, c.comment, c.decided_by, c.decided_at, c.created_at, c.updated_at
FROM correction_requests c
JOIN attendance_records ar ON ar.id = c.attendance_id
JOIN class_sessions s ON s.id = ar.session_id`

// CorrectionRepository persists excuse and appeal requests.
type CorrectionRepository struct {
	db *sqlx.DB
}

// NewCorrectionRepository constructs the repository.
func NewCorrectionRepository(db *sqlx.DB) *CorrectionRepository {
	return &CorrectionRepository{db: db}
}

func (r *CorrectionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new pending request.
func (r *CorrectionRepository) Create(ctx context.Context, exec sqlx.ExtContext, request *models.CorrectionRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.CorrectionStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = request.CreatedAt

	const query = `INSERT INTO correction_requests
	(id, kind, attendance_id, requested_by, message, status, target_status, comment, decided_by, decided_at, created_at, updated_at)
	VALUES (:id, :kind, :attendance_id, :requested_by, :message, :status, :target_status, :comment, :decided_by, :decided_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, request); err != nil {
		return fmt.Errorf("create correction request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *CorrectionRepository) GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CorrectionRequest, error) {
	query := correctionSelect + ` WHERE c.id = $1`
	var request models.CorrectionRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// HasPending reports whether a pending request of kind exists for the attendance row.
func (r *CorrectionRepository) HasPending(ctx context.Context, exec sqlx.ExtContext, kind models.CorrectionKind, attendanceID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM correction_requests WHERE kind = $1 AND attendance_id = $2 AND status = 'PENDING')`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, kind, attendanceID); err != nil {
		return false, fmt.Errorf("check pending correction: %w", err)
	}
	return exists, nil
}

// List returns requests matching the filter, newest first.
func (r *CorrectionRepository) List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("c.kind = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)))
	}
	if filter.RequestedBy != "" {
		args = append(args, filter.RequestedBy)
		conditions = append(conditions, fmt.Sprintf("c.requested_by = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := `SELECT COUNT(*) FROM correction_requests c
JOIN attendance_records ar ON ar.id = c.attendance_id
JOIN class_sessions s ON s.id = ar.session_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count correction requests: %w", err)
	}

	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := correctionSelect + where + fmt.Sprintf(" ORDER BY c.created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var requests []models.CorrectionRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list correction requests: %w", err)
	}
	return requests, total, nil
}

// DecideCorrectionParams groups the columns written by a decision.
type DecideCorrectionParams struct {
	ID           string
	Status       models.CorrectionStatus
	TargetStatus *models.AttendanceStatus
	Comment      *string
	DecidedBy    string
	DecidedAt    time.Time
}

// Decide records a decision only while the request is still pending.
// Returns sql.ErrNoRows when another decision got there first.
func (r *CorrectionRepository) Decide(ctx context.Context, exec sqlx.ExtContext, params DecideCorrectionParams) error {
	query := fmt.Sprintf(`UPDATE correction_requests
SET status = :status, target_status = :target_status, comment = :comment, decided_by = :decided_by,
    decided_at = :decided_at, updated_at = :decided_at
WHERE id = :id AND status = '%s'`, models.CorrectionStatusPending)
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":            params.ID,
		"status":        params.Status,
		"target_status": params.TargetStatus,
		"comment":       params.Comment,
		"decided_by":    params.DecidedBy,
		"decided_at":    params.DecidedAt,
	})
	if err != nil {
		return fmt.Errorf("decide correction request: %w", err)
	}
	return expectAffected(result)
}
