package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const sessionColumns = `id, course_id, week, session_date, start_at, end_at, room, check_in_method, access_code,
       is_make_up, is_open, is_closed, created_at, updated_at`

// SessionRepository persists class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByCourse returns every session of a course ordered by start time.
func (r *SessionRepository) ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE course_id = $1 ORDER BY start_at ASC`
	var sessions []models.ClassSession
	if err := sqlx.SelectContext(ctx, r.exec(exec), &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	return sessions, nil
}

// BulkCreate inserts sessions. The (course_id, session_date) constraint rejects duplicates.
func (r *SessionRepository) BulkCreate(ctx context.Context, exec sqlx.ExtContext, sessions []models.ClassSession) error {
	if len(sessions) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO class_sessions
	(id, course_id, week, session_date, start_at, end_at, room, check_in_method, access_code, is_make_up, is_open, is_closed, created_at, updated_at)
	VALUES (:id, :course_id, :week, :session_date, :start_at, :end_at, :room, :check_in_method, :access_code, :is_make_up, :is_open, :is_closed, :created_at, :updated_at)`

	for i := range sessions {
		session := &sessions[i]
		if session.ID == "" {
			session.ID = uuid.NewString()
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		session.UpdatedAt = session.CreatedAt
		if _, err := sqlx.NamedExecContext(ctx, target, query, session); err != nil {
			return fmt.Errorf("create class session: %w", err)
		}
	}
	return nil
}

// FindByID fetches a session without locking.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1`
	var session models.ClassSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// LockMode selects the row lock taken by FindForUpdate.
type LockMode string

const (
	LockExclusive LockMode = "FOR UPDATE"
	LockShared    LockMode = "FOR SHARE"
)

// FindForUpdate loads a session inside a transaction holding a row lock.
func (r *SessionRepository) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string, mode LockMode) (*models.ClassSession, error) {
	if mode != LockShared {
		mode = LockExclusive
	}
	query := `SELECT ` + sessionColumns + ` FROM class_sessions WHERE id = $1 ` + string(mode)
	var session models.ClassSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateState persists the open/closed flags.
func (r *SessionRepository) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, isOpen, isClosed bool) error {
	const query = `UPDATE class_sessions SET is_open = $2, is_closed = $3, updated_at = $4 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, isOpen, isClosed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class session state: %w", err)
	}
	return expectAffected(result)
}

// UpdateAccessCode replaces the check-in code of a session.
func (r *SessionRepository) UpdateAccessCode(ctx context.Context, exec sqlx.ExtContext, id, code string) error {
	const query = `UPDATE class_sessions SET access_code = $2, updated_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update class session access code: %w", err)
	}
	return expectAffected(result)
}

// CountHeld counts sessions of a course that have been opened or closed.
func (r *SessionRepository) CountHeld(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_sessions WHERE course_id = $1 AND (is_open OR is_closed)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count held sessions: %w", err)
	}
	return count, nil
}

func expectAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
