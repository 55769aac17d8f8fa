package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/shared"
)

// UserRecord is the users row as the guard chain sees it.
type UserRecord struct {
	ID              uuid.UUID
	SubjectID       *string
	Email           string
	FullName        string
	CustomerID      *uuid.UUID
	RoleID          int64
	RoleName        string
	Status          string
	InviteTokenHash *string
	InvitedAt       *time.Time
	DeletedAt       *time.Time
}

// Repository defines persistence operations for the guard chain.
type Repository interface {
	FindBySubject(ctx context.Context, subject string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	LinkSubjectByEmail(ctx context.Context, subject, email string) (*UserRecord, error)
	HasCustomerGrant(ctx context.Context, userID, customerID uuid.UUID) (bool, error)
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
	ActivateUser(ctx context.Context, id uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `u.id, u.subject_id, u.email, u.full_name, u.customer_id, u.role_id, r.name, u.status, u.invite_token_hash, u.invited_at, u.deleted_at`

func scanUser(row pgx.Row) (*UserRecord, error) {
	var rec UserRecord
	err := row.Scan(
		&rec.ID,
		&rec.SubjectID,
		&rec.Email,
		&rec.FullName,
		&rec.CustomerID,
		&rec.RoleID,
		&rec.RoleName,
		&rec.Status,
		&rec.InviteTokenHash,
		&rec.InvitedAt,
		&rec.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindBySubject fetches the user linked to an issuer subject.
func (r *PGRepository) FindBySubject(ctx context.Context, subject string) (*UserRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.subject_id = $1`, subject)
	return scanUser(row)
}

// FindByEmail fetches a user by email, including soft-deleted rows so the
// caller can distinguish deleted from absent.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*UserRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE lower(u.email) = lower($1)`, email)
	return scanUser(row)
}

// FindByID fetches a user by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`, id)
	return scanUser(row)
}

// LinkSubjectByEmail attaches subject to the matching unlinked user in one
// conditional UPDATE. Under concurrent first logins exactly one request wins;
// losers get ErrNotFound and re-read by subject.
func (r *PGRepository) LinkSubjectByEmail(ctx context.Context, subject, email string) (*UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		WITH linked AS (
			UPDATE users
			SET subject_id = $1, updated_at = NOW()
			WHERE lower(email) = lower($2)
			  AND subject_id IS NULL
			  AND status <> 'deleted'
			  AND deleted_at IS NULL
			RETURNING id, subject_id, email, full_name, customer_id, role_id, status, invite_token_hash, invited_at, deleted_at
		)
		SELECT l.id, l.subject_id, l.email, l.full_name, l.customer_id, l.role_id, r.name, l.status, l.invite_token_hash, l.invited_at, l.deleted_at
		FROM linked l JOIN roles r ON r.id = l.role_id`,
		subject, email)
	return scanUser(row)
}

// HasCustomerGrant reports whether userID holds an ownership grant for customerID.
func (r *PGRepository) HasCustomerGrant(ctx context.Context, userID, customerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customer_success_grants WHERE user_id = $1 AND customer_id = $2)`, userID, customerID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CustomerExists reports whether the customer row exists.
func (r *PGRepository) CustomerExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// ActivateUser flips an invited user to active and clears the invite token.
func (r *PGRepository) ActivateUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET status = 'active', invite_token_hash = NULL, updated_at = NOW() WHERE id = $1 AND status = 'invited'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
