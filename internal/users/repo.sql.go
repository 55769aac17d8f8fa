package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Repository defines persistence operations for user administration.
type Repository interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	RoleName(ctx context.Context, roleID int64) (string, error)
	InviteUser(ctx context.Context, input InviteUserInput, tokenHash string) (User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUserInput) (User, error)
	SoftDeleteUser(ctx context.Context, id uuid.UUID) (User, error)
	RestoreUser(ctx context.Context, id uuid.UUID) (User, error)
	ExpireInvitations(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `u.id, u.email, u.full_name, u.customer_id, u.role_id, r.name, u.status, u.invited_at, u.deleted_at, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.CustomerID,
		&user.RoleID,
		&user.RoleName,
		&user.Status,
		&user.InvitedAt,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

const listFilterClause = `
	($1::bool OR u.customer_id IS NOT DISTINCT FROM $2::uuid)
	AND (CASE WHEN $3::text = '' THEN u.status <> 'deleted' ELSE u.status = $3 END)
	AND ($4::bigint = 0 OR u.role_id = $4)
	AND ($5::text = '' OR u.email ILIKE '%' || $5 || '%' OR u.full_name ILIKE '%' || $5 || '%')`

// ListUsers returns one page of users plus the total match count. Deleted
// rows are hidden unless explicitly asked for via the status filter.
func (r *PGRepository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	args := []any{filters.Unscoped, filters.CustomerID, filters.Status, filters.RoleID, filters.Search}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users u WHERE `+listFilterClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id
		 WHERE `+listFilterClause+`
		 ORDER BY u.created_at DESC, u.id
		 LIMIT $6 OFFSET $7`,
		append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser fetches one user by primary key, including soft-deleted rows.
func (r *PGRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = $1`, id)
	return scanUser(row)
}

// RoleName resolves a role id to its machine name.
func (r *PGRepository) RoleName(ctx context.Context, roleID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM roles WHERE id = $1`, roleID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return name, nil
}

// InviteUser inserts an invited account holding only the bcrypt hash of the
// invite token.
func (r *PGRepository) InviteUser(ctx context.Context, input InviteUserInput, tokenHash string) (User, error) {
	row := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO users (id, email, full_name, customer_id, role_id, status, invite_token_hash, invited_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'invited', $6, NOW(), NOW(), NOW())
			RETURNING id, email, full_name, customer_id, role_id, status, invited_at, deleted_at, created_at, updated_at
		)
		SELECT i.id, i.email, i.full_name, i.customer_id, i.role_id, r.name, i.status, i.invited_at, i.deleted_at, i.created_at, i.updated_at
		FROM inserted i JOIN roles r ON r.id = i.role_id`,
		uuid.New(), input.Email, input.FullName, input.CustomerID, input.RoleID, tokenHash)
	user, err := scanUser(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return User{}, fmt.Errorf("%w: email already in use", shared.ErrConflict)
		}
		if shared.IsForeignKeyViolation(err) {
			return User{}, fmt.Errorf("%w: unknown role or customer", shared.ErrValidation)
		}
		return User{}, err
	}
	return user, nil
}

// UpdateUser applies a partial update to a live account. Deleted rows are
// not updatable and report not found.
func (r *PGRepository) UpdateUser(ctx context.Context, id uuid.UUID, input UpdateUserInput) (User, error) {
	row := r.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE users
			SET full_name = COALESCE($2, full_name),
			    role_id = COALESCE($3, role_id),
			    status = COALESCE($4, status),
			    updated_at = NOW()
			WHERE id = $1 AND status <> 'deleted' AND deleted_at IS NULL
			RETURNING id, email, full_name, customer_id, role_id, status, invited_at, deleted_at, created_at, updated_at
		)
		SELECT u.id, u.email, u.full_name, u.customer_id, u.role_id, r.name, u.status, u.invited_at, u.deleted_at, u.created_at, u.updated_at
		FROM updated u JOIN roles r ON r.id = u.role_id`,
		id, input.FullName, input.RoleID, input.Status)
	user, err := scanUser(row)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return User{}, fmt.Errorf("%w: unknown role", shared.ErrValidation)
		}
		return User{}, err
	}
	return user, nil
}

// SoftDeleteUser marks the account deleted in place. The row, its subject
// link and its audit trail remain.
func (r *PGRepository) SoftDeleteUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `
		WITH deleted AS (
			UPDATE users
			SET status = 'deleted', deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status <> 'deleted'
			RETURNING id, email, full_name, customer_id, role_id, status, invited_at, deleted_at, created_at, updated_at
		)
		SELECT u.id, u.email, u.full_name, u.customer_id, u.role_id, r.name, u.status, u.invited_at, u.deleted_at, u.created_at, u.updated_at
		FROM deleted u JOIN roles r ON r.id = u.role_id`, id)
	return scanUser(row)
}

// RestoreUser brings a soft-deleted account back. Accounts that never
// accepted their invitation return to invited, everything else to active.
func (r *PGRepository) RestoreUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `
		WITH restored AS (
			UPDATE users
			SET status = CASE WHEN invite_token_hash IS NOT NULL THEN 'invited' ELSE 'active' END,
			    deleted_at = NULL,
			    updated_at = NOW()
			WHERE id = $1 AND status = 'deleted'
			RETURNING id, email, full_name, customer_id, role_id, status, invited_at, deleted_at, created_at, updated_at
		)
		SELECT u.id, u.email, u.full_name, u.customer_id, u.role_id, r.name, u.status, u.invited_at, u.deleted_at, u.created_at, u.updated_at
		FROM restored u JOIN roles r ON r.id = u.role_id`, id)
	return scanUser(row)
}

// ExpireInvitations deactivates accounts whose invitation was never accepted
// before cutoff and clears the stale token hash so it cannot be redeemed.
func (r *PGRepository) ExpireInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET status = 'inactive', invite_token_hash = NULL, updated_at = NOW()
		WHERE status = 'invited' AND invited_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
