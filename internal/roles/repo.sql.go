package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/platform/db"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Repository defines persistence operations for role administration.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, input CreateRoleInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, input UpdateRoleInput) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ReplacePermissions(ctx context.Context, roleID int64, permissions []string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `r.id, r.name, r.display_name, COALESCE(r.description, ''), r.is_system,
	(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id AND u.status <> 'deleted') AS users_count,
	r.created_at, r.updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.IsSystem,
		&role.UsersCount,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns every role with its live user count.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles r ORDER BY r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches one role by primary key.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles r WHERE r.id = $1`, id)
	return scanRole(row)
}

// CreateRole inserts a custom role and its permission links in one
// transaction, so a bad permission name leaves no half-created role behind.
func (r *PGRepository) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	var role Role
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO roles (name, display_name, description, is_system, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, NOW(), NOW())
			RETURNING id, name, display_name, COALESCE(description, ''), is_system, 0::bigint, created_at, updated_at`,
			input.Name, input.DisplayName, input.Description)
		created, err := scanRole(row)
		if err != nil {
			return err
		}
		if len(input.Permissions) > 0 {
			if err := replacePermissionsTx(ctx, tx, created.ID, input.Permissions); err != nil {
				return err
			}
		}
		role = created
		return nil
	})
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Role{}, fmt.Errorf("%w: role name already in use", shared.ErrConflict)
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole applies a partial update. Nil inputs keep the stored value.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, input UpdateRoleInput) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = COALESCE($2, name),
		    display_name = COALESCE($3, display_name),
		    description = COALESCE($4, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, display_name, COALESCE(description, ''), is_system,
			(SELECT COUNT(*) FROM users u WHERE u.role_id = roles.id AND u.status <> 'deleted'),
			created_at, updated_at`,
		id, input.Name, input.DisplayName, input.Description)
	role, err := scanRole(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Role{}, fmt.Errorf("%w: role name already in use", shared.ErrConflict)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Roles still assigned to users are protected by
// the users.role_id foreign key and surface as a conflict.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: role is still assigned to users", shared.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplacePermissions swaps the role's permission set for the given names and
// clears the legacy inline column, so the role never presents both
// representations at once.
func (r *PGRepository) ReplacePermissions(ctx context.Context, roleID int64, permissions []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET permissions = NULL, updated_at = NOW() WHERE id = $1`, roleID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return replacePermissionsTx(ctx, tx, roleID, permissions)
	})
}

func replacePermissionsTx(ctx context.Context, tx pgx.Tx, roleID int64, permissions []string) error {
	ids, err := resolvePermissionIDs(ctx, tx, permissions)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT $1, unnest($2::bigint[])`, roleID, ids)
	return err
}

// resolvePermissionIDs maps permission names to ids. Any name missing from
// the catalog fails the whole call.
func resolvePermissionIDs(ctx context.Context, tx pgx.Tx, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx, `SELECT id, name FROM permissions WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[string]int64, len(names))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		found[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, ok := found[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ Repository = (*PGRepository)(nil)
