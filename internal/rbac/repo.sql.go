package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Store defines persistence operations for the permission evaluator.
type Store interface {
	// RolePermissionNames returns the role's granted permission names and
	// the representation they came from.
	RolePermissionNames(ctx context.Context, roleID int64) ([]string, string, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListRoleIDs(ctx context.Context) ([]int64, error)
}

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewStore constructs a PostgreSQL store.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// RolePermissionNames reads the join table first; a role without join
// rows falls back to its inline legacy array. Unknown roles return
// ErrNotFound.
func (s *PGStore) RolePermissionNames(ctx context.Context, roleID int64) ([]string, string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, "", fmt.Errorf("rbac: query role permissions: %w", err)
	}
	names, err := scanStrings(rows)
	if err != nil {
		return nil, "", fmt.Errorf("rbac: scan role permissions: %w", err)
	}
	if len(names) > 0 {
		return names, SourceJoin, nil
	}

	var inline []string
	err = s.pool.QueryRow(ctx, `SELECT COALESCE(permissions, '{}') FROM roles WHERE id = $1`, roleID).Scan(&inline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", shared.ErrNotFound
		}
		return nil, "", fmt.Errorf("rbac: query inline permissions: %w", err)
	}
	return inline, SourceInline, nil
}

// ListPermissions returns the full permission catalog ordered by name.
func (s *PGStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: query permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate permissions: %w", err)
	}
	return perms, nil
}

// ListRoleIDs returns every role id, for cache warmup.
func (s *PGStore) ListRoleIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("rbac: query role ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rbac: scan role id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: iterate role ids: %w", err)
	}
	return ids, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
