package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Repository defines persistence operations for tenant administration.
type Repository interface {
	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error)
	CreateCustomer(ctx context.Context, name string) (Customer, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, input UpdateCustomerInput) (Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	ListGrants(ctx context.Context, customerID uuid.UUID) ([]Grant, error)
	UserRole(ctx context.Context, userID uuid.UUID) (string, error)
	AddGrant(ctx context.Context, userID, customerID uuid.UUID) (Grant, error)
	RemoveGrant(ctx context.Context, userID, customerID uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const customerColumns = `c.id, c.name, c.status,
	(SELECT COUNT(*) FROM users u WHERE u.customer_id = c.id AND u.status <> 'deleted') AS users_count,
	c.created_at, c.updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var customer Customer
	err := row.Scan(
		&customer.ID,
		&customer.Name,
		&customer.Status,
		&customer.UsersCount,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, err
	}
	return customer, nil
}

const customerFilterClause = `
	($1::text = '' OR c.status = $1)
	AND ($2::text = '' OR c.name ILIKE '%' || $2 || '%')`

// ListCustomers returns one page of tenants plus the total match count.
func (r *PGRepository) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	args := []any{filters.Status, filters.Search}

	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers c WHERE `+customerFilterClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	rows, err := r.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers c
		 WHERE `+customerFilterClause+`
		 ORDER BY c.name, c.id
		 LIMIT $3 OFFSET $4`,
		append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// GetCustomer fetches one tenant by primary key.
func (r *PGRepository) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.id = $1`, id)
	return scanCustomer(row)
}

// CreateCustomer inserts an active tenant.
func (r *PGRepository) CreateCustomer(ctx context.Context, name string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, status, created_at, updated_at)
		VALUES ($1, $2, 'active', NOW(), NOW())
		RETURNING id, name, status, 0::bigint, created_at, updated_at`,
		uuid.New(), name)
	customer, err := scanCustomer(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Customer{}, fmt.Errorf("%w: customer name already in use", shared.ErrConflict)
		}
		return Customer{}, err
	}
	return customer, nil
}

// UpdateCustomer applies a partial update. Nil inputs keep the stored value.
func (r *PGRepository) UpdateCustomer(ctx context.Context, id uuid.UUID, input UpdateCustomerInput) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE customers c
		SET name = COALESCE($2, name),
		    status = COALESCE($3, status),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+customerColumns,
		id, input.Name, input.Status)
	customer, err := scanCustomer(row)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Customer{}, fmt.Errorf("%w: customer name already in use", shared.ErrConflict)
		}
		return Customer{}, err
	}
	return customer, nil
}

// DeleteCustomer removes an empty tenant. Tenants that still own users or
// other rows are protected by foreign keys and surface as a conflict.
func (r *PGRepository) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: customer still has users or data", shared.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListGrants returns the ownership grants on one tenant.
func (r *PGRepository) ListGrants(ctx context.Context, customerID uuid.UUID) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.user_id, u.email, g.customer_id, g.created_at
		FROM customer_success_grants g
		JOIN users u ON u.id = g.user_id
		WHERE g.customer_id = $1
		ORDER BY g.created_at, g.user_id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var grant Grant
		if err := rows.Scan(&grant.UserID, &grant.UserEmail, &grant.CustomerID, &grant.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

// UserRole resolves a user id to its role machine name.
func (r *PGRepository) UserRole(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT r.name FROM users u JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1 AND u.status <> 'deleted'`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return name, nil
}

// AddGrant records an ownership grant.
func (r *PGRepository) AddGrant(ctx context.Context, userID, customerID uuid.UUID) (Grant, error) {
	var grant Grant
	err := r.pool.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO customer_success_grants (user_id, customer_id, created_at)
			VALUES ($1, $2, NOW())
			RETURNING user_id, customer_id, created_at
		)
		SELECT i.user_id, u.email, i.customer_id, i.created_at
		FROM inserted i JOIN users u ON u.id = i.user_id`,
		userID, customerID).Scan(&grant.UserID, &grant.UserEmail, &grant.CustomerID, &grant.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err, "") {
			return Grant{}, fmt.Errorf("%w: grant already exists", shared.ErrConflict)
		}
		if shared.IsForeignKeyViolation(err) {
			return Grant{}, fmt.Errorf("%w: unknown user", shared.ErrValidation)
		}
		return Grant{}, err
	}
	return grant, nil
}

// RemoveGrant revokes an ownership grant. Permission caches are not
// involved; the overlay reads grants on every request.
func (r *PGRepository) RemoveGrant(ctx context.Context, userID, customerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM customer_success_grants WHERE user_id = $1 AND customer_id = $2`,
		userID, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ Repository = (*PGRepository)(nil)
