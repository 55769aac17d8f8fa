package notifications

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

// Repository defines persistence operations for notification records.
type Repository interface {
	ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters) ([]Notification, int, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateForUser(ctx context.Context, userID uuid.UUID, kind, title, body string) (Notification, error)
	CreateForCustomer(ctx context.Context, customerID uuid.UUID, kind, title, body string) (int64, error)
	UserTenant(ctx context.Context, userID uuid.UUID) (*uuid.UUID, string, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const notificationColumns = `n.id, n.customer_id, n.user_id, n.kind, n.title, n.body, n.read_at, n.created_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.CustomerID,
		&n.UserID,
		&n.Kind,
		&n.Title,
		&n.Body,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, shared.ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

const listFilterClause = `
	n.user_id = $1
	AND (NOT $2::bool OR n.read_at IS NULL)
	AND ($3::text = '' OR n.kind = $3)`

// ListForUser returns one page of the recipient's notifications, newest
// first, plus the total match count.
func (r *PGRepository) ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters) ([]Notification, int, error) {
	args := []any{userID, filters.UnreadOnly, filters.Kind}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications n WHERE `+listFilterClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	rows, err := r.pool.Query(ctx,
		`SELECT `+notificationColumns+` FROM notifications n
		 WHERE `+listFilterClause+`
		 ORDER BY n.created_at DESC, n.id
		 LIMIT $4 OFFSET $5`,
		append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

// UnreadCount returns how many of the recipient's notifications are unread.
func (r *PGRepository) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID).Scan(&count)
	return count, err
}

// MarkRead stamps one of the recipient's notifications as read. Re-reading
// keeps the original timestamp. Rows of other recipients report not found.
func (r *PGRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) (Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications n
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns, id, userID)
	return scanNotification(row)
}

// MarkAllRead stamps every unread notification of the recipient.
func (r *PGRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = NOW() WHERE user_id = $1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateForUser inserts one record for a single live recipient, copying
// the recipient's tenant onto the row.
func (r *PGRepository) CreateForUser(ctx context.Context, userID uuid.UUID, kind, title, body string) (Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, customer_id, user_id, kind, title, body, created_at)
		SELECT $1, u.customer_id, u.id, $3, $4, $5, NOW()
		FROM users u WHERE u.id = $2 AND u.status <> 'deleted'
		RETURNING id, customer_id, user_id, kind, title, body, read_at, created_at`,
		uuid.New(), userID, kind, title, body)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Notification{}, fmt.Errorf("%w: unknown user", shared.ErrValidation)
		}
		return Notification{}, err
	}
	return n, nil
}

// CreateForCustomer fans one record out to every live user of a tenant and
// reports how many rows were written.
func (r *PGRepository) CreateForCustomer(ctx context.Context, customerID uuid.UUID, kind, title, body string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, customer_id, user_id, kind, title, body, created_at)
		SELECT gen_random_uuid(), u.customer_id, u.id, $2, $3, $4, NOW()
		FROM users u
		WHERE u.customer_id = $1 AND u.status <> 'deleted'`,
		customerID, kind, title, body)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UserTenant resolves a user to its tenant and status.
func (r *PGRepository) UserTenant(ctx context.Context, userID uuid.UUID) (*uuid.UUID, string, error) {
	var customerID *uuid.UUID
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT customer_id, status FROM users WHERE id = $1`, userID).Scan(&customerID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", shared.ErrNotFound
		}
		return nil, "", err
	}
	return customerID, status, nil
}

// DeleteOlderThan purges notification records created before cutoff.
func (r *PGRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
