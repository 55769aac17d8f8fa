package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for audit events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one audit event.
func (r *Repository) Insert(ctx context.Context, event Event) error {
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	var at *time.Time
	if !event.At.IsZero() {
		at = &event.At
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_events (actor_user_id, acting_as_user_id, customer_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		event.ActorUserID, event.ActingAsUserID, event.CustomerID, event.Action, event.Entity, event.EntityID, metaJSON, at)
	return err
}

// TimelineWindow returns up to limit rows ordered newest first. Callers ask
// for one row beyond the page to detect whether a next page exists.
func (r *Repository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.occurred_at, e.actor_user_id, COALESCE(u.email, ''), e.acting_as_user_id, e.customer_id, e.action, e.entity, e.entity_id, e.meta
		FROM audit_events e
		LEFT JOIN users u ON u.id = e.actor_user_id
		WHERE e.occurred_at >= $1 AND e.occurred_at < $2
		  AND ($3::uuid IS NULL OR e.actor_user_id = $3)
		  AND ($4::uuid IS NULL OR e.customer_id = $4)
		  AND ($5 = '' OR e.entity = $5)
		  AND ($6 = '' OR e.action = $6)
		ORDER BY e.occurred_at DESC, e.id DESC
		OFFSET $7 LIMIT $8`,
		filters.From, filters.To, filters.ActorID, filters.CustomerID, filters.Entity, filters.Action, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var metaJSON []byte
		if err := rows.Scan(&row.ID, &row.At, &row.ActorUserID, &row.ActorEmail, &row.ActingAsUserID, &row.CustomerID, &row.Action, &row.Entity, &row.EntityID, &metaJSON); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &row.Meta); err != nil {
				return nil, fmt.Errorf("audit: unmarshal meta: %w", err)
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOlderThan removes events past the retention horizon and returns the
// number of rows removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, errors.New("audit: cutoff required")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
