package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrIdempotencyConflict reports that a key was already reserved, meaning
// the submission it guards has been processed before.
var ErrIdempotencyConflict = errors.New("idempotency key already used")

// IdempotencyStore backs the Idempotency-Key request header. A reservation
// is a single row keyed by the client-chosen token; a retry of the same
// submission hits the existing row and is rejected instead of applied
// twice. Rows are swept by the nightly retention job.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore returns a store writing to the idempotency_keys table.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Reserve claims key for the named scope. It returns ErrIdempotencyConflict
// when the key is already held, regardless of which scope holds it.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, scope string) error {
	if s == nil || s.pool == nil {
		return errors.New("idempotency store not configured")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key, scope, created_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, scope, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release frees a reservation so the key can be retried. Callers use it
// when the work guarded by the key failed after Reserve succeeded.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil || s.pool == nil || key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key)
	return err
}

// PurgeOlderThan drops reservations created before cutoff and reports how
// many rows went away.
func (s *IdempotencyStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
