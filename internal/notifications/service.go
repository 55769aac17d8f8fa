package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service manages in-app notification records. Reads and read-marks act as
// the effective user, so an impersonating operator sees the target's inbox.
type Service struct {
	repo        Repository
	audit       Auditor
	idempotency *shared.IdempotencyStore
}

// NewService builds a Service instance. The idempotency store may be nil,
// in which case Idempotency-Key headers are ignored.
func NewService(repo Repository, auditor Auditor, idempotency *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: auditor, idempotency: idempotency}
}

// List returns one page of the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, rc *shared.RequestContext, filters ListFilters) ([]Notification, shared.Pagination, error) {
	if rc == nil {
		return nil, shared.Pagination{}, shared.ErrUnauthenticated
	}
	notifications, total, err := s.repo.ListForUser(ctx, rc.EffectiveUserID(), filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return notifications, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Unread returns the caller's unread count.
func (s *Service) Unread(ctx context.Context, rc *shared.RequestContext) (int64, error) {
	if rc == nil {
		return 0, shared.ErrUnauthenticated
	}
	return s.repo.UnreadCount(ctx, rc.EffectiveUserID())
}

// MarkRead stamps one of the caller's notifications as read. Repeated calls
// keep the first timestamp. Other recipients' rows mask as not found.
func (s *Service) MarkRead(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) (Notification, error) {
	if rc == nil {
		return Notification{}, shared.ErrUnauthenticated
	}
	return s.repo.MarkRead(ctx, rc.EffectiveUserID(), id)
}

// MarkAllRead stamps every unread notification of the caller and reports
// how many rows changed.
func (s *Service) MarkAllRead(ctx context.Context, rc *shared.RequestContext) (int64, error) {
	if rc == nil {
		return 0, shared.ErrUnauthenticated
	}
	return s.repo.MarkAllRead(ctx, rc.EffectiveUserID())
}

// Receipt reports what a Create wrote.
type Receipt struct {
	Delivered    int64         `json:"delivered"`
	Notification *Notification `json:"notification,omitempty"`
}

// Create writes notification records for a single user or for every live
// user of a customer. An Idempotency-Key makes a retried submission
// conflict instead of writing twice.
func (s *Service) Create(ctx context.Context, rc *shared.RequestContext, input CreateInput, idemKey string) (Receipt, error) {
	if rc == nil {
		return Receipt{}, shared.ErrUnauthenticated
	}
	input.Kind = strings.TrimSpace(input.Kind)
	input.Title = shared.NormalizeName(input.Title)
	if input.Kind == "" || input.Title == "" {
		return Receipt{}, fmt.Errorf("%w: kind and title required", shared.ErrValidation)
	}
	if (input.UserID == nil) == (input.CustomerID == nil) {
		return Receipt{}, fmt.Errorf("%w: exactly one of userId or customerId required", shared.ErrValidation)
	}
	if err := s.checkTarget(ctx, rc, input); err != nil {
		return Receipt{}, err
	}

	reserved := false
	if idemKey != "" && s.idempotency != nil {
		if err := s.idempotency.Reserve(ctx, idemKey, "notifications"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Receipt{}, fmt.Errorf("%w: request already processed", shared.ErrConflict)
			}
			return Receipt{}, err
		}
		reserved = true
	}

	receipt, err := s.deliver(ctx, input)
	if err != nil {
		if reserved {
			_ = s.idempotency.Release(ctx, idemKey)
		}
		return Receipt{}, err
	}

	entityID := ""
	if receipt.Notification != nil {
		entityID = receipt.Notification.ID.String()
	} else {
		entityID = input.CustomerID.String()
	}
	event := audit.EventFromContext(rc, "notification.created", "notification", entityID)
	event.Meta = map[string]any{"kind": input.Kind, "delivered": receipt.Delivered}
	if input.CustomerID != nil {
		event.Meta["customer_id"] = input.CustomerID.String()
	}
	_ = s.audit.Record(ctx, event)
	return receipt, nil
}

// checkTarget enforces tenant reach. Non-system-admins may only notify
// their effective tenant.
func (s *Service) checkTarget(ctx context.Context, rc *shared.RequestContext, input CreateInput) error {
	if input.UserID != nil {
		customerID, status, err := s.repo.UserTenant(ctx, *input.UserID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: unknown user", shared.ErrValidation)
			}
			return err
		}
		if status == shared.UserStatusDeleted {
			return fmt.Errorf("%w: unknown user", shared.ErrValidation)
		}
		if !rc.Principal.IsSystemAdmin() {
			if rc.EffectiveCustomerID == nil || customerID == nil || *customerID != *rc.EffectiveCustomerID {
				return fmt.Errorf("%w: notifications can only target the current tenant", shared.ErrForbidden)
			}
		}
		return nil
	}
	if !rc.Principal.IsSystemAdmin() {
		if rc.EffectiveCustomerID == nil || *input.CustomerID != *rc.EffectiveCustomerID {
			return fmt.Errorf("%w: notifications can only target the current tenant", shared.ErrForbidden)
		}
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, input CreateInput) (Receipt, error) {
	if input.UserID != nil {
		n, err := s.repo.CreateForUser(ctx, *input.UserID, input.Kind, input.Title, input.Body)
		if err != nil {
			return Receipt{}, err
		}
		return Receipt{Delivered: 1, Notification: &n}, nil
	}
	count, err := s.repo.CreateForCustomer(ctx, *input.CustomerID, input.Kind, input.Title, input.Body)
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Delivered: count}, nil
}

// PurgeOlderThan removes notification records created before cutoff and
// reports how many rows were purged. Used by the retention job.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
