package users

import (
	"time"

	"github.com/google/uuid"
)

// User statuses. Deleted rows stay in place for audit and restore.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusInvited  = "invited"
	StatusDeleted  = "deleted"
)

// User is a managed account inside a tenant. Back-office staff rows carry a
// nil CustomerID.
type User struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	FullName   string     `json:"fullName"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	RoleID     int64      `json:"roleId"`
	RoleName   string     `json:"role"`
	Status     string     `json:"status"`
	InvitedAt  *time.Time `json:"invitedAt,omitempty"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ListFilters narrows a user listing. CustomerID/Unscoped express the
// caller's tenant visibility and are set by the service, never by request
// input.
type ListFilters struct {
	CustomerID *uuid.UUID
	Unscoped   bool
	Status     string
	RoleID     int64
	Search     string
	Page       int
	PerPage    int
}

// InviteUserInput carries the fields for a new invited account.
type InviteUserInput struct {
	Email      string
	FullName   string
	RoleID     int64
	CustomerID *uuid.UUID
}

// UpdateUserInput carries a partial account update. Nil fields keep their
// current values. Status transitions through updates are limited to
// active/inactive; deletion and restore have their own operations.
type UpdateUserInput struct {
	FullName *string
	RoleID   *int64
	Status   *string
}
