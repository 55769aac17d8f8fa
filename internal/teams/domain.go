package teams

import (
	"time"

	"github.com/google/uuid"
)

// Team is a named group of users inside one tenant. Teams never span
// customers; membership is restricted to accounts of the owning tenant.
type Team struct {
	ID           uuid.UUID `json:"id"`
	CustomerID   uuid.UUID `json:"customerId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	MembersCount int64     `json:"membersCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Member is one user's membership in a team.
type Member struct {
	UserID   uuid.UUID `json:"userId"`
	Email    string    `json:"email"`
	FullName string    `json:"fullName"`
	AddedAt  time.Time `json:"addedAt"`
}

// ListFilters narrows a team listing. CustomerID/Unscoped express the
// caller's tenant visibility and are set by the service, never by request
// input.
type ListFilters struct {
	CustomerID *uuid.UUID
	Unscoped   bool
	Search     string
	Page       int
	PerPage    int
}

// CreateTeamInput carries the fields for a new team.
type CreateTeamInput struct {
	Name        string
	Description string
	CustomerID  *uuid.UUID
}

// UpdateTeamInput carries a partial team update. Nil fields keep their
// current values.
type UpdateTeamInput struct {
	Name        *string
	Description *string
}
