package customers

import (
	"time"

	"github.com/google/uuid"
)

// Customer statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Customer is one tenant. It is the isolation boundary every scoped read
// and write is bound to.
type Customer struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	UsersCount int64     `json:"usersCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Grant is an ownership grant letting a customer_success user operate
// within (and impersonate into) a tenant.
type Grant struct {
	UserID     uuid.UUID `json:"userId"`
	UserEmail  string    `json:"userEmail"`
	CustomerID uuid.UUID `json:"customerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ListFilters narrows a customer listing.
type ListFilters struct {
	Status  string
	Search  string
	Page    int
	PerPage int
}

// UpdateCustomerInput carries a partial customer update.
type UpdateCustomerInput struct {
	Name   *string
	Status *string
}
