package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one stored in-app record for a recipient. Delivery to
// external channels is out of scope; this surface owns the rows only.
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	UserID     uuid.UUID  `json:"userId"`
	Kind       string     `json:"kind"`
	Title      string     `json:"title"`
	Body       string     `json:"body,omitempty"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ListFilters narrows a recipient's notification listing.
type ListFilters struct {
	UnreadOnly bool
	Kind       string
	Page       int
	PerPage    int
}

// CreateInput carries an administrative notification submission. Exactly
// one of UserID (single recipient) or CustomerID (every live user of the
// tenant) must be set.
type CreateInput struct {
	UserID     *uuid.UUID
	CustomerID *uuid.UUID
	Kind       string
	Title      string
	Body       string
}
