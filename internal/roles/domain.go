package roles

import "time"

// Role is a named bundle of permissions. Rows with IsSystem set are seeded
// at install time and cannot be changed or removed through the API.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"isSystem"`
	UsersCount  int64     `json:"usersCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CreateRoleInput carries the fields for a new custom role. Permissions are
// permission names and are attached in the same transaction as the insert.
type CreateRoleInput struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// UpdateRoleInput carries a partial role update. Nil fields keep their
// current values.
type UpdateRoleInput struct {
	Name        *string
	DisplayName *string
	Description *string
}
