package shared

// User lifecycle statuses as stored in users.status.
const (
	UserStatusActive    = "active"
	UserStatusInactive  = "inactive"
	UserStatusInvited   = "invited"
	UserStatusSuspended = "suspended"
	UserStatusDeleted   = "deleted"
)

// Customer lifecycle statuses as stored in customers.status.
const (
	CustomerStatusActive    = "active"
	CustomerStatusSuspended = "suspended"
)

// ValidUserStatus reports whether s is a known user status.
func ValidUserStatus(s string) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusInvited, UserStatusSuspended, UserStatusDeleted:
		return true
	}
	return false
}
