package shared

// System role machine names. Rows with is_system=true are seeded under
// these names and are immutable through the API.
const (
	RoleSystemAdmin     = "system_admin"
	RoleCustomerSuccess = "customer_success"
	RoleCustomerAdmin   = "customer_admin"
	RoleStandardUser    = "standard_user"
)

// Permission names follow "<Resource>:<action>".
const (
	PermUsersView   = "UserManagement:viewUsers"
	PermUsersEdit   = "UserManagement:editUsers"
	PermUsersInvite = "UserManagement:inviteUsers"
	PermUsersDelete = "UserManagement:deleteUsers"

	PermRolesView = "RoleManagement:viewRoles"
	PermRolesEdit = "RoleManagement:editRoles"

	PermCustomersView = "CustomerManagement:viewCustomers"
	PermCustomersEdit = "CustomerManagement:editCustomers"

	PermTeamsView = "TeamManagement:viewTeams"
	PermTeamsEdit = "TeamManagement:editTeams"

	PermNotificationsView   = "Notifications:viewNotifications"
	PermNotificationsManage = "Notifications:manageNotifications"

	PermAuditView = "AuditLog:viewAudit"
)

// AllPermissions lists the full permission catalog in seed order.
func AllPermissions() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermUsersInvite,
		PermUsersDelete,
		PermRolesView,
		PermRolesEdit,
		PermCustomersView,
		PermCustomersEdit,
		PermTeamsView,
		PermTeamsEdit,
		PermNotificationsView,
		PermNotificationsManage,
		PermAuditView,
	}
}

// SystemRoleNames lists the reserved role machine names.
func SystemRoleNames() []string {
	return []string{RoleSystemAdmin, RoleCustomerSuccess, RoleCustomerAdmin, RoleStandardUser}
}

// IsSystemRoleName reports whether name is reserved for a seeded system role.
func IsSystemRoleName(name string) bool {
	switch name {
	case RoleSystemAdmin, RoleCustomerSuccess, RoleCustomerAdmin, RoleStandardUser:
		return true
	}
	return false
}
