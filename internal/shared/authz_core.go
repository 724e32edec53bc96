package shared

// Core platform permissions: firms, roles and firm membership.
const (
	PermCreateFirm = "create_firm"
	PermReadFirm   = "read_firm"
	PermUpdateFirm = "update_firm"
	PermDeleteFirm = "delete_firm"

	PermCreateRole = "create_role"
	PermReadRole   = "read_role"
	PermUpdateRole = "update_role"
	PermDeleteRole = "delete_role"
	PermAssignRole = "assign_role"

	PermInviteUser       = "invite_user"
	PermReadUser         = "read_user"
	PermRevokeMembership = "revoke_membership"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermCreateFirm,
		PermReadFirm,
		PermUpdateFirm,
		PermDeleteFirm,
		PermCreateRole,
		PermReadRole,
		PermUpdateRole,
		PermDeleteRole,
		PermAssignRole,
		PermInviteUser,
		PermReadUser,
		PermRevokeMembership,
	}
}
