package policies

import "github.com/nodewire/nodewire/internal/models"

// Policy names checked by the service layer. Business logic checks policy
// membership only; it never branches on the role itself.
const (
	OrganizationsViewAll = "organizations.view-all"
	OrganizationsViewOwn = "organizations.view-own"
	OrganizationsManage  = "organizations.manage"

	NodesManageAll = "nodes.manage-all"
	NodesManageOwn = "nodes.manage-own"

	ConnectionsManageAll = "node-connections.manage-all"
	ConnectionsManageOwn = "node-connections.manage-own"

	UsersManageAll   = "users.manage-all"
	UsersManageOwn   = "users.manage-own"
	UsersManageRoles = "users.manage-roles"
)

// DefaultRegistry builds the registry used by the application: root holds
// every policy, administrators manage their own organization's resources, and
// plain users can see their own organization.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	all := []models.Role{models.RoleRoot}
	admin := []models.Role{models.RoleRoot, models.RoleAdministrator}
	member := []models.Role{models.RoleRoot, models.RoleAdministrator, models.RoleUser}

	r.Register(member, OrganizationsViewOwn)
	r.Register(all, OrganizationsViewAll)
	r.Register(all, OrganizationsManage)

	r.Register(admin, NodesManageOwn)
	r.Register(all, NodesManageAll)

	r.Register(admin, ConnectionsManageOwn)
	r.Register(all, ConnectionsManageAll)

	r.Register(admin, UsersManageOwn)
	r.Register(all, UsersManageAll)
	r.Register(all, UsersManageRoles)

	return r
}
