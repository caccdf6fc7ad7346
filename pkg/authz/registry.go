package authz

const (
	RoleProjectOwner = "project-owner"
	RoleProjectAdmin = "project-admin"
	RoleDeveloper    = "developer"
	RoleReadOnly     = "read-only"
	RoleAnonymous    = "anonymous"
)

const (
	ActionRead   = "read"
	ActionUpdate = "update"
)

const ObjectPrefixAuthConfig = "authconfig."

// ObjectForResource names the policy object guarding a config resource kind.
func ObjectForResource(resourceKind string) string {
	return ObjectPrefixAuthConfig + resourceKind
}
