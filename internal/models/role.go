package models

// Role is the privilege level held by an account. Roles form a total order:
// super_admin > admin > user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRank = map[Role]int{
	RoleUser:       0,
	RoleAdmin:      1,
	RoleSuperAdmin: 2,
}

// Valid reports whether the role is one of the known privilege levels.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether the role grants at least the privilege of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Privileged reports whether the role carries admin-level access.
func (r Role) Privileged() bool {
	return r.AtLeast(RoleAdmin)
}
