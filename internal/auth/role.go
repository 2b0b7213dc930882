// Package auth holds the role model and the authorization gate consulted by
// every mutating GMAO operation.
package auth

import "fmt"

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleManager    Role = "Manager"
	RoleTechnician Role = "Technician"
	RoleOperator   Role = "Operator"
	RoleSupervisor Role = "Supervisor"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleManager, RoleTechnician, RoleOperator, RoleSupervisor}

// ParseRole converts a stored role name into a Role.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("auth: unknown role %q", s)
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsManagerial reports whether r is Manager or Admin.
func (r Role) IsManagerial() bool {
	return r == RoleManager || r == RoleAdmin
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string
	Role Role
}
