// Package entity contains the core business objects of the project.
package entity

import "slices"

// Role represents the type of role a user can have in the system.
type Role string

const (
	// RoleUser indicates a regular marketplace user.
	RoleUser Role = "user"
	// RoleCompany indicates a company posting logistics requirements.
	RoleCompany Role = "company"
	// RoleThreePL indicates a third-party logistics provider that bids on requirements.
	RoleThreePL Role = "threepl"
	// RoleAdmin indicates an administrator. Never assignable through self-registration.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleCompany, RoleThreePL, RoleAdmin:
		return true
	default:
		return false
	}
}

// SelfRegistrable reports whether a caller may pick this role when registering.
func (r Role) SelfRegistrable() bool {
	return r.IsValid() && r != RoleAdmin
}

// Roles is a slice of Role for convenience.
type Roles []Role

// Contains checks if the roles slice contains a specific role.
func (rs Roles) Contains(role Role) bool {
	return slices.Contains(rs, role)
}
