package types

import (
	"fmt"
	"strings"
)

// Role is an ordered position in the organizational hierarchy. Capability
// checks compare roles by rank, never by name.
type Role int

const (
	RoleMember Role = iota
	RoleClocker
	RoleDepartmentLeader
	RolePastor
	RoleAssociatePastor
	RoleSeniorPastor
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleMember:           "member",
	RoleClocker:          "clocker",
	RoleDepartmentLeader: "department-leader",
	RolePastor:           "pastor",
	RoleAssociatePastor:  "associate-pastor",
	RoleSeniorPastor:     "senior-pastor",
	RoleSuperAdmin:       "super-admin",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r ranks at or above o.
func (r Role) AtLeast(o Role) bool { return r >= o }

// ParseRole maps a role name to its rank. Unknown names are an error so a
// misconfigured gateway cannot silently grant member-level access.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, n := range roleNames {
		if n == s {
			return r, nil
		}
	}
	return RoleMember, fmt.Errorf("unknown role %q", s)
}

// Actor is the authorization context supplied by the caller. The engine never
// authenticates; it only evaluates capabilities against this context.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	// ScopeMemberships are the organizational units the actor belongs to.
	ScopeMemberships []Scope `json:"scope_memberships,omitempty"`
}

// MemberOf reports whether the actor belongs to the given scope. Everyone is
// a member of the "all" scope.
func (a Actor) MemberOf(s Scope) bool {
	if s.Type == ScopeAll {
		return true
	}
	for _, m := range a.ScopeMemberships {
		if m.Type == s.Type && m.TargetID == s.TargetID {
			return true
		}
	}
	return false
}
