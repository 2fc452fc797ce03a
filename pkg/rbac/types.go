package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is one of the fixed tenant roles
type Role string

const (
	RoleSA                    Role = "SA"
	RoleDistrictAdministrator Role = "DistrictAdministrator"
	RoleSchoolAdministrator   Role = "SchoolAdministrator"
	RoleSchoolTeacher         Role = "SchoolTeacher"
	RoleClassTeacher          Role = "ClassTeacher"
	RoleStudent               Role = "Student"
)

var roleRanks = map[Role]int{
	RoleSA:                    5,
	RoleDistrictAdministrator: 4,
	RoleSchoolAdministrator:   3,
	RoleSchoolTeacher:         2,
	RoleClassTeacher:          2,
	RoleStudent:               1,
}

// AllRoles returns every role, highest authority first
func AllRoles() []Role {
	return []Role{
		RoleSA,
		RoleDistrictAdministrator,
		RoleSchoolAdministrator,
		RoleSchoolTeacher,
		RoleClassTeacher,
		RoleStudent,
	}
}

// ParseRole converts a wire value into a Role
func ParseRole(value string) (Role, error) {
	role := Role(strings.TrimSpace(value))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// Valid reports whether the role belongs to the closed role set
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the authority rank, 0 for unknown roles
func (r Role) Rank() int {
	return roleRanks[r]
}

// Outranks reports whether r has strictly more authority than other
func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

func (r Role) String() string {
	return string(r)
}

// RoleSet is an immutable set of roles attached to a route
type RoleSet struct {
	members map[Role]struct{}
}

// NewRoleSet builds a role set. It panics when roles is empty or holds an
// unknown role; role sets are declared in route tables at startup.
func NewRoleSet(roles ...Role) RoleSet {
	if len(roles) == 0 {
		panic("rbac: role set must not be empty")
	}
	members := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			panic(fmt.Sprintf("rbac: unknown role %q in role set", role))
		}
		members[role] = struct{}{}
	}
	return RoleSet{members: members}
}

// Contains reports whether role is in the set
func (s RoleSet) Contains(role Role) bool {
	_, ok := s.members[role]
	return ok
}

// Roles returns the members, highest authority first
func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(s.members))
	for role := range s.members {
		roles = append(roles, role)
	}
	sortRoles(roles)
	return roles
}

func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ",")
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Rank() != roles[j].Rank() {
			return roles[i].Rank() > roles[j].Rank()
		}
		return roles[i] < roles[j]
	})
}
