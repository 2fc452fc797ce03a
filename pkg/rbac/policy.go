package rbac

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CreatePolicy maps a caller role to the roles it may create and manage
type CreatePolicy struct {
	allowed map[Role]map[Role]struct{}
}

// DefaultCreatePolicy returns the built-in matrix: SA may create any role,
// every other role may create roles of strictly lower rank.
func DefaultCreatePolicy() *CreatePolicy {
	policy, err := NewCreatePolicy(map[Role][]Role{
		RoleSA:                    AllRoles(),
		RoleDistrictAdministrator: {RoleSchoolAdministrator, RoleSchoolTeacher, RoleClassTeacher, RoleStudent},
		RoleSchoolAdministrator:   {RoleSchoolTeacher, RoleClassTeacher, RoleStudent},
		RoleSchoolTeacher:         {RoleStudent},
		RoleClassTeacher:          {RoleStudent},
		RoleStudent:               {},
	})
	if err != nil {
		panic(err)
	}
	return policy
}

// NewCreatePolicy validates and copies a matrix. Callers missing from the
// matrix may create nothing.
func NewCreatePolicy(matrix map[Role][]Role) (*CreatePolicy, error) {
	allowed := make(map[Role]map[Role]struct{}, len(matrix))
	for caller, targets := range matrix {
		if !caller.Valid() {
			return nil, fmt.Errorf("create policy: unknown caller role %q", caller)
		}
		set := make(map[Role]struct{}, len(targets))
		for _, target := range targets {
			if !target.Valid() {
				return nil, fmt.Errorf("create policy: unknown target role %q for %s", target, caller)
			}
			if target == RoleSA && caller != RoleSA {
				return nil, fmt.Errorf("create policy: %s may not create %s", caller, RoleSA)
			}
			set[target] = struct{}{}
		}
		allowed[caller] = set
	}
	return &CreatePolicy{allowed: allowed}, nil
}

// CanCreate reports whether caller may create a user with the target role
func (p *CreatePolicy) CanCreate(caller, target Role) bool {
	_, ok := p.allowed[caller][target]
	return ok
}

// CanManage reports whether caller may update or delete a user holding target.
// Management follows the creation matrix.
func (p *CreatePolicy) CanManage(caller, target Role) bool {
	return p.CanCreate(caller, target)
}

// Creatable returns the roles caller may create, highest authority first
func (p *CreatePolicy) Creatable(caller Role) []Role {
	roles := make([]Role, 0, len(p.allowed[caller]))
	for role := range p.allowed[caller] {
		roles = append(roles, role)
	}
	sortRoles(roles)
	return roles
}

// Matrix returns a copy of the policy as plain data
func (p *CreatePolicy) Matrix() map[Role][]Role {
	out := make(map[Role][]Role, len(p.allowed))
	for caller := range p.allowed {
		out[caller] = p.Creatable(caller)
	}
	return out
}

type policyFile struct {
	Create map[string][]string `yaml:"create"`
}

// ParseCreatePolicy reads a policy document:
//
//	create:
//	  SA: [SA, DistrictAdministrator, SchoolAdministrator]
//	  DistrictAdministrator: [SchoolAdministrator]
func ParseCreatePolicy(data []byte) (*CreatePolicy, error) {
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse create policy: %w", err)
	}
	if len(file.Create) == 0 {
		return nil, fmt.Errorf("create policy: no entries")
	}

	matrix := make(map[Role][]Role, len(file.Create))
	for caller, targets := range file.Create {
		roles := make([]Role, len(targets))
		for i, target := range targets {
			roles[i] = Role(target)
		}
		matrix[Role(caller)] = roles
	}
	return NewCreatePolicy(matrix)
}

// LoadCreatePolicy reads a policy document from disk
func LoadCreatePolicy(path string) (*CreatePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read create policy: %w", err)
	}
	return ParseCreatePolicy(data)
}
