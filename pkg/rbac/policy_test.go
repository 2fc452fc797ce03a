package rbac

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCreatePolicy(t *testing.T) {
	policy := DefaultCreatePolicy()

	allowed := map[Role][]Role{
		RoleSA:                    AllRoles(),
		RoleDistrictAdministrator: {RoleSchoolAdministrator, RoleSchoolTeacher, RoleClassTeacher, RoleStudent},
		RoleSchoolAdministrator:   {RoleSchoolTeacher, RoleClassTeacher, RoleStudent},
		RoleSchoolTeacher:         {RoleStudent},
		RoleClassTeacher:          {RoleStudent},
		RoleStudent:               {},
	}

	for _, caller := range AllRoles() {
		for _, target := range AllRoles() {
			want := false
			for _, r := range allowed[caller] {
				if r == target {
					want = true
				}
			}
			assert.Equal(t, want, policy.CanCreate(caller, target), "%s creating %s", caller, target)
		}
	}
}

func TestDefaultCreatePolicy_OnlySACreatesSA(t *testing.T) {
	policy := DefaultCreatePolicy()
	for _, caller := range AllRoles() {
		if caller == RoleSA {
			continue
		}
		assert.False(t, policy.CanCreate(caller, RoleSA), caller)
	}
}

func TestDefaultCreatePolicy_NoUpwardCreation(t *testing.T) {
	policy := DefaultCreatePolicy()
	for _, caller := range AllRoles() {
		for _, target := range policy.Creatable(caller) {
			if caller == RoleSA {
				continue
			}
			assert.True(t, caller.Outranks(target), "%s may create %s", caller, target)
		}
	}
}

func TestCreatePolicy_Creatable(t *testing.T) {
	policy := DefaultCreatePolicy()

	assert.Equal(t, []Role{RoleSchoolTeacher, RoleClassTeacher, RoleStudent}, policy.Creatable(RoleSchoolAdministrator))
	assert.Empty(t, policy.Creatable(RoleStudent))

	// returned slices are copies
	roles := policy.Creatable(RoleClassTeacher)
	roles[0] = RoleSA
	assert.False(t, policy.CanCreate(RoleClassTeacher, RoleSA))
}

func TestNewCreatePolicy_Validation(t *testing.T) {
	tests := []struct {
		name   string
		matrix map[Role][]Role
	}{
		{"unknown caller", map[Role][]Role{"Janitor": {RoleStudent}}},
		{"unknown target", map[Role][]Role{RoleSA: {"Janitor"}}},
		{"non SA creating SA", map[Role][]Role{RoleDistrictAdministrator: {RoleSA}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCreatePolicy(tt.matrix)
			assert.Error(t, err)
		})
	}
}

func TestParseCreatePolicy(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		policy, err := ParseCreatePolicy([]byte(`
create:
  SA: [SA, DistrictAdministrator]
  DistrictAdministrator: [SchoolAdministrator]
`))
		require.NoError(t, err)
		assert.True(t, policy.CanCreate(RoleSA, RoleSA))
		assert.True(t, policy.CanCreate(RoleDistrictAdministrator, RoleSchoolAdministrator))
		assert.False(t, policy.CanCreate(RoleDistrictAdministrator, RoleStudent))
		assert.False(t, policy.CanCreate(RoleStudent, RoleStudent))
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := ParseCreatePolicy([]byte(`create: {}`))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseCreatePolicy([]byte("create: [oops"))
		assert.Error(t, err)
	})

	t.Run("escalation rejected", func(t *testing.T) {
		_, err := ParseCreatePolicy([]byte(`
create:
  SchoolAdministrator: [SA]
`))
		assert.Error(t, err)
	})
}

func TestLoadCreatePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("create:\n  SA: [Student]\n"), 0o600))

	policy, err := LoadCreatePolicy(path)
	require.NoError(t, err)
	assert.Equal(t, map[Role][]Role{RoleSA: {RoleStudent}}, policy.Matrix())

	_, err = LoadCreatePolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
