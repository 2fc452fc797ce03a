package users

import (
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

// Message names dispatched by the router
const (
	MsgCreateUser     = "users.create"
	MsgGetUser        = "users.get"
	MsgGetUsers       = "users.list"
	MsgUpdateUser     = "users.update"
	MsgDeleteUser     = "users.delete"
	MsgSelectDistrict = "users.select_district"
	MsgSetPassword    = "users.set_password"
	MsgResetPassword  = "users.reset_password"
	MsgCreateDistrict = "districts.create"
	MsgListDistricts  = "districts.list"
)

// CreateUser stores a pending user in the caller's district and creates
// its login
type CreateUser struct {
	ID       string
	Email    string
	Name     Name
	Role     rbac.Role
	SchoolID string
	Caller   auth.Identity
}

func (CreateUser) MessageName() string { return MsgCreateUser }

// GetUser returns one user. An empty UserID means the caller.
type GetUser struct {
	UserID string
	Caller auth.Identity
}

func (GetUser) MessageName() string { return MsgGetUser }

// GetUsers lists users
type GetUsers struct {
	Filter Filter
	Caller auth.Identity
}

func (GetUsers) MessageName() string { return MsgGetUsers }

// UpdateUser changes the non-nil fields
type UpdateUser struct {
	UserID   string
	Name     *Name
	Email    *string
	Role     *rbac.Role
	SchoolID *string
	Status   *auth.AccountStatus
	Caller   auth.Identity
}

func (UpdateUser) MessageName() string { return MsgUpdateUser }

type DeleteUser struct {
	UserID string
	Caller auth.Identity
}

func (DeleteUser) MessageName() string { return MsgDeleteUser }

// SelectDistrict moves the caller into another district
type SelectDistrict struct {
	DistrictID string
	Caller     auth.Identity
}

func (SelectDistrict) MessageName() string { return MsgSelectDistrict }

// SetPassword completes sign-up for a pending user
type SetPassword struct {
	UserID   string
	Password string
}

func (SetPassword) MessageName() string { return MsgSetPassword }

// ResetPassword confirms a forgotten password with the emailed code
type ResetPassword struct {
	Username string
	Code     string
	Password string
}

func (ResetPassword) MessageName() string { return MsgResetPassword }

type CreateDistrict struct {
	ID   string
	Name string
}

func (CreateDistrict) MessageName() string { return MsgCreateDistrict }

type ListDistricts struct{}

func (ListDistricts) MessageName() string { return MsgListDistricts }
