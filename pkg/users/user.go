package users

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

var (
	// ErrNotFound is returned when a user does not exist
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when another user already has the email
	ErrEmailTaken = errors.New("email already in use")
	// ErrDistrictNotFound is returned when a district does not exist
	ErrDistrictNotFound = errors.New("district not found")
	// ErrDistrictExists is returned when a district id is reused
	ErrDistrictExists = errors.New("district already exists")
)

// Name is a person's given and family name
type Name struct {
	First string `json:"first" yaml:"first"`
	Last  string `json:"last" yaml:"last"`
}

// User is a stored account
type User struct {
	ID             string
	UserFriendlyID int64
	Email          string
	Name           Name
	Role           rbac.Role
	Status         auth.AccountStatus
	DistrictID     string
	SchoolID       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity returns the authentication view of the user
func (u *User) Identity() auth.Identity {
	return auth.Identity{
		UserID:     u.ID,
		Role:       u.Role,
		DistrictID: u.DistrictID,
		Status:     u.Status,
	}
}

// Clone returns a copy that shares no state with u
func (u *User) Clone() *User {
	c := *u
	return &c
}

// District is a tenant
type District struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoleCount is the number of users holding a role in a status
type RoleCount struct {
	Role   rbac.Role
	Status auth.AccountStatus
	Count  int
}

// Store persists users and districts. Implementations join the unit of work
// carried by ctx when there is one.
type Store interface {
	// Create assigns UserFriendlyID and stores the user.
	// Returns ErrEmailTaken when the email is in use.
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	// List returns one page of matching users and the total match count
	List(ctx context.Context, filter Filter) ([]*User, int, error)

	CreateDistrict(ctx context.Context, district *District) error
	DistrictExists(ctx context.Context, id string) (bool, error)
	ListDistricts(ctx context.Context) ([]*District, error)

	CountByRole(ctx context.Context) ([]RoleCount, error)
}
