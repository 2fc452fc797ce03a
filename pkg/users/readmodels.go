package users

import (
	"time"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

// UserReadModel is the single user view
type UserReadModel struct {
	ID             string             `json:"id"`
	UserFriendlyID int64              `json:"userFriendlyId"`
	Email          string             `json:"email"`
	Name           Name               `json:"name"`
	Role           rbac.Role          `json:"role"`
	Status         auth.AccountStatus `json:"status"`
	DistrictID     string             `json:"districtId"`
	SchoolID       string             `json:"schoolId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// NewUserReadModel builds the single user view
func NewUserReadModel(u *User) UserReadModel {
	return UserReadModel{
		ID:             u.ID,
		UserFriendlyID: u.UserFriendlyID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Status:         u.Status,
		DistrictID:     u.DistrictID,
		SchoolID:       u.SchoolID,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// BaseReadModel holds the fields every list item carries
type BaseReadModel struct {
	ID             string             `json:"id"`
	UserFriendlyID int64              `json:"userFriendlyId"`
	Email          string             `json:"email"`
	Name           Name               `json:"name"`
	Role           rbac.Role          `json:"role"`
	Status         auth.AccountStatus `json:"status"`
	DistrictID     string             `json:"districtId"`
}

type DistrictAdministratorReadModel struct {
	BaseReadModel
}

type SchoolAdministratorReadModel struct {
	BaseReadModel
	SchoolID string `json:"schoolId"`
}

type TeacherReadModel struct {
	BaseReadModel
	SchoolID string `json:"schoolId"`
}

type StudentReadModel struct {
	BaseReadModel
	SchoolID string `json:"schoolId"`
}

// NewListItem picks the list view for the user's role
func NewListItem(u *User) interface{} {
	base := BaseReadModel{
		ID:             u.ID,
		UserFriendlyID: u.UserFriendlyID,
		Email:          u.Email,
		Name:           u.Name,
		Role:           u.Role,
		Status:         u.Status,
		DistrictID:     u.DistrictID,
	}

	switch u.Role {
	case rbac.RoleSchoolAdministrator:
		return SchoolAdministratorReadModel{BaseReadModel: base, SchoolID: u.SchoolID}
	case rbac.RoleSchoolTeacher, rbac.RoleClassTeacher:
		return TeacherReadModel{BaseReadModel: base, SchoolID: u.SchoolID}
	case rbac.RoleStudent:
		return StudentReadModel{BaseReadModel: base, SchoolID: u.SchoolID}
	default:
		return DistrictAdministratorReadModel{BaseReadModel: base}
	}
}
