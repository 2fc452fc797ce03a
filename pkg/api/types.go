package api

import "github.com/platinummonkey/schoolhouse/pkg/users"

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Email    string     `json:"email"`
	Name     users.Name `json:"name"`
	Role     string     `json:"role"`
	SchoolID string     `json:"schoolId,omitempty"`
}

// UpdateUserRequest is the body of PUT /users/{userId}. Absent fields are unchanged.
type UpdateUserRequest struct {
	Email    *string     `json:"email,omitempty"`
	Name     *users.Name `json:"name,omitempty"`
	Role     *string     `json:"role,omitempty"`
	SchoolID *string     `json:"schoolId,omitempty"`
	Status   *string     `json:"status,omitempty"`
}

// SelectDistrictRequest is the body of POST /users/select-district
type SelectDistrictRequest struct {
	DistrictID string `json:"districtId"`
}

// CreateDistrictRequest is the body of POST /districts
type CreateDistrictRequest struct {
	Name string `json:"name"`
}

// SetPasswordRequest is the body of POST /set-password/{userId}
type SetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPasswordRequest is the body of POST /reset-password
type ResetPasswordRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
	Password string `json:"password"`
}
