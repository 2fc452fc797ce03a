package users

import (
	"math"
	"sort"
	"strings"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
)

// SortField names a sortable user attribute as it appears in the query string
type SortField string

const (
	SortFirstName      SortField = "user.name.first"
	SortLastName       SortField = "user.name.last"
	SortEmail          SortField = "user.email"
	SortUserFriendlyID SortField = "user.userFriendlyId"
	SortCreatedAt      SortField = "user.createdAt"
	SortStatus         SortField = "user.status"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Sort orders a listing
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort lists users in creation sequence
var DefaultSort = Sort{Field: SortUserFriendlyID}

// ParseSort reads "<field>,<ASC|DESC>". The direction defaults to ASC.
func ParseSort(value string) (Sort, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultSort, nil
	}

	field, direction, _ := strings.Cut(value, ",")
	s := Sort{Field: SortField(strings.TrimSpace(field))}
	switch s.Field {
	case SortFirstName, SortLastName, SortEmail, SortUserFriendlyID, SortCreatedAt, SortStatus:
	default:
		return Sort{}, apierrors.Validationf("unknown sort field %q", field)
	}

	switch strings.ToUpper(strings.TrimSpace(direction)) {
	case "", "ASC":
	case "DESC":
		s.Desc = true
	default:
		return Sort{}, apierrors.Validationf("sort direction must be ASC or DESC, got %q", direction)
	}
	return s, nil
}

func (s Sort) String() string {
	if s.Desc {
		return string(s.Field) + ",DESC"
	}
	return string(s.Field) + ",ASC"
}

// Filter selects and pages users
type Filter struct {
	Roles      []rbac.Role
	DistrictID string
	Status     auth.AccountStatus
	Sort       Sort
	Page       int
	Limit      int
}

// Normalize fills defaults and rejects out of range paging
func (f Filter) Normalize() (Filter, error) {
	if f.Sort.Field == "" {
		f.Sort = DefaultSort
	}
	if f.Page == 0 {
		f.Page = DefaultPage
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Page < 1 {
		return f, apierrors.Validation("page must be at least 1")
	}
	if f.Limit < 1 || f.Limit > MaxLimit {
		return f, apierrors.Validationf("limit must be between 1 and %d", MaxLimit)
	}
	// Offset must not overflow
	if f.Page > math.MaxInt/f.Limit {
		return f, apierrors.Validationf("page must be at most %d for limit %d", math.MaxInt/f.Limit, f.Limit)
	}
	for _, role := range f.Roles {
		if !role.Valid() {
			return f, apierrors.Validationf("unknown role %q", role)
		}
	}
	return f, nil
}

// Offset is the number of matches skipped before the page
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches reports whether the user passes the filter, ignoring paging
func (f Filter) Matches(u *User) bool {
	if f.DistrictID != "" && u.DistrictID != f.DistrictID {
		return false
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	if len(f.Roles) == 0 {
		return true
	}
	for _, role := range f.Roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// SortUsers orders users in place. Text fields compare case-insensitively
// and ties fall back to UserFriendlyID ascending.
func SortUsers(list []*User, s Sort) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		c := compareBy(a, b, s.Field)
		if c == 0 {
			return a.UserFriendlyID < b.UserFriendlyID
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareBy(a, b *User, field SortField) int {
	switch field {
	case SortFirstName:
		return strings.Compare(strings.ToLower(a.Name.First), strings.ToLower(b.Name.First))
	case SortLastName:
		return strings.Compare(strings.ToLower(a.Name.Last), strings.ToLower(b.Name.Last))
	case SortEmail:
		return strings.Compare(strings.ToLower(a.Email), strings.ToLower(b.Email))
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	default:
		switch {
		case a.UserFriendlyID < b.UserFriendlyID:
			return -1
		case a.UserFriendlyID > b.UserFriendlyID:
			return 1
		}
		return 0
	}
}

// Page is one slice of a listing
type Page struct {
	Items []interface{} `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}
