package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/schoolhouse/pkg/apierrors"
	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/bus"
	"github.com/platinummonkey/schoolhouse/pkg/idp"
	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

// IdentityCache is the subset of the identity cache the service needs.
// Fill must drop the identity when Invalidate ran after generation was read.
type IdentityCache interface {
	Get(ctx context.Context, userID string) (auth.Identity, bool)
	Generation(ctx context.Context) uint64
	Fill(ctx context.Context, identity auth.Identity, generation uint64) bool
	Invalidate(ctx context.Context, userID string)
}

// Service holds the user command and query handlers
type Service struct {
	store             Store
	provider          idp.Provider
	cache             IdentityCache
	policy            *rbac.CreatePolicy
	temporaryPassword string
	now               func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithIdentityCache invalidates cached identities after user mutations commit
func WithIdentityCache(cache IdentityCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithCreatePolicy replaces the default create and manage matrix
func WithCreatePolicy(policy *rbac.CreatePolicy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithTemporaryPassword sets the password new accounts start with.
// Empty lets the identity provider generate one.
func WithTemporaryPassword(password string) Option {
	return func(s *Service) { s.temporaryPassword = password }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the user service
func NewService(store Store, provider idp.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		policy:   rbac.DefaultCreatePolicy(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registrations returns the bus handlers for every user and district message
func (s *Service) Registrations() []bus.Registration {
	return []bus.Registration{
		bus.Command(s.CreateUser),
		bus.Query(s.GetUser),
		bus.Query(s.GetUsers),
		bus.Command(s.UpdateUser),
		bus.Command(s.DeleteUser),
		bus.Command(s.SelectDistrict),
		bus.Command(s.SetPassword),
		bus.Command(s.ResetPassword),
		bus.Command(s.CreateDistrict),
		bus.Query(s.ListDistricts),
	}
}

// CreateUser stores a pending user and creates its login. An identity
// provider failure is returned as is so the unit of work rolls back.
func (s *Service) CreateUser(ctx context.Context, cmd CreateUser) (string, error) {
	if cmd.ID == "" {
		return "", apierrors.Validation("user id is required")
	}
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return "", err
	}
	name, err := normalizeName(cmd.Name)
	if err != nil {
		return "", err
	}
	if !cmd.Role.Valid() {
		return "", apierrors.Validationf("unknown role %q", cmd.Role)
	}
	if !s.policy.CanCreate(cmd.Caller.Role, cmd.Role) {
		return "", apierrors.Forbiddenf("%s may not create %s", cmd.Caller.Role, cmd.Role)
	}
	if cmd.Caller.DistrictID == "" {
		return "", apierrors.Validation("caller has no active district")
	}
	if err := s.requireDistrict(ctx, cmd.Caller.DistrictID); err != nil {
		return "", err
	}
	if err := s.requireEmailFree(ctx, email, ""); err != nil {
		return "", err
	}

	now := s.now().UTC()
	user := &User{
		ID:         cmd.ID,
		Email:      email,
		Name:       name,
		Role:       cmd.Role,
		Status:     auth.StatusPending,
		DistrictID: cmd.Caller.DistrictID,
		SchoolID:   strings.TrimSpace(cmd.SchoolID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return "", storeError(err)
	}

	err = s.provider.CreateAccount(ctx, idp.Account{
		UserID:            user.ID,
		Email:             user.Email,
		FirstName:         user.Name.First,
		LastName:          user.Name.Last,
		DistrictID:        user.DistrictID,
		TemporaryPassword: s.temporaryPassword,
	})
	if err != nil {
		return "", err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"created_user_id": user.ID,
		"role":            user.Role,
		"district_id":     user.DistrictID,
	}).Info("user created")
	return user.ID, nil
}

// GetUser returns a user of the caller's district, or the caller itself
func (s *Service) GetUser(ctx context.Context, q GetUser) (UserReadModel, error) {
	id := q.UserID
	if id == "" {
		id = q.Caller.UserID
	}
	user, err := s.visibleUser(ctx, id, q.Caller)
	if err != nil {
		return UserReadModel{}, err
	}
	return NewUserReadModel(user), nil
}

// GetUsers lists users of one district
func (s *Service) GetUsers(ctx context.Context, q GetUsers) (Page, error) {
	filter, err := q.Filter.Normalize()
	if err != nil {
		return Page{}, err
	}

	switch {
	case filter.DistrictID == "":
		filter.DistrictID = q.Caller.DistrictID
	case filter.DistrictID != q.Caller.DistrictID:
		if !q.Caller.IsSA() {
			return Page{}, apierrors.Forbidden("users can only be listed in the active district")
		}
		if err := s.requireDistrict(ctx, filter.DistrictID); err != nil {
			return Page{}, err
		}
	}

	list, total, err := s.store.List(ctx, filter)
	if err != nil {
		return Page{}, storeError(err)
	}

	page := Page{
		Items: make([]interface{}, 0, len(list)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for _, u := range list {
		page.Items = append(page.Items, NewListItem(u))
	}
	return page, nil
}

// UpdateUser applies a partial update. Callers may change their own name
// and email; anything else requires the manage rule.
func (s *Service) UpdateUser(ctx context.Context, cmd UpdateUser) (bus.None, error) {
	user, err := s.visibleUser(ctx, cmd.UserID, cmd.Caller)
	if err != nil {
		return bus.None{}, err
	}

	if user.ID == cmd.Caller.UserID {
		if cmd.Role != nil || cmd.SchoolID != nil || cmd.Status != nil {
			return bus.None{}, apierrors.Forbidden("users may only change their own name and email")
		}
	} else if !s.policy.CanManage(cmd.Caller.Role, user.Role) {
		return bus.None{}, apierrors.Forbiddenf("%s may not manage %s", cmd.Caller.Role, user.Role)
	}

	if cmd.Name != nil {
		name, err := normalizeName(*cmd.Name)
		if err != nil {
			return bus.None{}, err
		}
		user.Name = name
	}
	if cmd.Email != nil {
		email, err := normalizeEmail(*cmd.Email)
		if err != nil {
			return bus.None{}, err
		}
		if err := s.requireEmailFree(ctx, email, user.ID); err != nil {
			return bus.None{}, err
		}
		user.Email = email
	}
	if cmd.Role != nil {
		if !cmd.Role.Valid() {
			return bus.None{}, apierrors.Validationf("unknown role %q", *cmd.Role)
		}
		if !s.policy.CanManage(cmd.Caller.Role, *cmd.Role) {
			return bus.None{}, apierrors.Forbiddenf("%s may not assign %s", cmd.Caller.Role, *cmd.Role)
		}
		user.Role = *cmd.Role
	}
	if cmd.SchoolID != nil {
		user.SchoolID = strings.TrimSpace(*cmd.SchoolID)
	}
	if cmd.Status != nil {
		if _, err := auth.ParseAccountStatus(string(*cmd.Status)); err != nil {
			return bus.None{}, apierrors.Validation(err.Error())
		}
		user.Status = *cmd.Status
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return bus.None{}, storeError(err)
	}
	s.invalidate(ctx, user.ID)
	return bus.None{}, nil
}

// DeleteUser removes another user of the caller's district
func (s *Service) DeleteUser(ctx context.Context, cmd DeleteUser) (bus.None, error) {
	if cmd.UserID == cmd.Caller.UserID {
		return bus.None{}, apierrors.Forbidden("users cannot delete themselves")
	}
	user, err := s.visibleUser(ctx, cmd.UserID, cmd.Caller)
	if err != nil {
		return bus.None{}, err
	}
	if !s.policy.CanManage(cmd.Caller.Role, user.Role) {
		return bus.None{}, apierrors.Forbiddenf("%s may not manage %s", cmd.Caller.Role, user.Role)
	}

	if err := s.store.Delete(ctx, user.ID); err != nil {
		return bus.None{}, storeError(err)
	}
	s.invalidate(ctx, user.ID)

	observability.FromContext(ctx).WithField("deleted_user_id", user.ID).Info("user deleted")
	return bus.None{}, nil
}

// SelectDistrict changes the caller's active district. The cached identity
// is dropped after commit so the next request authenticates into the new
// district.
func (s *Service) SelectDistrict(ctx context.Context, cmd SelectDistrict) (bus.None, error) {
	districtID := strings.TrimSpace(cmd.DistrictID)
	if districtID == "" {
		return bus.None{}, apierrors.Validation("districtId is required")
	}
	if err := s.requireDistrict(ctx, districtID); err != nil {
		return bus.None{}, err
	}

	user, err := s.store.Get(ctx, cmd.Caller.UserID)
	if err != nil {
		return bus.None{}, storeError(err)
	}
	user.DistrictID = districtID
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return bus.None{}, storeError(err)
	}
	s.invalidate(ctx, user.ID)
	return bus.None{}, nil
}

// SetPassword sets the permanent password of a pending user and activates it
func (s *Service) SetPassword(ctx context.Context, cmd SetPassword) (bus.None, error) {
	if err := ValidatePassword(cmd.Password); err != nil {
		return bus.None{}, err
	}
	user, err := s.store.Get(ctx, cmd.UserID)
	if err != nil {
		return bus.None{}, storeError(err)
	}
	if user.Status != auth.StatusPending {
		return bus.None{}, apierrors.Conflict("password has already been set")
	}

	if err := s.provider.SetPassword(ctx, user.ID, cmd.Password); err != nil {
		return bus.None{}, err
	}

	user.Status = auth.StatusActive
	user.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, user); err != nil {
		return bus.None{}, storeError(err)
	}
	s.invalidate(ctx, user.ID)
	return bus.None{}, nil
}

// ResetPassword confirms a forgotten password with the identity provider
func (s *Service) ResetPassword(ctx context.Context, cmd ResetPassword) (bus.None, error) {
	if strings.TrimSpace(cmd.Username) == "" {
		return bus.None{}, apierrors.Validation("username is required")
	}
	if strings.TrimSpace(cmd.Code) == "" {
		return bus.None{}, apierrors.Validation("code is required")
	}
	if err := ValidatePassword(cmd.Password); err != nil {
		return bus.None{}, err
	}
	if err := s.provider.ConfirmForgotPassword(ctx, cmd.Username, cmd.Code, cmd.Password); err != nil {
		return bus.None{}, err
	}
	return bus.None{}, nil
}

// CreateDistrict stores a new district
func (s *Service) CreateDistrict(ctx context.Context, cmd CreateDistrict) (string, error) {
	if cmd.ID == "" {
		return "", apierrors.Validation("district id is required")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return "", apierrors.Validation("district name is required")
	}

	district := &District{ID: cmd.ID, Name: name, CreatedAt: s.now().UTC()}
	if err := s.store.CreateDistrict(ctx, district); err != nil {
		return "", storeError(err)
	}
	return district.ID, nil
}

// ListDistricts returns every district ordered by name
func (s *Service) ListDistricts(ctx context.Context, _ ListDistricts) ([]*District, error) {
	districts, err := s.store.ListDistricts(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	if districts == nil {
		districts = []*District{}
	}
	return districts, nil
}

// visibleUser loads a user the caller may see: itself or a member of its
// active district. Anything else reads as missing.
func (s *Service) visibleUser(ctx context.Context, id string, caller auth.Identity) (*User, error) {
	user, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if user.ID != caller.UserID && user.DistrictID != caller.DistrictID {
		return nil, apierrors.NotFoundf("user %s not found", id)
	}
	return user, nil
}

func (s *Service) requireDistrict(ctx context.Context, id string) error {
	exists, err := s.store.DistrictExists(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if !exists {
		return apierrors.NotFoundf("district %s not found", id)
	}
	return nil
}

func (s *Service) requireEmailFree(ctx context.Context, email, ownerID string) error {
	existing, err := s.store.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return storeError(err)
	case existing.ID != ownerID:
		return apierrors.Conflict("email already in use")
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	storage.AfterCommit(ctx, func(ctx context.Context) {
		s.cache.Invalidate(ctx, userID)
	})
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if email == "" {
		return "", apierrors.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apierrors.Validationf("invalid email %q", raw)
	}
	return email, nil
}

func normalizeName(name Name) (Name, error) {
	name.First = strings.TrimSpace(name.First)
	name.Last = strings.TrimSpace(name.Last)
	if name.First == "" || name.Last == "" {
		return Name{}, apierrors.Validation("first and last name are required")
	}
	return name, nil
}

// storeError translates store sentinels into API errors
func storeError(err error) error {
	var apiErr *apierrors.Error
	switch {
	case errors.As(err, &apiErr):
		return err
	case errors.Is(err, ErrNotFound):
		return apierrors.Wrap(apierrors.KindNotFound, "user not found", err)
	case errors.Is(err, ErrDistrictNotFound):
		return apierrors.Wrap(apierrors.KindNotFound, "district not found", err)
	case errors.Is(err, ErrEmailTaken):
		return apierrors.Wrap(apierrors.KindConflict, "email already in use", err)
	case errors.Is(err, ErrDistrictExists):
		return apierrors.Wrap(apierrors.KindConflict, "district already exists", err)
	default:
		return apierrors.Internal("storage failure", err)
	}
}
