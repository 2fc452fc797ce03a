// Package memory is an in-process users.Store and storage.UnitOfWork.
//
// State is copy-on-write: a unit of work clones the published state, works
// on the clone and publishes it on commit. Writers are serialized for the
// whole unit of work; readers outside a unit of work never block on writers
// and always see the last committed state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

type state struct {
	users      map[string]*users.User
	emails     map[string]string
	districts  map[string]*users.District
	lastUserID int64
}

func newState() *state {
	return &state{
		users:     make(map[string]*users.User),
		emails:    make(map[string]string),
		districts: make(map[string]*users.District),
	}
}

// clone copies the maps. Entries are shared, so writers replace entries
// instead of mutating them.
func (s *state) clone() *state {
	c := &state{
		users:      make(map[string]*users.User, len(s.users)),
		emails:     make(map[string]string, len(s.emails)),
		districts:  make(map[string]*users.District, len(s.districts)),
		lastUserID: s.lastUserID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.districts {
		c.districts[k] = v
	}
	return c
}

type txKey struct{}

type tx struct {
	store *Store
	state *state
}

// Store is the in-memory store
type Store struct {
	writer sync.Mutex

	mu      sync.RWMutex
	current *state
}

var (
	_ users.Store        = (*Store)(nil)
	_ storage.UnitOfWork = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{current: newState()}
}

// RunInTx runs fn against a private copy of the state and publishes it when
// fn succeeds. Nested calls join the outer unit of work.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return fn(ctx)
	}

	s.writer.Lock()
	locked := true
	defer func() {
		if locked {
			s.writer.Unlock()
		}
	}()

	work := s.snapshot().clone()
	hookCtx, hooks := storage.WithAfterCommit(ctx)
	if err := fn(context.WithValue(hookCtx, txKey{}, &tx{store: s, state: work})); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = work
	s.mu.Unlock()
	s.writer.Unlock()
	locked = false

	hooks.Run(ctx)
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) read(ctx context.Context) *state {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return t.state
	}
	return s.snapshot()
}

// write applies fn inside the caller's unit of work, or as its own
// single-operation unit of work
func (s *Store) write(ctx context.Context, fn func(*state) error) error {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.store == s {
		return fn(t.state)
	}
	return s.RunInTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*tx).state)
	})
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) Create(ctx context.Context, user *users.User) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.users[user.ID]; exists {
			return fmt.Errorf("user %s already exists", user.ID)
		}
		if _, taken := st.emails[emailKey(user.Email)]; taken {
			return users.ErrEmailTaken
		}
		st.lastUserID++
		user.UserFriendlyID = st.lastUserID
		st.users[user.ID] = user.Clone()
		st.emails[emailKey(user.Email)] = user.ID
		return nil
	})
}

func (s *Store) Get(ctx context.Context, id string) (*users.User, error) {
	u, ok := s.read(ctx).users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	st := s.read(ctx)
	id, ok := st.emails[emailKey(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return st.users[id].Clone(), nil
}

func (s *Store) Update(ctx context.Context, user *users.User) error {
	return s.write(ctx, func(st *state) error {
		old, ok := st.users[user.ID]
		if !ok {
			return users.ErrNotFound
		}
		newKey := emailKey(user.Email)
		if owner, taken := st.emails[newKey]; taken && owner != user.ID {
			return users.ErrEmailTaken
		}
		delete(st.emails, emailKey(old.Email))
		st.emails[newKey] = user.ID

		updated := user.Clone()
		updated.UserFriendlyID = old.UserFriendlyID
		updated.CreatedAt = old.CreatedAt
		st.users[user.ID] = updated
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.write(ctx, func(st *state) error {
		old, ok := st.users[id]
		if !ok {
			return users.ErrNotFound
		}
		delete(st.emails, emailKey(old.Email))
		delete(st.users, id)
		return nil
	})
}

func (s *Store) List(ctx context.Context, filter users.Filter) ([]*users.User, int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, 0, err
	}

	var matched []*users.User
	for _, u := range s.read(ctx).users {
		if filter.Matches(u) {
			matched = append(matched, u)
		}
	}
	users.SortUsers(matched, filter.Sort)

	total := len(matched)
	start := filter.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}

	page := make([]*users.User, 0, end-start)
	for _, u := range matched[start:end] {
		page = append(page, u.Clone())
	}
	return page, total, nil
}

func (s *Store) CreateDistrict(ctx context.Context, district *users.District) error {
	return s.write(ctx, func(st *state) error {
		if _, exists := st.districts[district.ID]; exists {
			return users.ErrDistrictExists
		}
		d := *district
		st.districts[district.ID] = &d
		return nil
	})
}

func (s *Store) DistrictExists(ctx context.Context, id string) (bool, error) {
	_, ok := s.read(ctx).districts[id]
	return ok, nil
}

func (s *Store) ListDistricts(ctx context.Context) ([]*users.District, error) {
	st := s.read(ctx)
	out := make([]*users.District, 0, len(st.districts))
	for _, d := range st.districts {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountByRole(ctx context.Context) ([]users.RoleCount, error) {
	type key struct {
		role   rbac.Role
		status auth.AccountStatus
	}
	counts := make(map[key]int)
	for _, u := range s.read(ctx).users {
		counts[key{u.Role, u.Status}]++
	}

	out := make([]users.RoleCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, users.RoleCount{Role: k.role, Status: k.status, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role.Outranks(out[j].Role) || (out[i].Role.Rank() == out[j].Role.Rank() && out[i].Role < out[j].Role)
		}
		return out[i].Status < out[j].Status
	})
	return out, nil
}

// Len returns the number of stored users
func (s *Store) Len() int {
	return len(s.snapshot().users)
}
