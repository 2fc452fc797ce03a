package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/auth"
	"github.com/platinummonkey/schoolhouse/pkg/rbac"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
	"github.com/platinummonkey/schoolhouse/pkg/users"
)

func newUser(id, email string, role rbac.Role) *users.User {
	return &users.User{
		ID:         id,
		Email:      email,
		Name:       users.Name{First: "F" + id, Last: "L" + id},
		Role:       role,
		Status:     auth.StatusActive,
		DistrictID: "d1",
		CreatedAt:  time.Date(2021, 6, 19, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_CreateAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := newUser("a", "a@example.com", rbac.RoleStudent)
	b := newUser("b", "b@example.com", rbac.RoleStudent)
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))

	assert.Equal(t, int64(1), a.UserFriendlyID)
	assert.Equal(t, int64(2), b.UserFriendlyID)
	assert.Equal(t, 2, s.Len())
}

func TestStore_EmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, newUser("a", "Same@Example.com", rbac.RoleStudent)))

	err := s.Create(ctx, newUser("b", "same@example.com", rbac.RoleStudent))
	assert.ErrorIs(t, err, users.ErrEmailTaken)

	got, err := s.GetByEmail(ctx, "SAME@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestStore_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent)))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	got.Email = "changed@example.com"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", again.Email)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent)))
	require.NoError(t, s.Create(ctx, newUser("b", "b@example.com", rbac.RoleStudent)))

	u, err := s.Get(ctx, "a")
	require.NoError(t, err)
	u.Email = "b@example.com"
	assert.ErrorIs(t, s.Update(ctx, u), users.ErrEmailTaken)

	u.Email = "new@example.com"
	u.UserFriendlyID = 99
	require.NoError(t, s.Update(ctx, u))
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UserFriendlyID)

	_, err = s.GetByEmail(ctx, "a@example.com")
	assert.ErrorIs(t, err, users.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, users.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), users.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, u), users.ErrNotFound)
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	var hookRan bool
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent)))
		_, err := s.Get(ctx, "a")
		require.NoError(t, err)
		storage.AfterCommit(ctx, func(context.Context) { hookRan = true })
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, hookRan)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestStore_RunInTxCommitsAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	s := New()

	var visible bool
	err := s.RunInTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Create(txCtx, newUser("a", "a@example.com", rbac.RoleStudent)))
		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, users.ErrNotFound, "uncommitted writes are private")

		storage.AfterCommit(txCtx, func(context.Context) {
			_, err := s.Get(context.Background(), "a")
			visible = err == nil
		})
		return nil
	})

	require.NoError(t, err)
	assert.True(t, visible)
}

func TestStore_RunInTxPanicDiscardsWork(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.Panics(t, func() {
		_ = s.RunInTx(ctx, func(ctx context.Context) error {
			_ = s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent))
			panic("handler bug")
		})
	})

	assert.Equal(t, 0, s.Len())
	require.NoError(t, s.Create(ctx, newUser("b", "b@example.com", rbac.RoleStudent)), "writer lock released")
}

func TestStore_NestedRunInTxJoins(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			return s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent))
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStore_ConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i)
			assert.NoError(t, s.Create(ctx, newUser(id, id+"@example.com", rbac.RoleStudent)))
		}(i)
	}
	wg.Wait()

	list, total, err := s.List(ctx, users.Filter{Limit: 100})
	require.NoError(t, err)
	assert.Equal(t, 50, total)
	for i, u := range list {
		assert.Equal(t, int64(i+1), u.UserFriendlyID)
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := New()

	teacher := newUser("t", "t@example.com", rbac.RoleClassTeacher)
	teacher.Name = users.Name{First: "Zed", Last: "Alpha"}
	admin := newUser("a", "a@example.com", rbac.RoleDistrictAdministrator)
	admin.Name = users.Name{First: "Amy", Last: "beta"}
	other := newUser("o", "o@example.com", rbac.RoleClassTeacher)
	other.DistrictID = "d2"
	pending := newUser("p", "p@example.com", rbac.RoleClassTeacher)
	pending.Status = auth.StatusPending
	pending.Name = users.Name{First: "Pat", Last: "Alpha"}

	for _, u := range []*users.User{teacher, admin, other, pending} {
		require.NoError(t, s.Create(ctx, u))
	}

	t.Run("by role and district", func(t *testing.T) {
		list, total, err := s.List(ctx, users.Filter{Roles: []rbac.Role{rbac.RoleClassTeacher}, DistrictID: "d1"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Equal(t, "t", list[0].ID)
		assert.Equal(t, "p", list[1].ID)
	})

	t.Run("by status", func(t *testing.T) {
		list, total, err := s.List(ctx, users.Filter{Status: auth.StatusPending})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "p", list[0].ID)
	})

	t.Run("sorted by last name with friendly id tiebreak", func(t *testing.T) {
		list, _, err := s.List(ctx, users.Filter{DistrictID: "d1", Sort: users.Sort{Field: users.SortLastName}})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"t", "p", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("descending", func(t *testing.T) {
		list, _, err := s.List(ctx, users.Filter{DistrictID: "d1", Sort: users.Sort{Field: users.SortFirstName, Desc: true}})
		require.NoError(t, err)
		assert.Equal(t, "t", list[0].ID)
	})

	t.Run("paging", func(t *testing.T) {
		list, total, err := s.List(ctx, users.Filter{Page: 2, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		require.Len(t, list, 1)
		assert.Equal(t, "p", list[0].ID)

		list, total, err = s.List(ctx, users.Filter{Page: 5, Limit: 3})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, list)
	})

	t.Run("page at the offset limit", func(t *testing.T) {
		list, total, err := s.List(ctx, users.Filter{Page: math.MaxInt / 100, Limit: 100})
		require.NoError(t, err)
		assert.Equal(t, 4, total)
		assert.Empty(t, list)

		_, _, err = s.List(ctx, users.Filter{Page: math.MaxInt, Limit: 100})
		assert.Error(t, err)
	})
}

func TestStore_Districts(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateDistrict(ctx, &users.District{ID: "2", Name: "north"}))
	require.NoError(t, s.CreateDistrict(ctx, &users.District{ID: "1", Name: "east"}))
	assert.ErrorIs(t, s.CreateDistrict(ctx, &users.District{ID: "1", Name: "dup"}), users.ErrDistrictExists)

	ok, err := s.DistrictExists(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.DistrictExists(ctx, "3")
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := s.ListDistricts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "east", list[0].Name)
	assert.Equal(t, "north", list[1].Name)
}

func TestStore_CountByRole(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Create(ctx, newUser("a", "a@example.com", rbac.RoleStudent)))
	require.NoError(t, s.Create(ctx, newUser("b", "b@example.com", rbac.RoleStudent)))
	pending := newUser("c", "c@example.com", rbac.RoleSA)
	pending.Status = auth.StatusPending
	require.NoError(t, s.Create(ctx, pending))

	counts, err := s.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, []users.RoleCount{
		{Role: rbac.RoleSA, Status: auth.StatusPending, Count: 1},
		{Role: rbac.RoleStudent, Status: auth.StatusActive, Count: 2},
	}, counts)
}
