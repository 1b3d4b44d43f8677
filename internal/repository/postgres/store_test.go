//go:build db

package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/hop/internal/apperr"
	"github.com/lalith-99/hop/internal/db"
	"github.com/lalith-99/hop/internal/models"
	"github.com/lalith-99/hop/internal/repository"
	"github.com/lalith-99/hop/internal/space"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("HOP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("HOP_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.AutoMigrate(ctx, pool, zap.NewNop()))
	return NewStore(pool)
}

func createUser(t *testing.T, s repository.Store, name string) models.User {
	t.Helper()
	u := models.User{ID: uuid.New(), DisplayName: name}
	require.NoError(t, s.Users().Create(context.Background(), &u))
	t.Cleanup(func() { _ = s.Users().Delete(context.Background(), u.ID) })
	return u
}

func TestFriendPairIsSymmetric(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := createUser(t, s, "a")
	b := createUser(t, s, "b")

	require.NoError(t, s.Friends().Add(ctx, a.ID, b.ID))
	ok, err := s.Friends().Exists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.Friends().Add(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	require.NoError(t, s.Friends().Remove(ctx, b.ID, a.ID))
	ids, err := s.Friends().ListIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createUser(t, s, "owner")
	sp := models.Space{ID: uuid.New(), Name: "lab", Theme: models.ThemeDefault, PasswordHash: "x", URL: "https://lab.fly.dev"}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Spaces().Create(ctx, &sp))
		require.NoError(t, tx.Members().Add(ctx, &models.SpaceMember{SpaceID: sp.ID, UserID: owner.ID, Role: models.RoleOwner}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Spaces().GetByID(ctx, sp.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSpaceRequestUniquePerInvitee(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	owner := createUser(t, s, "owner")
	guest := createUser(t, s, "guest")
	sp := models.Space{ID: uuid.New(), Name: "lab", Theme: models.ThemeDefault, PasswordHash: "x", URL: "u"}
	require.NoError(t, s.Spaces().Create(ctx, &sp))
	t.Cleanup(func() { _ = s.Spaces().Delete(ctx, sp.ID) })

	first := models.SpaceRequest{ID: uuid.New(), SpaceID: sp.ID, InviterID: owner.ID, InvitedID: guest.ID, Role: models.RoleMember}
	require.NoError(t, s.Requests().Create(ctx, &first))

	second := first
	second.ID = uuid.New()
	assert.ErrorIs(t, s.Requests().Create(ctx, &second), repository.ErrDuplicate)

	invites, err := s.Requests().ListForInvitee(ctx, guest.ID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, "lab", invites[0].SpaceName)
}

func TestStatusUpsertAndClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := createUser(t, s, "u")
	sp := models.Space{ID: uuid.New(), Name: "lab", Theme: models.ThemeDefault, PasswordHash: "x", URL: "u"}
	require.NoError(t, s.Spaces().Create(ctx, &sp))
	t.Cleanup(func() { _ = s.Spaces().Delete(ctx, sp.ID) })

	require.NoError(t, s.Statuses().Upsert(ctx, u.ID, "conn-1", nil))
	ok, err := s.Statuses().SetSpace(ctx, u.ID, "conn-1", &sp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.Statuses().Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, st.SpaceID)
	assert.Equal(t, sp.ID, *st.SpaceID)
	assert.Equal(t, "conn-1", st.ConnectionID)

	require.NoError(t, s.Statuses().ClearSpace(ctx, sp.ID))
	list, err := s.Statuses().ListFor(ctx, []uuid.UUID{u.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].SpaceID)
}

func TestConcurrentOwnerExitsKeepOneOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	spaces := space.NewService(s, nil, nil, zap.NewNop())

	for i := 0; i < 10; i++ {
		a := createUser(t, s, "a")
		b := createUser(t, s, "b")
		sp := models.Space{ID: uuid.New(), Name: "lab", Theme: models.ThemeDefault, PasswordHash: "x", URL: "u"}
		require.NoError(t, s.Spaces().Create(ctx, &sp))
		t.Cleanup(func() { _ = s.Spaces().Delete(ctx, sp.ID) })
		for _, u := range []models.User{a, b} {
			require.NoError(t, s.Members().Add(ctx, &models.SpaceMember{SpaceID: sp.ID, UserID: u.ID, Role: models.RoleOwner}))
		}

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for n, u := range []models.User{a, b} {
			wg.Add(1)
			go func(n int, id uuid.UUID) {
				defer wg.Done()
				errs[n] = spaces.RemoveMember(ctx, sp.ID, id, id)
			}(n, u.ID)
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
				assert.True(t, apperr.Is(err, apperr.CodeConflict), "unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, failed)

		owners, err := s.Members().CountOwners(ctx, sp.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, owners)
	}
}
