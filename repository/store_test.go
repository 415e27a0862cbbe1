package repository

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	registration "github.com/goliatone/go-registration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupStore(t *testing.T) (*Store, func()) {
	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, CreateSchema(context.Background(), bunDB))

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	store := NewStore(bunDB)
	store.MustValidate()

	return store, cleanup
}

func newRecords(username, email, key string, createdAt time.Time) (*registration.Account, *registration.RegistrationProfile) {
	account := &registration.Account{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	profile := &registration.RegistrationProfile{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Account:       account,
		ActivationKey: key,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Version:       1,
	}
	return account, profile
}

type repoFactory func(t *testing.T) (registration.AccountRepository, func())

func repoFactories() map[string]repoFactory {
	return map[string]repoFactory{
		"sqlite": func(t *testing.T) (registration.AccountRepository, func()) {
			return setupStore(t)
		},
		"memory": func(t *testing.T) (registration.AccountRepository, func()) {
			return NewMemoryStore(), func() {}
		},
	}
}

func TestRepositoryCreateAndFindByToken(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
			account, profile := newRecords("alice", "alice@example.com", "key-alice", now)

			require.NoError(t, repo.CreateAccountAndProfile(ctx, account, profile))

			found, err := repo.FindProfileByToken(ctx, "key-alice")
			require.NoError(t, err)
			assert.Equal(t, profile.ID, found.ID)
			assert.Equal(t, account.ID, found.AccountID)
			require.NotNil(t, found.Account)
			assert.Equal(t, "alice", found.Account.Username)
			assert.False(t, found.Account.Active)
			assert.False(t, found.Verified)
			assert.False(t, found.Activated)
			assert.Equal(t, int64(1), found.Version)
		})
	}
}

func TestRepositoryUnknownTokenIsNotFound(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			_, err := repo.FindProfileByToken(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, registration.IsRecordNotFound(err))
		})
	}
}

func TestRepositoryRejectsDuplicates(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			now := time.Now().UTC()

			account, profile := newRecords("alice", "alice@example.com", "key-1", now)
			require.NoError(t, repo.CreateAccountAndProfile(ctx, account, profile))

			account, profile = newRecords("other", "ALICE@example.com", "key-2", now)
			err := repo.CreateAccountAndProfile(ctx, account, profile)
			assert.ErrorIs(t, err, registration.ErrDuplicateEmail)

			account, profile = newRecords("alice", "new@example.com", "key-3", now)
			err = repo.CreateAccountAndProfile(ctx, account, profile)
			assert.ErrorIs(t, err, registration.ErrDuplicateUsername)

			_, err = repo.FindProfileByToken(ctx, "key-2")
			assert.True(t, registration.IsRecordNotFound(err))
		})
	}
}

func TestRepositorySaveProfileDetectsStaleVersion(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			now := time.Now().UTC()
			account, profile := newRecords("bob", "bob@example.com", "key-bob", now)
			require.NoError(t, repo.CreateAccountAndProfile(ctx, account, profile))

			first, err := repo.FindProfileByToken(ctx, "key-bob")
			require.NoError(t, err)
			second, err := repo.FindProfileByToken(ctx, "key-bob")
			require.NoError(t, err)

			changed, err := first.Activate(now, 7)
			require.NoError(t, err)
			require.True(t, changed)
			require.NoError(t, repo.SaveProfile(ctx, first))
			assert.Equal(t, int64(2), first.Version)

			_, err = second.Activate(now, 7)
			require.NoError(t, err)
			err = repo.SaveProfile(ctx, second)
			assert.True(t, registration.IsConcurrentModification(err))

			stored, err := repo.FindProfileByToken(ctx, "key-bob")
			require.NoError(t, err)
			assert.True(t, stored.Activated)
			assert.True(t, stored.Account.Active)
			assert.Equal(t, int64(2), stored.Version)
		})
	}
}

func TestRepositoryFindAccountByEmailOrUsername(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			account, profile := newRecords("carol", "carol@example.com", "key-carol", time.Now().UTC())
			require.NoError(t, repo.CreateAccountAndProfile(ctx, account, profile))

			found, err := repo.FindAccountByEmailOrUsername(ctx, "Carol@Example.com", "")
			require.NoError(t, err)
			assert.Equal(t, account.ID, found.ID)

			found, err = repo.FindAccountByEmailOrUsername(ctx, "", "carol")
			require.NoError(t, err)
			assert.Equal(t, account.ID, found.ID)

			_, err = repo.FindAccountByEmailOrUsername(ctx, "nobody@example.com", "nobody")
			assert.True(t, registration.IsRecordNotFound(err))

			_, err = repo.FindAccountByEmailOrUsername(ctx, "", "")
			assert.True(t, registration.IsRecordNotFound(err))
		})
	}
}

func TestRepositoryListProfilesFilters(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			_, pending := newRecords("p1", "p1@example.com", "key-p1", base)
			require.NoError(t, repo.CreateAccountAndProfile(ctx, pending.Account, pending))

			_, verified := newRecords("p2", "p2@example.com", "key-p2", base.Add(time.Hour))
			require.NoError(t, repo.CreateAccountAndProfile(ctx, verified.Account, verified))
			_, err := verified.Verify(base.Add(2*time.Hour), 0)
			require.NoError(t, err)
			require.NoError(t, repo.SaveProfile(ctx, verified))

			unverified, err := repo.ListProfiles(ctx, registration.ProfileFilter{Verified: registration.Bool(false)})
			require.NoError(t, err)
			require.Len(t, unverified, 1)
			assert.Equal(t, "key-p1", unverified[0].ActivationKey)

			unmoderated, err := repo.ListProfiles(ctx, registration.ProfileFilter{
				Verified:  registration.Bool(true),
				Moderated: registration.Bool(false),
			})
			require.NoError(t, err)
			require.Len(t, unmoderated, 1)
			assert.Equal(t, "key-p2", unmoderated[0].ActivationKey)
			require.NotNil(t, unmoderated[0].Account)

			all, err := repo.ListProfiles(ctx, registration.ProfileFilter{Limit: 1})
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "key-p1", all[0].ActivationKey)
		})
	}
}

type purgingRepository interface {
	registration.AccountRepository
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

func TestRepositoryPurgeExpired(t *testing.T) {
	stores := map[string]func(t *testing.T) (purgingRepository, func()){
		"sqlite": func(t *testing.T) (purgingRepository, func()) {
			return setupStore(t)
		},
		"memory": func(t *testing.T) (purgingRepository, func()) {
			return NewMemoryStore(), func() {}
		},
	}

	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			repo, cleanup := factory(t)
			defer cleanup()

			ctx := context.Background()
			old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			cutoff := old.Add(7 * 24 * time.Hour)

			_, stale := newRecords("stale", "stale@example.com", "key-stale", old)
			require.NoError(t, repo.CreateAccountAndProfile(ctx, stale.Account, stale))

			_, active := newRecords("active", "active@example.com", "key-active", old)
			require.NoError(t, repo.CreateAccountAndProfile(ctx, active.Account, active))
			_, err := active.Activate(old.Add(time.Hour), 7)
			require.NoError(t, err)
			require.NoError(t, repo.SaveProfile(ctx, active))

			_, fresh := newRecords("fresh", "fresh@example.com", "key-fresh", cutoff.Add(time.Hour))
			require.NoError(t, repo.CreateAccountAndProfile(ctx, fresh.Account, fresh))

			removed, err := repo.PurgeExpired(ctx, cutoff)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, err = repo.FindProfileByToken(ctx, "key-stale")
			assert.True(t, registration.IsRecordNotFound(err))
			_, err = repo.FindAccountByEmailOrUsername(ctx, "stale@example.com", "")
			assert.True(t, registration.IsRecordNotFound(err))

			_, err = repo.FindProfileByToken(ctx, "key-active")
			assert.NoError(t, err)
			_, err = repo.FindProfileByToken(ctx, "key-fresh")
			assert.NoError(t, err)

			removed, err = repo.PurgeExpired(ctx, cutoff)
			require.NoError(t, err)
			assert.Equal(t, 0, removed)
		})
	}
}

func TestMemoryStoreConcurrentSaveAllowsSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	account, profile := newRecords("dave", "dave@example.com", "key-dave", now)
	require.NoError(t, store.CreateAccountAndProfile(ctx, account, profile))

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		saved  int
		stale  int
		loaded = make([]*registration.RegistrationProfile, workers)
	)

	for i := range loaded {
		p, err := store.FindProfileByToken(ctx, "key-dave")
		require.NoError(t, err)
		loaded[i] = p
	}

	for _, p := range loaded {
		wg.Add(1)
		go func(p *registration.RegistrationProfile) {
			defer wg.Done()
			_, _ = p.Activate(now, 0)
			err := store.SaveProfile(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				saved++
			} else if registration.IsConcurrentModification(err) {
				stale++
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 1, saved)
	assert.Equal(t, workers-1, stale)
}
