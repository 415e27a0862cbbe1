package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	registration "github.com/goliatone/go-registration"
	"github.com/google/uuid"
)

// MemoryStore is an in-process AccountRepository. It keeps copies of every
// record so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]registration.Account
	profiles map[string]*registration.RegistrationProfile
}

var _ registration.AccountRepository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]registration.Account),
		profiles: make(map[string]*registration.RegistrationProfile),
	}
}

func (s *MemoryStore) CreateAccountAndProfile(ctx context.Context, account *registration.Account, profile *registration.RegistrationProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findAccount(account.Email, account.Username); ok {
		if equalFold(existing.Email, account.Email) {
			return registration.ErrDuplicateEmail
		}
		return registration.ErrDuplicateUsername
	}

	if _, ok := s.profiles[profile.ActivationKey]; ok {
		return duplicateFor("activation_key")
	}

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	if profile.Version == 0 {
		profile.Version = 1
	}
	profile.AccountID = account.ID

	s.accounts[account.ID] = *account
	stored := profile.Clone()
	stored.Account = nil
	s.profiles[profile.ActivationKey] = stored

	return nil
}

func (s *MemoryStore) FindProfileByToken(ctx context.Context, token string) (*registration.RegistrationProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.profiles[token]
	if !ok {
		return nil, registration.ErrRecordNotFound
	}
	return s.hydrate(stored), nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile *registration.RegistrationProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.profiles[profile.ActivationKey]
	if !ok {
		return registration.ErrRecordNotFound
	}

	if stored.Version != profile.Version {
		return registration.ErrConcurrentModification
	}

	profile.Version++
	next := profile.Clone()
	next.Account = nil
	s.profiles[profile.ActivationKey] = next

	if profile.Account != nil {
		if acc, ok := s.accounts[profile.AccountID]; ok {
			acc.Active = profile.Account.Active
			acc.UpdatedAt = profile.Account.UpdatedAt
			s.accounts[profile.AccountID] = acc
		}
	}

	return nil
}

func (s *MemoryStore) FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*registration.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.findAccount(email, username)
	if !ok {
		return nil, registration.ErrRecordNotFound
	}
	return &acc, nil
}

func (s *MemoryStore) ListProfiles(ctx context.Context, filter registration.ProfileFilter) ([]*registration.RegistrationProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registration.RegistrationProfile, 0)
	for _, p := range s.profiles {
		if !matches(filter.Verified, p.Verified) ||
			!matches(filter.Activated, p.Activated) ||
			!matches(filter.Moderated, p.Moderated) {
			continue
		}
		out = append(out, s.hydrate(p))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PurgeExpired removes never activated accounts registered at or before
// cutoff.
func (s *MemoryStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, p := range s.profiles {
		if p.Activated || p.CreatedAt.After(cutoff) {
			continue
		}
		delete(s.profiles, key)
		delete(s.accounts, p.AccountID)
		removed++
	}
	return removed, nil
}

func (s *MemoryStore) findAccount(email, username string) (registration.Account, bool) {
	for _, acc := range s.accounts {
		if email != "" && equalFold(acc.Email, email) {
			return acc, true
		}
		if username != "" && acc.Username == username {
			return acc, true
		}
	}
	return registration.Account{}, false
}

func (s *MemoryStore) hydrate(stored *registration.RegistrationProfile) *registration.RegistrationProfile {
	p := stored.Clone()
	if acc, ok := s.accounts[p.AccountID]; ok {
		p.Account = &acc
	}
	return p
}

func matches(want *bool, got bool) bool {
	return want == nil || *want == got
}
