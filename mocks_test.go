package registration_test

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-featuregate/gate"
	registration "github.com/goliatone/go-registration"
	"github.com/stretchr/testify/mock"
)

// MockNotifier implements registration.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendRegistrationEmail(ctx context.Context, profile *registration.RegistrationProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockNotifier) SendModeratorEmail(ctx context.Context, profile *registration.RegistrationProfile, moderators []*registration.Account) error {
	args := m.Called(ctx, profile, moderators)
	return args.Error(0)
}

func (m *MockNotifier) SendAcceptanceEmail(ctx context.Context, profile *registration.RegistrationProfile, rejected bool) error {
	args := m.Called(ctx, profile, rejected)
	return args.Error(0)
}

// MockRepository implements registration.AccountRepository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAccountAndProfile(ctx context.Context, account *registration.Account, profile *registration.RegistrationProfile) error {
	args := m.Called(ctx, account, profile)
	return args.Error(0)
}

func (m *MockRepository) FindProfileByToken(ctx context.Context, token string) (*registration.RegistrationProfile, error) {
	args := m.Called(ctx, token)
	if p, ok := args.Get(0).(*registration.RegistrationProfile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) SaveProfile(ctx context.Context, profile *registration.RegistrationProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockRepository) FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*registration.Account, error) {
	args := m.Called(ctx, email, username)
	if a, ok := args.Get(0).(*registration.Account); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) ListProfiles(ctx context.Context, filter registration.ProfileFilter) ([]*registration.RegistrationProfile, error) {
	args := m.Called(ctx, filter)
	if p, ok := args.Get(0).([]*registration.RegistrationProfile); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

// countingNotifier records deliveries and is safe for concurrent use.
type countingNotifier struct {
	mu           sync.Mutex
	registration int
	moderator    int
	accepted     int
	rejected     int
	err          error
}

func (n *countingNotifier) SendRegistrationEmail(context.Context, *registration.RegistrationProfile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registration++
	return n.err
}

func (n *countingNotifier) SendModeratorEmail(context.Context, *registration.RegistrationProfile, []*registration.Account) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.moderator++
	return n.err
}

func (n *countingNotifier) SendAcceptanceEmail(_ context.Context, _ *registration.RegistrationProfile, rejected bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rejected {
		n.rejected++
	} else {
		n.accepted++
	}
	return n.err
}

func (n *countingNotifier) counts() (registrationCount, moderatorCount, acceptedCount, rejectedCount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registration, n.moderator, n.accepted, n.rejected
}

// eventRecorder collects lifecycle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []registration.LifecycleEvent
	err    error
}

func (r *eventRecorder) Record(_ context.Context, event registration.LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *eventRecorder) types() []registration.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registration.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// captureLogger keeps warn messages.
type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Info(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}
func (l *captureLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

// plainHasher skips bcrypt to keep tests fast.
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	return "plain:" + password, nil
}

type stubFeatureGate struct {
	enabled map[string]bool
	calls   []string
	err     error
}

func (s *stubFeatureGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	s.calls = append(s.calls, key)
	if s.err != nil {
		return false, s.err
	}
	if s.enabled == nil {
		return true, nil
	}
	enabled, ok := s.enabled[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
