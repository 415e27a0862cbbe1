package registration

import (
	"context"
	"fmt"
	"strings"
)

// Logger is the logging contract used across the package. It matches the
// method set of glog.Logger so a go-logger instance can be passed directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AccountRepository persists accounts and registration profiles.
//
// CreateAccountAndProfile must persist both records or neither.
// SaveProfile must persist the profile and its account together and return
// ErrConcurrentModification when profile.Version no longer matches storage.
// FindAccountByEmailOrUsername ignores empty arguments and matches email
// case-insensitively. Lookups that find nothing return ErrRecordNotFound.
type AccountRepository interface {
	CreateAccountAndProfile(ctx context.Context, account *Account, profile *RegistrationProfile) error
	FindProfileByToken(ctx context.Context, token string) (*RegistrationProfile, error)
	SaveProfile(ctx context.Context, profile *RegistrationProfile) error
	FindAccountByEmailOrUsername(ctx context.Context, email, username string) (*Account, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]*RegistrationProfile, error)
}

// PolicyProvider supplies registration settings per engine instance.
type PolicyProvider interface {
	RegistrationAllowed(ctx context.Context) bool
	ModerationRequired(ctx context.Context, profile *RegistrationProfile) bool
	ActivationWindowDays(ctx context.Context) int
	Moderators(ctx context.Context) ([]*Account, error)
}

// Notifier delivers registration notices. Delivery failures never undo a
// committed transition.
type Notifier interface {
	SendRegistrationEmail(ctx context.Context, profile *RegistrationProfile) error
	SendModeratorEmail(ctx context.Context, profile *RegistrationProfile, moderators []*Account) error
	SendAcceptanceEmail(ctx context.Context, profile *RegistrationProfile, rejected bool) error
}

// PasswordHasher turns a clear text password into an opaque credential reference.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// TokenLocker serializes work on a single activation key across processes.
type TokenLocker interface {
	Lock(ctx context.Context, token string) (unlock func(), err error)
}

type noopNotifier struct{}

func (noopNotifier) SendRegistrationEmail(context.Context, *RegistrationProfile) error {
	return nil
}

func (noopNotifier) SendModeratorEmail(context.Context, *RegistrationProfile, []*Account) error {
	return nil
}

func (noopNotifier) SendAcceptanceEmail(context.Context, *RegistrationProfile, bool) error {
	return nil
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) { d.print("ERR", msg, args...) }
func (d defLogger) Warn(msg string, args ...any)  { d.print("WRN", msg, args...) }
func (d defLogger) Info(msg string, args ...any)  { d.print("INF", msg, args...) }
func (d defLogger) Debug(msg string, args ...any) { d.print("DBG", msg, args...) }

func (d defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[" + level + "] REGISTRATION " + msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	fmt.Println(b.String())
}
