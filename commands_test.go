package registration_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAccountHandler(t *testing.T) {
	h := newHarness(t, openPolicy())
	handler := registration.NewRegisterAccountHandler(h.engine)

	var got *registration.RegistrationResult
	err := handler.Execute(context.Background(), registration.RegisterAccountMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: testPassword,
		OnResult: func(res *registration.RegistrationResult) { got = res },
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Account.Username)
	assert.Equal(t, "account.register", registration.RegisterAccountMessage{}.Type())
}

func TestRegisterAccountHandlerCancelledContext(t *testing.T) {
	h := newHarness(t, openPolicy())
	handler := registration.NewRegisterAccountHandler(h.engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Execute(ctx, registration.RegisterAccountMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryOperation, richErr.Category)
}

func TestRegisterAccountHandlerPassesRichErrors(t *testing.T) {
	h := newHarness(t, &registration.StaticPolicy{Open: false})
	handler := registration.NewRegisterAccountHandler(h.engine)

	err := handler.Execute(context.Background(), registration.RegisterAccountMessage{
		Username: "alice",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	require.ErrorIs(t, err, registration.ErrRegistrationClosed)
}

func TestActivateAndModerateHandlers(t *testing.T) {
	h := newHarness(t, moderatedPolicy())
	ctx := context.Background()
	key := h.register(t, "alice", "alice@example.com").Profile.ActivationKey

	var activation *registration.ActivationResult
	err := registration.NewActivateAccountHandler(h.engine).Execute(ctx, registration.ActivateAccountMessage{
		ActivationKey: key,
		OnResult:      func(res *registration.ActivationResult) { activation = res },
	})
	require.NoError(t, err)
	require.NotNil(t, activation)
	assert.True(t, activation.ModerationPending)

	moderate := registration.NewModerateAccountHandler(h.engine)

	err = moderate.Execute(ctx, registration.ModerateAccountMessage{
		ActivationKey: key,
		Decision:      "later",
		Moderator:     moderator(),
	})
	require.ErrorIs(t, err, registration.ErrInvalidDecision)

	var moderation *registration.ModerationResult
	err = moderate.Execute(ctx, registration.ModerateAccountMessage{
		ActivationKey: key,
		Decision:      "APPROVE",
		Comment:       "welcome",
		Moderator:     moderator(),
		OnResult:      func(res *registration.ModerationResult) { moderation = res },
	})
	require.NoError(t, err)
	require.NotNil(t, moderation)
	assert.True(t, moderation.Applied)
	assert.True(t, moderation.Profile.Activated)
}

func TestActivateHandlerUnknownKey(t *testing.T) {
	h := newHarness(t, openPolicy())

	err := registration.NewActivateAccountHandler(h.engine).Execute(context.Background(), registration.ActivateAccountMessage{
		ActivationKey: "nope",
	})
	require.Error(t, err)
	assert.True(t, registration.IsInvalidToken(err))
}

func TestRegisterAccountMessageValidate(t *testing.T) {
	valid := registration.RegisterAccountMessage{
		Username: " alice ",
		Email:    " alice@EXAMPLE.com ",
		Password: testPassword,
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, " alice ", valid.Username)

	tests := []struct {
		name string
		msg  registration.RegisterAccountMessage
	}{
		{name: "missing email", msg: registration.RegisterAccountMessage{Username: "alice", Password: testPassword}},
		{name: "weak password", msg: registration.RegisterAccountMessage{Email: "alice@example.com", Password: "secret"}},
		{name: "bad username", msg: registration.RegisterAccountMessage{Username: "a b", Email: "alice@example.com", Password: testPassword}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			require.Error(t, err)

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
		})
	}
}

func TestRegisterAccountHandlerValidatesBeforeEngine(t *testing.T) {
	h := newHarness(t, openPolicy())

	err := registration.NewRegisterAccountHandler(h.engine).Execute(context.Background(), registration.RegisterAccountMessage{
		Email:    "alice@example.com",
		Password: "weak",
	})
	require.Error(t, err)

	reg, _, _, _ := h.notifier.counts()
	assert.Zero(t, reg)
	assert.Empty(t, h.events.types())
}

func TestActivateAccountMessageValidate(t *testing.T) {
	assert.NoError(t, registration.ActivateAccountMessage{ActivationKey: "abc"}.Validate())
	assert.ErrorIs(t, registration.ActivateAccountMessage{}.Validate(), registration.ErrActivationKeyRequired)
	assert.ErrorIs(t, registration.ActivateAccountMessage{ActivationKey: "  "}.Validate(), registration.ErrActivationKeyRequired)

	h := newHarness(t, openPolicy())
	err := registration.NewActivateAccountHandler(h.engine).Execute(context.Background(), registration.ActivateAccountMessage{})
	require.ErrorIs(t, err, registration.ErrActivationKeyRequired)
}

func TestModerateAccountMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  registration.ModerateAccountMessage
		want error
	}{
		{
			name: "valid",
			msg:  registration.ModerateAccountMessage{ActivationKey: "abc", Decision: "Reject", Moderator: moderator()},
		},
		{
			name: "missing key",
			msg:  registration.ModerateAccountMessage{Decision: "approve", Moderator: moderator()},
			want: registration.ErrActivationKeyRequired,
		},
		{
			name: "unknown decision",
			msg:  registration.ModerateAccountMessage{ActivationKey: "abc", Decision: "maybe", Moderator: moderator()},
			want: registration.ErrInvalidDecision,
		},
		{
			name: "missing moderator",
			msg:  registration.ModerateAccountMessage{ActivationKey: "abc", Decision: "approve"},
			want: registration.ErrModeratorRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
