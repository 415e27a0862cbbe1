package registration_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	registration "github.com/goliatone/go-registration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "malformed token", err: registration.ErrMalformedToken, check: registration.IsInvalidToken},
		{name: "unknown token", err: registration.ErrUnknownToken, check: registration.IsInvalidToken},
		{name: "expired", err: registration.ErrTokenExpired, check: registration.IsTokenExpired},
		{name: "duplicate email", err: registration.ErrDuplicateEmail, check: registration.IsDuplicate},
		{name: "duplicate username", err: registration.ErrDuplicateUsername, check: registration.IsDuplicate},
		{name: "conflict", err: registration.ErrConcurrentModification, check: registration.IsConcurrentModification},
		{name: "not found", err: registration.ErrRecordNotFound, check: registration.IsRecordNotFound},
		{name: "wrapped", err: fmt.Errorf("save: %w", registration.ErrConcurrentModification), check: registration.IsConcurrentModification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("boom")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestInvalidTokenErrorsAreIndistinguishable(t *testing.T) {
	var malformed, unknown *goerrors.Error
	require.True(t, goerrors.As(registration.ErrMalformedToken, &malformed))
	require.True(t, goerrors.As(registration.ErrUnknownToken, &unknown))

	assert.Equal(t, malformed.Message, unknown.Message)
	assert.Equal(t, malformed.TextCode, unknown.TextCode)
	assert.Equal(t, malformed.Code, unknown.Code)
	assert.Equal(t, malformed.Category, unknown.Category)
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		err      error
		category goerrors.Category
	}{
		{registration.ErrRegistrationClosed, goerrors.CategoryAuthz},
		{registration.ErrDuplicateEmail, goerrors.CategoryConflict},
		{registration.ErrTokenExpired, goerrors.CategoryValidation},
		{registration.ErrModeratorRequired, goerrors.CategoryAuth},
		{registration.ErrRecordNotFound, goerrors.CategoryNotFound},
	}

	for _, tt := range tests {
		var richErr *goerrors.Error
		require.True(t, goerrors.As(tt.err, &richErr))
		assert.Equal(t, tt.category, richErr.Category, tt.err.Error())
	}
}
