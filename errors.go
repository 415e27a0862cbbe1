package registration

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeRegistrationClosed     = "REGISTRATION_CLOSED"
	TextCodeDuplicateEmail         = "DUPLICATE_EMAIL"
	TextCodeDuplicateUsername      = "DUPLICATE_USERNAME"
	TextCodeInvalidActivationKey   = "INVALID_ACTIVATION_KEY"
	TextCodeTokenExpired           = "ACTIVATION_KEY_EXPIRED"
	TextCodeInvalidTransition      = "INVALID_PROFILE_TRANSITION"
	TextCodeModeratorRequired      = "MODERATOR_REQUIRED"
	TextCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	TextCodeRecordNotFound         = "RECORD_NOT_FOUND"
	TextCodeInvalidPassword        = "INVALID_PASSWORD"
	TextCodeInvalidDecision        = "INVALID_MODERATION_DECISION"
	TextCodeActivationKeyRequired  = "ACTIVATION_KEY_REQUIRED"
)

// invalidActivationMessage is shared by malformed and unknown keys so callers
// cannot tell which keys are well formed.
const invalidActivationMessage = "invalid activation link"

// ErrRegistrationClosed is returned when signup is disabled by policy or feature gate.
var ErrRegistrationClosed = goerrors.New("registration is currently closed", goerrors.CategoryAuthz).
	WithTextCode(TextCodeRegistrationClosed).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicateEmail is returned when an account already uses the email address.
var ErrDuplicateEmail = goerrors.New("an account is already registered with this email address", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrDuplicateUsername is returned when an account already uses the username.
var ErrDuplicateUsername = goerrors.New("an account is already registered with this username", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername).
	WithCode(goerrors.CodeConflict)

// ErrMalformedToken is returned when an activation key fails the format pre-check.
var ErrMalformedToken = goerrors.New(invalidActivationMessage, goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidActivationKey).
	WithCode(goerrors.CodeNotFound)

// ErrUnknownToken is returned when no profile matches the activation key.
var ErrUnknownToken = goerrors.New(invalidActivationMessage, goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidActivationKey).
	WithCode(goerrors.CodeNotFound)

// ErrTokenExpired is returned when the activation window elapsed before activation.
var ErrTokenExpired = goerrors.New("activation link has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when a profile cannot move to the requested state.
var ErrInvalidTransition = goerrors.New("invalid registration profile transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrModeratorRequired is returned when Moderate is called without a moderator account.
var ErrModeratorRequired = goerrors.New("moderation requires an authorized moderator", goerrors.CategoryAuth).
	WithTextCode(TextCodeModeratorRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidDecision is returned for moderation statuses other than approve or reject.
var ErrInvalidDecision = goerrors.New("moderation decision must be approve or reject", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidDecision).
	WithCode(goerrors.CodeBadRequest)

// ErrActivationKeyRequired is returned by command messages carrying no key.
var ErrActivationKeyRequired = goerrors.New("activation key is required", goerrors.CategoryValidation).
	WithTextCode(TextCodeActivationKeyRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrConcurrentModification is returned by repositories when a profile changed
// between read and write.
var ErrConcurrentModification = goerrors.New("registration profile was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentModification).
	WithCode(goerrors.CodeConflict)

// ErrRecordNotFound is returned by repositories when a lookup has no match.
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidPassword is returned when a password does not meet the policy.
var ErrInvalidPassword = goerrors.New("the password provided does not meet the minimum requirements", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPassword).
	WithCode(goerrors.CodeBadRequest)

// IsInvalidToken reports whether err is a malformed or unknown activation key.
func IsInvalidToken(err error) bool {
	return hasTextCode(err, TextCodeInvalidActivationKey)
}

// IsTokenExpired reports whether err signals an expired activation key.
func IsTokenExpired(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsDuplicate reports whether err is a duplicate email or username conflict.
func IsDuplicate(err error) bool {
	return hasTextCode(err, TextCodeDuplicateEmail) || hasTextCode(err, TextCodeDuplicateUsername)
}

// IsConcurrentModification reports whether err is an optimistic lock conflict.
func IsConcurrentModification(err error) bool {
	return hasTextCode(err, TextCodeConcurrentModification)
}

// IsRecordNotFound reports whether err signals a missing record.
func IsRecordNotFound(err error) bool {
	return hasTextCode(err, TextCodeRecordNotFound)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}
