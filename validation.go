package registration

import (
	"context"
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix.
var DefaultPhoneRegion = "US"

var usernameRE = regexp.MustCompile(`^[\w.@+-]+$`)

const (
	randomUsernameMin      = int64(10_000_000_000)
	randomUsernameMax      = int64(590_490_000_000_000)
	randomUsernameAttempts = 10
)

// Normalize trims input and lowercases the email domain.
func (d *AccountDraft) Normalize() {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.TrimSpace(d.Email)
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Phone = strings.TrimSpace(d.Phone)

	if at := strings.LastIndexByte(d.Email, '@'); at > 0 {
		d.Email = d.Email[:at] + strings.ToLower(d.Email[at:])
	}
}

// Validate checks the draft. An empty username is allowed; Register assigns
// a random one for email-only signups.
func (d AccountDraft) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Email, validation.Required, is.Email),
		validation.Field(&d.Username, validation.Length(3, 150), validation.Match(usernameRE)),
		validation.Field(&d.Password, validation.Required, validation.By(func(value interface{}) error {
			s, _ := value.(string)
			return ValidatePassword(s, MinPasswordLength)
		})),
		validation.Field(&d.FirstName, validation.Length(0, 150)),
		validation.Field(&d.LastName, validation.Length(0, 150)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration details").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": err.Error()})
	}
	return nil
}

// NormalizePhone returns the E.164 form of phone. Empty input is allowed.
func NormalizePhone(phone, region string) (string, error) {
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": phone})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// generateRandomUsername returns a numeric username not yet taken.
func generateRandomUsername(ctx context.Context, repo AccountRepository) (string, error) {
	span := big.NewInt(randomUsernameMax - randomUsernameMin)

	for i := 0; i < randomUsernameAttempts; i++ {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate username")
		}
		candidate := new(big.Int).Add(n, big.NewInt(randomUsernameMin)).String()

		_, err = repo.FindAccountByEmailOrUsername(ctx, "", candidate)
		if IsRecordNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check username availability")
		}
	}

	return "", goerrors.New("max attempts reached generating a username", goerrors.CategoryInternal).
		WithMetadata(map[string]any{"attempts": randomUsernameAttempts})
}
