package registration

import (
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the default minimum password length.
var MinPasswordLength = 8

var (
	lowerRE  = regexp.MustCompile(`[a-z]`)
	upperRE  = regexp.MustCompile(`[A-Z]`)
	digitRE  = regexp.MustCompile(`[0-9]`)
	symbolRE = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ValidatePassword requires at least length characters drawn from three of
// the four classes: lowercase, uppercase, digits, symbols.
func ValidatePassword(password string, length int) error {
	if len(password) < length {
		return ErrInvalidPassword
	}

	classes := 0
	for _, re := range []*regexp.Regexp{lowerRE, upperRE, digitRE, symbolRE} {
		if re.MatchString(password) {
			classes++
		}
	}

	if classes < 3 {
		return ErrInvalidPassword
	}
	return nil
}

// BcryptHasher is the default PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using the package cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: passwordHashCost()}
}

// HashPassword will generate a password hash
func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}

	cost := bcrypt.DefaultCost
	if h != nil && h.Cost > 0 {
		cost = h.Cost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(b), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed credential
func ComparePasswordAndHash(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
