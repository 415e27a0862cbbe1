//go:build !race

package registration

// DefaultBcryptCost is the cost used by NewBcryptHasher.
const DefaultBcryptCost = 12

func passwordHashCost() int {
	return DefaultBcryptCost
}
