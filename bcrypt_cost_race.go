//go:build race

package registration

import "golang.org/x/crypto/bcrypt"

// DefaultBcryptCost drops to the minimum under the race detector.
const DefaultBcryptCost = bcrypt.MinCost

func passwordHashCost() int {
	return DefaultBcryptCost
}
