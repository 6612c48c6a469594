//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds hash at the minimum cost
func passwordHashCost() int {
	return bcrypt.MinCost
}
