package utils

import "golang.org/x/crypto/bcrypt"

// MinPasswordCost is the lowest bcrypt cost HashPassword accepts; lower
// values are raised to it.
const MinPasswordCost = bcrypt.MinCost

// HashPassword returns a bcrypt hash of plain at the given cost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < MinPasswordCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword compares a bcrypt hash with a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
