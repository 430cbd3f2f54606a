package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// commonPasswords is a static denylist of passwords seen at the top of
// every breached-credentials list.  Matching is case-insensitive.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"passw0rd":    {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"letmein1":    {},
	"sunshine1":   {},
	"admin123":    {},
	"welcome1":    {},
	"football1":   {},
}

// CheckPasswordPolicy rejects passwords that are too short or on the
// common-password denylist.
func CheckPasswordPolicy(plain string) error {
	if len(plain) < minPasswordLength {
		return ErrWeakPassword
	}
	if _, banned := commonPasswords[strings.ToLower(plain)]; banned {
		return ErrWeakPassword
	}
	return nil
}

// HashPassword returns a bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares a bcrypt hash and a plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
