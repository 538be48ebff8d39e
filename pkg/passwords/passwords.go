// Package passwords holds the password policy and bcrypt hashing.
package passwords

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the shortest password accepted anywhere in the product.
const MinLength = 8

var (
	ErrTooShort = errors.New("password must be at least 8 characters")
	ErrMismatch = errors.New("password confirmation does not match")
)

// Validate applies the password policy. confirmation is compared verbatim.
func Validate(password, confirmation string) error {
	if len(password) < MinLength {
		return ErrTooShort
	}
	if password != confirmation {
		return ErrMismatch
	}
	return nil
}

// Hash hashes a plain password using bcrypt.
func Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// Check compares plain password with hashed password.
func Check(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
