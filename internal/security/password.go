package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const Cost = 10

// Password length bounds in bytes. bcrypt rejects input longer than 72 bytes.
const (
	MinPasswordLen   = 6
	MaxPasswordBytes = 72
)

var (
	ErrPasswordMismatch = errors.New("password mismatch")
	ErrPasswordLength   = errors.New("password must be between 6 and 72 bytes")
)

// ValidatePassword enforces the length bounds shared by registration and reset.
func ValidatePassword(plain string) error {
	if len(plain) < MinPasswordLen || len(plain) > MaxPasswordBytes {
		return ErrPasswordLength
	}
	return nil
}

// dummyHash is compared against when no user exists so both login failures cost one bcrypt run.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("docdirectory-dummy-password"), Cost)

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), Cost)

	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordLength
	}
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

func CheckPassword(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// BurnCompare runs a comparison against a fixed hash and discards the result.
func BurnCompare(plain string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plain))
}
