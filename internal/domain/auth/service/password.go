package service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// ErrPasswordTooShort is returned for passwords under the minimum length.
var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > 72 {
		// bcrypt silently truncates beyond 72 bytes
		return errors.New("password must be at most 72 characters")
	}
	return nil
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether the password matches the stored hash.
// Users created through OAuth carry an empty hash and never match.
func ComparePassword(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// GenerateVerificationToken creates a random email verification token.
func GenerateVerificationToken() (string, error) {
	return generateRandomToken()
}

// GeneratePasswordResetToken creates a random password reset token.
func GeneratePasswordResetToken() (string, error) {
	return generateRandomToken()
}

func generateRandomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
