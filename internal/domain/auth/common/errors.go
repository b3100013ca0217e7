// Package common holds the sentinel errors shared by the auth layers.
package common

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrTokenNotFound      = errors.New("token not found or expired")
)
