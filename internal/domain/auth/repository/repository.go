// Package repository provides persistence for users, sessions, and the
// one-time tokens of the email verification and password reset flows.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is an account holder
type User struct {
	ID              uuid.UUID
	Email           string
	Username        string
	DisplayName     string
	HashedPassword  string
	IsActive        bool
	EmailVerifiedAt *time.Time
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UserSession is one refresh-token session. The token itself is never
// stored, only its SHA-256 hash.
type UserSession struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	UserAgent string
	ClientIP  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserToken is a one-time token for email verification or password reset
type UserToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	TokenType string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuthRepository defines persistence operations for authentication
type AuthRepository interface {
	CreateUser(ctx context.Context, email, username, hashedPassword, displayName string) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	VerifyEmail(ctx context.Context, userID uuid.UUID) error

	CreateUserSession(ctx context.Context, userID uuid.UUID, tokenHash, userAgent, clientIP string, expiresAt time.Time) (*UserSession, error)
	GetUserSessionByToken(ctx context.Context, tokenHash string) (*UserSession, error)
	DeleteUserSession(ctx context.Context, tokenHash string) error
	DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error

	CreateUserToken(ctx context.Context, userID uuid.UUID, tokenHash, tokenType string, expiresAt time.Time) error
	GetUserTokenByHash(ctx context.Context, tokenHash, tokenType string) (*UserToken, error)
	DeleteUserToken(ctx context.Context, tokenHash string) error

	GetUserByOAuthIdentity(ctx context.Context, provider, providerUserID string) (*User, error)
	CreateOrUpdateOAuthIdentity(ctx context.Context, provider, providerUserID string, userID uuid.UUID, accessToken, refreshToken *string) error
}
