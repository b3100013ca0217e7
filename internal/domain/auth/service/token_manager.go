package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenKindAccess  = "access"
	tokenKindRefresh = "refresh"
)

// ErrInvalidToken is returned for malformed, expired, or mis-typed tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenPair bundles a short-lived access token with its refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Kind     string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates the JWT pairs used by API clients.
type TokenManager interface {
	GenerateTokenPair(userID, email, username string) (*TokenPair, error)
	ValidateAccessToken(token string) (*Claims, error)
	ValidateRefreshToken(token string) (*Claims, error)
}

// JWTTokenManager signs tokens with a shared HMAC secret.
type JWTTokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTTokenManager creates a token manager with the given secret and TTLs.
func NewJWTTokenManager(secret string, accessTTL, refreshTTL time.Duration) *JWTTokenManager {
	return &JWTTokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// GenerateTokenPair issues a fresh access/refresh pair for a user.
func (m *JWTTokenManager) GenerateTokenPair(userID, email, username string) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(m.accessTTL)
	refreshExpiry := now.Add(m.refreshTTL)

	access, err := m.sign(userID, email, username, tokenKindAccess, now, accessExpiry)
	if err != nil {
		return nil, err
	}
	refresh, err := m.sign(userID, email, username, tokenKindRefresh, now, refreshExpiry)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// ValidateAccessToken parses and verifies an access token.
func (m *JWTTokenManager) ValidateAccessToken(token string) (*Claims, error) {
	return m.validate(token, tokenKindAccess)
}

// ValidateRefreshToken parses and verifies a refresh token.
func (m *JWTTokenManager) ValidateRefreshToken(token string) (*Claims, error) {
	return m.validate(token, tokenKindRefresh)
}

func (m *JWTTokenManager) sign(userID, email, username, kind string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Email:    email,
		Username: username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (m *JWTTokenManager) validate(token, kind string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
