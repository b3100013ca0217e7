package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearthbooks/hearthbooks/internal/domain/auth/common"
)

const userColumns = `id, email, username, display_name, hashed_password, is_active,
       email_verified_at, last_login_at, created_at, updated_at`

// PostgresAuthRepository implements AuthRepository using PostgreSQL
type PostgresAuthRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuthRepository creates a new PostgreSQL auth repository
func NewPostgresAuthRepository(pool *pgxpool.Pool) *PostgresAuthRepository {
	return &PostgresAuthRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.DisplayName,
		&u.HashedPassword,
		&u.IsActive,
		&u.EmailVerifiedAt,
		&u.LastLoginAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new user. An OAuth-only user carries an empty password.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, email, username, hashedPassword, displayName string) (*User, error) {
	query := `
		INSERT INTO users (id, email, username, hashed_password, display_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, uuid.New(), email, username, hashedPassword, displayName))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (r *PostgresAuthRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (r *PostgresAuthRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// UpdatePassword replaces the user's password hash
func (r *PostgresAuthRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	query := `UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, userID, hashedPassword)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin stamps the user's last successful login
func (r *PostgresAuthRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET last_login_at = now() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// VerifyEmail marks the user's email address as verified
func (r *PostgresAuthRepository) VerifyEmail(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET email_verified_at = now(), updated_at = now() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if result.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// CreateUserSession stores a new refresh-token session
func (r *PostgresAuthRepository) CreateUserSession(ctx context.Context, userID uuid.UUID, tokenHash, userAgent, clientIP string, expiresAt time.Time) (*UserSession, error) {
	query := `
		INSERT INTO user_sessions (id, user_id, token_hash, user_agent, client_ip, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	session := &UserSession{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		UserAgent: userAgent,
		ClientIP:  clientIP,
		ExpiresAt: expiresAt,
	}

	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.ClientIP,
		session.ExpiresAt,
	).Scan(&session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user session: %w", err)
	}
	return session, nil
}

// GetUserSessionByToken retrieves a non-expired session by its token hash
func (r *PostgresAuthRepository) GetUserSessionByToken(ctx context.Context, tokenHash string) (*UserSession, error) {
	query := `
		SELECT id, user_id, token_hash, user_agent, client_ip, expires_at, created_at
		FROM user_sessions
		WHERE token_hash = $1 AND expires_at > now()`

	var s UserSession
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.UserAgent,
		&s.ClientIP,
		&s.ExpiresAt,
		&s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user session: %w", err)
	}
	return &s, nil
}

// DeleteUserSession removes a session by its token hash
func (r *PostgresAuthRepository) DeleteUserSession(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM user_sessions WHERE token_hash = $1`

	result, err := r.pool.Exec(ctx, query, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete user session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

// DeleteAllUserSessions removes every session of a user, logging them out
// everywhere. Used after password changes.
func (r *PostgresAuthRepository) DeleteAllUserSessions(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM user_sessions WHERE user_id = $1`

	if _, err := r.pool.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// CreateUserToken stores a one-time token hash
func (r *PostgresAuthRepository) CreateUserToken(ctx context.Context, userID uuid.UUID, tokenHash, tokenType string, expiresAt time.Time) error {
	query := `
		INSERT INTO user_tokens (id, user_id, token_hash, token_type, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), userID, tokenHash, tokenType, expiresAt); err != nil {
		return fmt.Errorf("failed to create user token: %w", err)
	}
	return nil
}

// GetUserTokenByHash retrieves a non-expired one-time token
func (r *PostgresAuthRepository) GetUserTokenByHash(ctx context.Context, tokenHash, tokenType string) (*UserToken, error) {
	query := `
		SELECT id, user_id, token_hash, token_type, expires_at, created_at
		FROM user_tokens
		WHERE token_hash = $1 AND token_type = $2 AND expires_at > now()`

	var t UserToken
	err := r.pool.QueryRow(ctx, query, tokenHash, tokenType).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.TokenType,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user token: %w", err)
	}
	return &t, nil
}

// DeleteUserToken removes a one-time token after use
func (r *PostgresAuthRepository) DeleteUserToken(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM user_tokens WHERE token_hash = $1`

	if _, err := r.pool.Exec(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("failed to delete user token: %w", err)
	}
	return nil
}

// GetUserByOAuthIdentity retrieves the user linked to an external identity
func (r *PostgresAuthRepository) GetUserByOAuthIdentity(ctx context.Context, provider, providerUserID string) (*User, error) {
	query := `
		SELECT u.id, u.email, u.username, u.display_name, u.hashed_password, u.is_active,
		       u.email_verified_at, u.last_login_at, u.created_at, u.updated_at
		FROM users u
		JOIN oauth_identities oi ON oi.user_id = u.id
		WHERE oi.provider = $1 AND oi.provider_user_id = $2`

	return scanUser(r.pool.QueryRow(ctx, query, provider, providerUserID))
}

// CreateOrUpdateOAuthIdentity links an external identity to a user,
// refreshing the stored provider tokens on conflict.
func (r *PostgresAuthRepository) CreateOrUpdateOAuthIdentity(ctx context.Context, provider, providerUserID string, userID uuid.UUID, accessToken, refreshToken *string) error {
	query := `
		INSERT INTO oauth_identities (provider, provider_user_id, user_id, access_token, refresh_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET access_token = EXCLUDED.access_token,
		              refresh_token = EXCLUDED.refresh_token,
		              updated_at = now()`

	if _, err := r.pool.Exec(ctx, query, provider, providerUserID, userID, accessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to upsert oauth identity: %w", err)
	}
	return nil
}
