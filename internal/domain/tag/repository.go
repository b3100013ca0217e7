// Package tag manages the tag vocabulary of a project.
package tag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tag is one label within a project's vocabulary
type Tag struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	CreatedAt time.Time
}

// DB is the subset of pgxpool.Pool the repository needs
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Repository handles tag persistence
type Repository struct {
	pool DB
}

// NewRepository creates a new tag repository
func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new tag
func (r *Repository) Create(ctx context.Context, tag *Tag) error {
	if tag.ID == uuid.Nil {
		tag.ID = uuid.New()
	}

	query := `
		INSERT INTO tags (id, project_id, name)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, tag.ID, tag.ProjectID, tag.Name).Scan(&tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// GetByID retrieves a tag scoped to a project
func (r *Repository) GetByID(ctx context.Context, projectID, tagID uuid.UUID) (*Tag, error) {
	query := `SELECT id, project_id, name, created_at FROM tags WHERE id = $1 AND project_id = $2`

	var t Tag
	err := r.pool.QueryRow(ctx, query, tagID, projectID).Scan(&t.ID, &t.ProjectID, &t.Name, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &t, nil
}

// ListByProject retrieves the full tag vocabulary of a project
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Tag, error) {
	query := `SELECT id, project_id, name, created_at FROM tags WHERE project_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, &t)
	}

	return tags, rows.Err()
}

// ExistsByName reports whether a tag with this name already exists in the
// project, case-insensitively. Uniqueness lives here, not in the schema.
func (r *Repository) ExistsByName(ctx context.Context, projectID uuid.UUID, name string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM tags WHERE project_id = $1 AND lower(name) = lower($2))`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, projectID, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check tag name: %w", err)
	}
	return exists, nil
}

// Rename changes a tag's name
func (r *Repository) Rename(ctx context.Context, projectID, tagID uuid.UUID, name string) error {
	query := `UPDATE tags SET name = $3 WHERE id = $1 AND project_id = $2`

	result, err := r.pool.Exec(ctx, query, tagID, projectID, name)
	if err != nil {
		return fmt.Errorf("failed to rename tag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a tag; join rows cascade
func (r *Repository) Delete(ctx context.Context, projectID, tagID uuid.UUID) error {
	query := `DELETE FROM tags WHERE id = $1 AND project_id = $2`

	result, err := r.pool.Exec(ctx, query, tagID, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}
