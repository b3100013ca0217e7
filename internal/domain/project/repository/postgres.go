package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const projectColumns = `id, name, currency_code, parent_id, archived_at, created_by, created_at, updated_at`

// PostgresProjectRepository implements ProjectRepository using PostgreSQL
type PostgresProjectRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresProjectRepository creates a new PostgreSQL project repository
func NewPostgresProjectRepository(pool *pgxpool.Pool) *PostgresProjectRepository {
	return &PostgresProjectRepository{pool: pool}
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.CurrencyCode,
		&p.ParentID,
		&p.ArchivedAt,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}

// Create inserts a new project
func (r *PostgresProjectRepository) Create(ctx context.Context, project *Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}

	query := `
		INSERT INTO projects (id, name, currency_code, parent_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		project.ID,
		project.Name,
		project.CurrencyCode,
		project.ParentID,
		project.CreatedBy,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetByID retrieves a project by ID
func (r *PostgresProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProject(r.pool.QueryRow(ctx, query, id))
}

// ListForUser retrieves the projects where the user holds a direct membership
func (r *PostgresProjectRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Project, error) {
	query := `
		SELECT p.id, p.name, p.currency_code, p.parent_id, p.archived_at,
		       p.created_by, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.created_at`

	return r.queryProjects(ctx, query, userID)
}

// ListChildren retrieves the direct children of a project
func (r *PostgresProjectRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE parent_id = $1 ORDER BY created_at`
	return r.queryProjects(ctx, query, parentID)
}

func (r *PostgresProjectRepository) queryProjects(ctx context.Context, query string, args ...any) ([]*Project, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.CurrencyCode,
			&p.ParentID,
			&p.ArchivedAt,
			&p.CreatedBy,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}

	return projects, rows.Err()
}

// Update updates a project's name and currency
func (r *PostgresProjectRepository) Update(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects
		SET name = $2, currency_code = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query, project.ID, project.Name, project.CurrencyCode).Scan(&project.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return nil
}

// Archive marks a project archived without deleting its data
func (r *PostgresProjectRepository) Archive(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE projects SET archived_at = now(), updated_at = now() WHERE id = $1 AND archived_at IS NULL`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a project. Accounts, tags, transactions, and import batches
// cascade; child projects are detached, not deleted.
func (r *PostgresProjectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM projects WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddMember adds or updates a user's role on a project
func (r *PostgresProjectRepository) AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) error {
	query := `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`

	if _, err := r.pool.Exec(ctx, query, projectID, userID, role); err != nil {
		return fmt.Errorf("failed to add project member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a project
func (r *PostgresProjectRepository) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	query := `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`

	result, err := r.pool.Exec(ctx, query, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove project member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListMembers retrieves the direct members of a project
func (r *PostgresProjectRepository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]*Member, error) {
	query := `
		SELECT project_id, user_id, role, created_at
		FROM project_members
		WHERE project_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}
		members = append(members, &m)
	}

	return members, rows.Err()
}

// GetMemberRole retrieves the user's direct role on a project, if any
func (r *PostgresProjectRepository) GetMemberRole(ctx context.Context, projectID, userID uuid.UUID) (string, error) {
	query := `SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`

	var role string
	err := r.pool.QueryRow(ctx, query, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return role, nil
}
