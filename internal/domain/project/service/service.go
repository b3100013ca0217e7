// Package service implements project management and the hierarchical access
// checks the rest of the application leans on.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/internal/domain/project/repository"
)

// maxProjectDepth bounds the ancestor walk so a parent_id cycle introduced by
// bad data cannot loop forever.
const maxProjectDepth = 32

var (
	// ErrNameRequired is returned when a project is created or renamed
	// without a name.
	ErrNameRequired = errors.New("project name is required")

	// ErrForbidden is returned when the caller's role is too weak for the
	// operation. Handlers surface it as not-found.
	ErrForbidden = errors.New("insufficient project role")

	// ErrLastOwner guards against removing the only owner of a project.
	ErrLastOwner = errors.New("cannot remove the last owner of a project")

	// ErrUnknownRole is returned for a role outside owner/editor/viewer.
	ErrUnknownRole = errors.New("unknown project role")
)

// ProjectService coordinates project business logic
type ProjectService struct {
	repo   repository.ProjectRepository
	logger *slog.Logger
}

// NewProjectService creates a new project service
func NewProjectService(repo repository.ProjectRepository, logger *slog.Logger) *ProjectService {
	return &ProjectService{repo: repo, logger: logger}
}

// CreateProject creates a project, optionally under a parent the caller can
// edit, and makes the caller its owner.
func (s *ProjectService) CreateProject(ctx context.Context, userID uuid.UUID, name, currencyCode string, parentID *uuid.UUID) (*repository.Project, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if currencyCode == "" {
		currencyCode = "EUR"
	}

	if parentID != nil {
		role, err := s.ResolveRole(ctx, userID, *parentID)
		if err != nil {
			return nil, err
		}
		if repository.RoleRank(role) < repository.RoleRank(repository.RoleEditor) {
			return nil, ErrForbidden
		}
	}

	project := &repository.Project{
		Name:         name,
		CurrencyCode: currencyCode,
		ParentID:     parentID,
		CreatedBy:    userID,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	if err := s.repo.AddMember(ctx, project.ID, userID, repository.RoleOwner); err != nil {
		return nil, fmt.Errorf("failed to add project owner: %w", err)
	}

	s.logger.InfoContext(ctx, "project created", "project_id", project.ID, "user_id", userID)
	return project, nil
}

// GetProject retrieves a project the caller can at least view
func (s *ProjectService) GetProject(ctx context.Context, userID, projectID uuid.UUID) (*repository.Project, error) {
	if _, err := s.ResolveRole(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, projectID)
}

// ListProjects retrieves the projects the user is a direct member of
func (s *ProjectService) ListProjects(ctx context.Context, userID uuid.UUID) ([]*repository.Project, error) {
	return s.repo.ListForUser(ctx, userID)
}

// ListChildren retrieves the direct children of a project the caller can view
func (s *ProjectService) ListChildren(ctx context.Context, userID, projectID uuid.UUID) ([]*repository.Project, error) {
	if _, err := s.ResolveRole(ctx, userID, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListChildren(ctx, projectID)
}

// UpdateProject renames a project or changes its currency
func (s *ProjectService) UpdateProject(ctx context.Context, userID, projectID uuid.UUID, name, currencyCode string) (*repository.Project, error) {
	if name == "" {
		return nil, ErrNameRequired
	}

	if err := s.requireRole(ctx, userID, projectID, repository.RoleEditor); err != nil {
		return nil, err
	}

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	project.Name = name
	if currencyCode != "" {
		project.CurrencyCode = currencyCode
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// ArchiveProject marks a project archived
func (s *ProjectService) ArchiveProject(ctx context.Context, userID, projectID uuid.UUID) error {
	if err := s.requireRole(ctx, userID, projectID, repository.RoleOwner); err != nil {
		return err
	}
	return s.repo.Archive(ctx, projectID)
}

// DeleteProject removes a project and everything it owns
func (s *ProjectService) DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error {
	if err := s.requireRole(ctx, userID, projectID, repository.RoleOwner); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, projectID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "project deleted", "project_id", projectID, "user_id", userID)
	return nil
}

// AddMember grants a user a role on a project
func (s *ProjectService) AddMember(ctx context.Context, callerID, projectID, userID uuid.UUID, role string) error {
	if repository.RoleRank(role) == 0 {
		return ErrUnknownRole
	}
	if err := s.requireRole(ctx, callerID, projectID, repository.RoleOwner); err != nil {
		return err
	}
	return s.repo.AddMember(ctx, projectID, userID, role)
}

// RemoveMember revokes a user's direct membership. The last owner of a
// project cannot be removed.
func (s *ProjectService) RemoveMember(ctx context.Context, callerID, projectID, userID uuid.UUID) error {
	if err := s.requireRole(ctx, callerID, projectID, repository.RoleOwner); err != nil {
		return err
	}

	members, err := s.repo.ListMembers(ctx, projectID)
	if err != nil {
		return err
	}
	owners := 0
	removingOwner := false
	for _, m := range members {
		if m.Role == repository.RoleOwner {
			owners++
			if m.UserID == userID {
				removingOwner = true
			}
		}
	}
	if removingOwner && owners == 1 {
		return ErrLastOwner
	}

	return s.repo.RemoveMember(ctx, projectID, userID)
}

// ListMembers retrieves the direct members of a project the caller can view
func (s *ProjectService) ListMembers(ctx context.Context, callerID, projectID uuid.UUID) ([]*repository.Member, error) {
	if _, err := s.ResolveRole(ctx, callerID, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, projectID)
}

// ProjectCurrency returns a project's display currency. Access is assumed to
// be checked already; the middleware resolves roles before handlers run.
func (s *ProjectService) ProjectCurrency(ctx context.Context, projectID uuid.UUID) (string, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	return project.CurrencyCode, nil
}

// ResolveRole walks the project's ancestor chain and returns the strongest
// role the user holds anywhere along it. A user with no membership on the
// chain gets sql.ErrNoRows, indistinguishable from the project not existing.
// The walk is a sequential per-project loop, one lookup per ancestor.
func (s *ProjectService) ResolveRole(ctx context.Context, userID, projectID uuid.UUID) (string, error) {
	best := ""
	current := projectID

	for depth := 0; depth < maxProjectDepth; depth++ {
		project, err := s.repo.GetByID(ctx, current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) && best != "" {
				// Dangling parent reference; keep what we found so far
				break
			}
			return "", err
		}

		role, err := s.repo.GetMemberRole(ctx, project.ID, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		if err == nil && repository.RoleRank(role) > repository.RoleRank(best) {
			best = role
		}

		if project.ParentID == nil {
			break
		}
		current = *project.ParentID
	}

	if best == "" {
		return "", sql.ErrNoRows
	}
	return best, nil
}

func (s *ProjectService) requireRole(ctx context.Context, userID, projectID uuid.UUID, minimum string) error {
	role, err := s.ResolveRole(ctx, userID, projectID)
	if err != nil {
		return err
	}
	if repository.RoleRank(role) < repository.RoleRank(minimum) {
		return ErrForbidden
	}
	return nil
}
