// Package repository provides persistence for projects and their members.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roles a member can hold on a project, weakest first.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleOwner  = "owner"
)

// RoleRank orders roles for comparisons; unknown roles rank below viewer.
func RoleRank(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Project is one budgeting scope. Projects nest: membership on an ancestor
// carries down to every descendant.
type Project struct {
	ID           uuid.UUID
	Name         string
	CurrencyCode string
	ParentID     *uuid.UUID
	ArchivedAt   *time.Time
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Member is one user's role on one project
type Member struct {
	ProjectID uuid.UUID
	UserID    uuid.UUID
	Role      string
	CreatedAt time.Time
}

// ProjectRepository defines persistence operations for projects
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Project, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Project, error)
	Update(ctx context.Context, project *Project) error
	Archive(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, projectID, userID uuid.UUID, role string) error
	RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]*Member, error)
	GetMemberRole(ctx context.Context, projectID, userID uuid.UUID) (string, error)
}
