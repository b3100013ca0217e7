package tag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hearthbooks/hearthbooks/internal/domain/suggest"
)

var (
	// ErrNameRequired is returned when a tag is created without a name.
	ErrNameRequired = errors.New("tag name is required")

	// ErrDuplicateName is returned when the project already has a tag with
	// this name.
	ErrDuplicateName = errors.New("a tag with this name already exists")
)

// Service handles tag business logic
type Service struct {
	repo   *Repository
	logger *slog.Logger
}

// NewService creates a new tag service
func NewService(repo *Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateTag creates a tag, rejecting names already used in the project
func (s *Service) CreateTag(ctx context.Context, projectID uuid.UUID, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	exists, err := s.repo.ExistsByName(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateName
	}

	tag := &Tag{ProjectID: projectID, Name: name}
	if err := s.repo.Create(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTags retrieves the project's tag vocabulary
func (s *Service) ListTags(ctx context.Context, projectID uuid.UUID) ([]*Tag, error) {
	return s.repo.ListByProject(ctx, projectID)
}

// RenameTag changes a tag's name, keeping per-project uniqueness
func (s *Service) RenameTag(ctx context.Context, projectID, tagID uuid.UUID, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	current, err := s.repo.GetByID(ctx, projectID, tagID)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(current.Name, name) {
		exists, err := s.repo.ExistsByName(ctx, projectID, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateName
		}
	}

	if err := s.repo.Rename(ctx, projectID, tagID, name); err != nil {
		return nil, err
	}
	current.Name = name
	return current, nil
}

// DeleteTag removes a tag from the vocabulary
func (s *Service) DeleteTag(ctx context.Context, projectID, tagID uuid.UUID) error {
	return s.repo.Delete(ctx, projectID, tagID)
}

// ProjectTagOptions returns the vocabulary in the shape the tag suggester
// consumes.
func (s *Service) ProjectTagOptions(ctx context.Context, projectID uuid.UUID) ([]suggest.TagOption, error) {
	tags, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	options := make([]suggest.TagOption, len(tags))
	for i, t := range tags {
		options[i] = suggest.TagOption{ID: t.ID, Name: t.Name}
	}
	return options, nil
}
