package service

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthbooks/hearthbooks/internal/domain/project/repository"
)

// fakeProjectRepo is an in-memory ProjectRepository for exercising the
// hierarchy walk without a database.
type fakeProjectRepo struct {
	projects map[uuid.UUID]*repository.Project
	members  map[uuid.UUID]map[uuid.UUID]string
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{
		projects: make(map[uuid.UUID]*repository.Project),
		members:  make(map[uuid.UUID]map[uuid.UUID]string),
	}
}

func (r *fakeProjectRepo) addProject(parentID *uuid.UUID) uuid.UUID {
	id := uuid.New()
	r.projects[id] = &repository.Project{ID: id, Name: "p", CurrencyCode: "EUR", ParentID: parentID}
	return id
}

func (r *fakeProjectRepo) Create(_ context.Context, project *repository.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	copied := *project
	r.projects[project.ID] = &copied
	return nil
}

func (r *fakeProjectRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Project, error) {
	project, ok := r.projects[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *project
	return &copied, nil
}

func (r *fakeProjectRepo) ListForUser(_ context.Context, _ uuid.UUID) ([]*repository.Project, error) {
	return nil, nil
}

func (r *fakeProjectRepo) ListChildren(_ context.Context, _ uuid.UUID) ([]*repository.Project, error) {
	return nil, nil
}

func (r *fakeProjectRepo) Update(_ context.Context, project *repository.Project) error {
	copied := *project
	r.projects[project.ID] = &copied
	return nil
}

func (r *fakeProjectRepo) Archive(_ context.Context, _ uuid.UUID) error { return nil }

func (r *fakeProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.projects, id)
	return nil
}

func (r *fakeProjectRepo) AddMember(_ context.Context, projectID, userID uuid.UUID, role string) error {
	if r.members[projectID] == nil {
		r.members[projectID] = make(map[uuid.UUID]string)
	}
	r.members[projectID][userID] = role
	return nil
}

func (r *fakeProjectRepo) RemoveMember(_ context.Context, projectID, userID uuid.UUID) error {
	delete(r.members[projectID], userID)
	return nil
}

func (r *fakeProjectRepo) ListMembers(_ context.Context, projectID uuid.UUID) ([]*repository.Member, error) {
	var out []*repository.Member
	for userID, role := range r.members[projectID] {
		out = append(out, &repository.Member{ProjectID: projectID, UserID: userID, Role: role})
	}
	return out, nil
}

func (r *fakeProjectRepo) GetMemberRole(_ context.Context, projectID, userID uuid.UUID) (string, error) {
	role, ok := r.members[projectID][userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

func newTestService(repo *fakeProjectRepo) *ProjectService {
	return NewProjectService(repo, slog.New(slog.DiscardHandler))
}

func TestResolveRoleDirectMembership(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	projectID := repo.addProject(nil)
	require.NoError(t, repo.AddMember(ctx, projectID, userID, repository.RoleEditor))

	role, err := svc.ResolveRole(ctx, userID, projectID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleEditor, role)
}

func TestResolveRoleInheritsFromAncestor(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	rootID := repo.addProject(nil)
	childID := repo.addProject(&rootID)
	grandchildID := repo.addProject(&childID)
	require.NoError(t, repo.AddMember(ctx, rootID, userID, repository.RoleOwner))

	role, err := svc.ResolveRole(ctx, userID, grandchildID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleOwner, role)
}

func TestResolveRoleStrongestWins(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// Viewer on the child, editor on the parent: the stronger inherited
	// role wins even though the direct one is found first.
	userID := uuid.New()
	rootID := repo.addProject(nil)
	childID := repo.addProject(&rootID)
	require.NoError(t, repo.AddMember(ctx, childID, userID, repository.RoleViewer))
	require.NoError(t, repo.AddMember(ctx, rootID, userID, repository.RoleEditor))

	role, err := svc.ResolveRole(ctx, userID, childID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleEditor, role)
}

func TestResolveRoleNoMembership(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	rootID := repo.addProject(nil)
	childID := repo.addProject(&rootID)

	_, err := svc.ResolveRole(ctx, uuid.New(), childID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResolveRoleMissingProject(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)

	_, err := svc.ResolveRole(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResolveRoleParentCycleTerminates(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	// Two projects pointing at each other must not hang the walk
	aID := repo.addProject(nil)
	bID := repo.addProject(&aID)
	repo.projects[aID].ParentID = &bID

	userID := uuid.New()
	require.NoError(t, repo.AddMember(ctx, bID, userID, repository.RoleViewer))

	role, err := svc.ResolveRole(ctx, userID, aID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleViewer, role)

	_, err = svc.ResolveRole(ctx, uuid.New(), aID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResolveRoleDanglingParent(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	missing := uuid.New()
	childID := repo.addProject(&missing)

	userID := uuid.New()
	require.NoError(t, repo.AddMember(ctx, childID, userID, repository.RoleEditor))

	// Membership found before the dangling reference still counts
	role, err := svc.ResolveRole(ctx, userID, childID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleEditor, role)
}

func TestCreateProjectUnderParentRequiresEditor(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	userID := uuid.New()
	parentID := repo.addProject(nil)
	require.NoError(t, repo.AddMember(ctx, parentID, userID, repository.RoleViewer))

	_, err := svc.CreateProject(ctx, userID, "Vacation Fund", "EUR", &parentID)
	assert.ErrorIs(t, err, ErrForbidden)

	repo.members[parentID][userID] = repository.RoleEditor
	project, err := svc.CreateProject(ctx, userID, "Vacation Fund", "EUR", &parentID)
	require.NoError(t, err)
	assert.Equal(t, repository.RoleOwner, repo.members[project.ID][userID])
}

func TestCreateProjectDefaults(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, uuid.New(), "", "EUR", nil)
	assert.ErrorIs(t, err, ErrNameRequired)

	project, err := svc.CreateProject(ctx, uuid.New(), "Household", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "EUR", project.CurrencyCode)
}

func TestRemoveMemberLastOwner(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	ownerID := uuid.New()
	editorID := uuid.New()
	projectID := repo.addProject(nil)
	require.NoError(t, repo.AddMember(ctx, projectID, ownerID, repository.RoleOwner))
	require.NoError(t, repo.AddMember(ctx, projectID, editorID, repository.RoleEditor))

	err := svc.RemoveMember(ctx, ownerID, projectID, ownerID)
	assert.ErrorIs(t, err, ErrLastOwner)

	require.NoError(t, svc.RemoveMember(ctx, ownerID, projectID, editorID))
	_, ok := repo.members[projectID][editorID]
	assert.False(t, ok)
}

func TestAddMemberValidation(t *testing.T) {
	repo := newFakeProjectRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	ownerID := uuid.New()
	projectID := repo.addProject(nil)
	require.NoError(t, repo.AddMember(ctx, projectID, ownerID, repository.RoleOwner))

	err := svc.AddMember(ctx, ownerID, projectID, uuid.New(), "superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)

	require.NoError(t, svc.AddMember(ctx, ownerID, projectID, uuid.New(), repository.RoleViewer))
}
