package recipes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

type stubLaunchpadAPI struct {
	team       *launchpad.Person
	project    *launchpad.Project
	repository *launchpad.GitRepository
	references []launchpad.GitRef
	recipes    []launchpad.CharmRecipe

	repositoryMissing  bool
	importedRepository *launchpad.GitRepository

	vcsFailuresRemaining int

	createdRecipes       []launchpad.CharmRecipeCreateArguments
	updatedRecipeLinks   []string
	updatedRecipeFields  []map[string]any
	deletedRecipeLinks   []string
	defaultRepositorySet bool
	codeImportRequested  bool
	vcsValueSet          string
}

func (stub *stubLaunchpadAPI) Person(_ context.Context, _ string) (*launchpad.Person, error) {
	return stub.team, nil
}

func (stub *stubLaunchpadAPI) Project(_ context.Context, _ string) (*launchpad.Project, error) {
	return stub.project, nil
}

func (stub *stubLaunchpadAPI) DefaultGitRepository(_ context.Context, owner *launchpad.Person, project *launchpad.Project) (*launchpad.GitRepository, error) {
	if stub.repositoryMissing {
		return nil, launchpad.RepositoryNotFoundError{ProjectName: project.Name, OwnerName: owner.Name}
	}
	return stub.repository, nil
}

func (stub *stubLaunchpadAPI) SetDefaultRepository(_ context.Context, _ *launchpad.Project, _ *launchpad.GitRepository) error {
	stub.defaultRepositorySet = true
	return nil
}

func (stub *stubLaunchpadAPI) ImportRepository(_ context.Context, _ *launchpad.Person, _ *launchpad.Project, _ string) (*launchpad.GitRepository, error) {
	stub.repositoryMissing = false
	stub.repository = stub.importedRepository
	return stub.importedRepository, nil
}

func (stub *stubLaunchpadAPI) RequestCodeImport(_ context.Context, _ *launchpad.GitRepository) error {
	stub.codeImportRequested = true
	return nil
}

func (stub *stubLaunchpadAPI) GitRefs(_ context.Context, _ *launchpad.GitRepository) ([]launchpad.GitRef, error) {
	return stub.references, nil
}

func (stub *stubLaunchpadAPI) CharmRecipes(_ context.Context, _ *launchpad.Person, _ *launchpad.Project) ([]launchpad.CharmRecipe, error) {
	return stub.recipes, nil
}

func (stub *stubLaunchpadAPI) CreateCharmRecipe(_ context.Context, arguments launchpad.CharmRecipeCreateArguments) (*launchpad.CharmRecipe, error) {
	stub.createdRecipes = append(stub.createdRecipes, arguments)
	return &launchpad.CharmRecipe{Name: arguments.Name, SelfLink: "created-" + arguments.Name}, nil
}

func (stub *stubLaunchpadAPI) UpdateCharmRecipe(_ context.Context, recipeLink string, updatedFields map[string]any) error {
	stub.updatedRecipeLinks = append(stub.updatedRecipeLinks, recipeLink)
	stub.updatedRecipeFields = append(stub.updatedRecipeFields, updatedFields)
	return nil
}

func (stub *stubLaunchpadAPI) DeleteCharmRecipe(_ context.Context, recipeLink string) error {
	stub.deletedRecipeLinks = append(stub.deletedRecipeLinks, recipeLink)
	return nil
}

func (stub *stubLaunchpadAPI) SetProjectVCS(_ context.Context, _ *launchpad.Project, vcsValue string) error {
	if stub.vcsFailuresRemaining > 0 {
		stub.vcsFailuresRemaining--
		return launchpad.APIError{StatusCode: 412, RequestURL: "project-link"}
	}
	stub.vcsValueSet = vcsValue
	return nil
}

func newStubAPI() *stubLaunchpadAPI {
	team, project, repository := testLaunchpadEntities()
	project.VCS = launchpad.ProjectVCSGit
	repository.TargetDefault = true
	return &stubLaunchpadAPI{
		team:       team,
		project:    project,
		repository: repository,
		references: []launchpad.GitRef{
			{SelfLink: "ref-master", Path: "refs/heads/master"},
			{SelfLink: "ref-yoga", Path: "refs/heads/stable/yoga"},
		},
	}
}

func TestSyncCreatesMissingRecipes(testInstance *testing.T) {
	stub := newStubAPI()
	service := NewService(stub, zap.NewNop())

	plan, syncError := service.Sync(context.Background(), testProject(), SyncOptions{})
	require.NoError(testInstance, syncError)
	require.Len(testInstance, stub.createdRecipes, 2)

	createdNames := []string{stub.createdRecipes[0].Name, stub.createdRecipes[1].Name}
	require.Contains(testInstance, createdNames, "charm-nova-compute.master.latest")
	require.Contains(testInstance, createdNames, "charm-nova-compute.stable-yoga.yoga")
	require.Equal(testInstance, "nova-compute", stub.createdRecipes[0].StoreName)

	for _, action := range plan.Actions {
		require.True(testInstance, action.Exists)
		require.False(testInstance, action.Changed)
	}
}

func TestSyncDryRunWritesNothing(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{{Name: "orphan", SelfLink: "orphan-link"}}
	service := NewService(stub, zap.NewNop())

	plan, syncError := service.Sync(context.Background(), testProject(), SyncOptions{DryRun: true, RemoveUnknown: true})
	require.NoError(testInstance, syncError)
	require.Empty(testInstance, stub.createdRecipes)
	require.Empty(testInstance, stub.updatedRecipeLinks)
	require.Empty(testInstance, stub.deletedRecipeLinks)
	require.True(testInstance, plan.HasChanges())
}

func TestSyncUpdatesDriftedRecipes(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{
		{
			SelfLink:      "master-recipe-link",
			Name:          "charm-nova-compute.master.latest",
			AutoBuild:     false,
			StoreChannels: []string{"latest/edge"},
			StoreUpload:   true,
		},
		{
			SelfLink:      "yoga-recipe-link",
			Name:          "charm-nova-compute.stable-yoga.yoga",
			AutoBuild:     true,
			StoreChannels: []string{"yoga/edge", "yoga/stable"},
			StoreUpload:   true,
		},
	}
	service := NewService(stub, zap.NewNop())

	_, syncError := service.Sync(context.Background(), testProject(), SyncOptions{})
	require.NoError(testInstance, syncError)
	require.Empty(testInstance, stub.createdRecipes)
	require.Equal(testInstance, []string{"master-recipe-link"}, stub.updatedRecipeLinks)
	require.Equal(testInstance, map[string]any{"auto_build": true}, stub.updatedRecipeFields[0])
}

func TestSyncRemoveUnknownDeletesOrphans(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{{Name: "orphan", SelfLink: "orphan-link"}}
	service := NewService(stub, zap.NewNop())

	_, syncError := service.Sync(context.Background(), testProject(), SyncOptions{RemoveUnknown: true})
	require.NoError(testInstance, syncError)
	require.Equal(testInstance, []string{"orphan-link"}, stub.deletedRecipeLinks)
}

func TestSyncImportsMissingRepository(testInstance *testing.T) {
	stub := newStubAPI()
	stub.repositoryMissing = true
	stub.importedRepository = &launchpad.GitRepository{
		SelfLink:      "imported-link",
		Name:          "charm-nova-compute",
		TargetDefault: false,
	}
	stub.project.VCS = ""
	stub.vcsFailuresRemaining = 0
	service := NewService(stub, zap.NewNop())

	_, syncError := service.Sync(context.Background(), testProject(), SyncOptions{})
	require.NoError(testInstance, syncError)
	require.True(testInstance, stub.defaultRepositorySet)
	require.Equal(testInstance, launchpad.ProjectVCSGit, stub.vcsValueSet)
	require.Len(testInstance, stub.createdRecipes, 2)
}

func TestSyncGitMirrorOnlyRequestsImportAndSkipsRecipes(testInstance *testing.T) {
	stub := newStubAPI()
	stub.repository.CodeImportLink = "code-import-link"
	service := NewService(stub, zap.NewNop())

	_, syncError := service.Sync(context.Background(), testProject(), SyncOptions{GitMirrorOnly: true})
	require.NoError(testInstance, syncError)
	require.True(testInstance, stub.codeImportRequested)
	require.Empty(testInstance, stub.createdRecipes)
}

func TestDeleteByRecipeName(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.master.latest", SelfLink: "master-link"},
		{Name: "charm-nova-compute.stable-yoga.yoga", SelfLink: "yoga-link"},
	}
	service := NewService(stub, zap.NewNop())

	deletedNames, deleteError := service.Delete(context.Background(), testProject(), DeleteOptions{RecipeName: "charm-nova-compute.master.latest"})
	require.NoError(testInstance, deleteError)
	require.Equal(testInstance, []string{"charm-nova-compute.master.latest"}, deletedNames)
	require.Equal(testInstance, []string{"master-link"}, stub.deletedRecipeLinks)
}

func TestDeleteByMissingRecipeNameFails(testInstance *testing.T) {
	stub := newStubAPI()
	service := NewService(stub, zap.NewNop())

	_, deleteError := service.Delete(context.Background(), testProject(), DeleteOptions{RecipeName: "absent"})
	var notFoundError launchpad.RecipeNotFoundError
	require.True(testInstance, errors.As(deleteError, &notFoundError))
}

func TestDeleteByTrackAndBranchSelectors(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.master.latest", SelfLink: "master-link"},
		{Name: "charm-nova-compute.stable-yoga.yoga", SelfLink: "yoga-link"},
	}
	service := NewService(stub, zap.NewNop())

	deletedNames, deleteError := service.Delete(context.Background(), testProject(), DeleteOptions{Track: "yoga"})
	require.NoError(testInstance, deleteError)
	require.Equal(testInstance, []string{"charm-nova-compute.stable-yoga.yoga"}, deletedNames)
	require.Equal(testInstance, []string{"yoga-link"}, stub.deletedRecipeLinks)
}

func TestDeleteDryRunReportsWithoutDeleting(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.master.latest", SelfLink: "master-link"},
	}
	service := NewService(stub, zap.NewNop())

	deletedNames, deleteError := service.Delete(context.Background(), testProject(), DeleteOptions{Branch: "master", DryRun: true})
	require.NoError(testInstance, deleteError)
	require.Equal(testInstance, []string{"charm-nova-compute.master.latest"}, deletedNames)
	require.Empty(testInstance, stub.deletedRecipeLinks)
}

func TestBuildPlanForMissingRepositoryMarksBranchesMissing(testInstance *testing.T) {
	stub := newStubAPI()
	stub.repositoryMissing = true
	service := NewService(stub, zap.NewNop())

	plan, planError := service.BuildPlan(context.Background(), testProject(), nil)
	require.NoError(testInstance, planError)
	require.Empty(testInstance, plan.Actions)
	require.Equal(testInstance, []string{"refs/heads/master", "refs/heads/stable/yoga"}, plan.MissingBranches)
}

var _ LaunchpadAPI = (*stubLaunchpadAPI)(nil)
