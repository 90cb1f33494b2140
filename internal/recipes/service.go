package recipes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const (
	vcsUpdateRetryAttemptsConstant = 5
	vcsUpdateRetryDelayConstant    = 5 * time.Second

	teamFieldConstant       = "team"
	projectFieldConstant    = "project"
	repositoryFieldConstant = "repository"
	recipeFieldConstant     = "recipe"
)

// LaunchpadAPI is the slice of the Launchpad web service the reconciliation
// service depends on.
type LaunchpadAPI interface {
	Person(executionContext context.Context, personName string) (*launchpad.Person, error)
	Project(executionContext context.Context, projectName string) (*launchpad.Project, error)
	DefaultGitRepository(executionContext context.Context, owner *launchpad.Person, project *launchpad.Project) (*launchpad.GitRepository, error)
	SetDefaultRepository(executionContext context.Context, project *launchpad.Project, repository *launchpad.GitRepository) error
	ImportRepository(executionContext context.Context, owner *launchpad.Person, project *launchpad.Project, upstreamURL string) (*launchpad.GitRepository, error)
	GitRefs(executionContext context.Context, repository *launchpad.GitRepository) ([]launchpad.GitRef, error)
	RequestCodeImport(executionContext context.Context, repository *launchpad.GitRepository) error
	CharmRecipes(executionContext context.Context, owner *launchpad.Person, project *launchpad.Project) ([]launchpad.CharmRecipe, error)
	CreateCharmRecipe(executionContext context.Context, arguments launchpad.CharmRecipeCreateArguments) (*launchpad.CharmRecipe, error)
	UpdateCharmRecipe(executionContext context.Context, recipeLink string, updatedFields map[string]any) error
	DeleteCharmRecipe(executionContext context.Context, recipeLink string) error
	SetProjectVCS(executionContext context.Context, project *launchpad.Project, vcsValue string) error
}

// Service reconciles group configuration projects against Launchpad.
type Service struct {
	launchpadAPI LaunchpadAPI
	logger       *zap.Logger
}

// NewService constructs a reconciliation service.
func NewService(launchpadAPI LaunchpadAPI, logger *zap.Logger) *Service {
	return &Service{launchpadAPI: launchpadAPI, logger: logger}
}

// ProjectContext bundles the Launchpad entities backing one configured
// project.
type ProjectContext struct {
	Configuration *groupconfig.Project
	Team          *launchpad.Person
	Project       *launchpad.Project
	Repository    *launchpad.GitRepository
}

// SyncOptions controls how a plan is applied.
type SyncOptions struct {
	DryRun        bool
	RemoveUnknown bool
	GitMirrorOnly bool
	BranchFilters []string
}

// DeleteOptions selects the recipes to delete from a project.
type DeleteOptions struct {
	RecipeName string
	Track      string
	Branch     string
	DryRun     bool
}

// ResolveProjectContext looks up the team, project, and owned git repository
// for one configured project. A missing repository is reported through
// launchpad.RepositoryNotFoundError so callers can decide whether to create
// one.
func (service *Service) ResolveProjectContext(executionContext context.Context, configuration *groupconfig.Project) (*ProjectContext, error) {
	team, teamError := service.launchpadAPI.Person(executionContext, configuration.Team)
	if teamError != nil {
		return nil, fmt.Errorf("resolving %s %s: %w", teamFieldConstant, configuration.Team, teamError)
	}

	launchpadProject, projectError := service.launchpadAPI.Project(executionContext, configuration.LaunchpadProject)
	if projectError != nil {
		return nil, fmt.Errorf("resolving %s %s: %w", projectFieldConstant, configuration.LaunchpadProject, projectError)
	}

	projectContext := &ProjectContext{Configuration: configuration, Team: team, Project: launchpadProject}

	repository, repositoryError := service.launchpadAPI.DefaultGitRepository(executionContext, team, launchpadProject)
	if repositoryError != nil {
		var notFoundError launchpad.RepositoryNotFoundError
		if errors.As(repositoryError, &notFoundError) {
			return projectContext, repositoryError
		}
		return nil, fmt.Errorf("resolving %s for %s: %w", repositoryFieldConstant, configuration.LaunchpadProject, repositoryError)
	}
	projectContext.Repository = repository
	return projectContext, nil
}

// EnsureGitRepository makes sure the project has a git repository owned by
// the team, imported from the configured upstream, marked as the project
// default, and that the project itself is set to the git VCS. Launchpad
// answers 412 while it settles a fresh repository, so the VCS update is
// retried.
func (service *Service) EnsureGitRepository(executionContext context.Context, projectContext *ProjectContext) error {
	if projectContext.Repository == nil {
		service.logger.Info("importing git repository",
			zap.String(projectFieldConstant, projectContext.Project.Name),
			zap.String("upstream", projectContext.Configuration.Repository))
		importedRepository, importError := service.launchpadAPI.ImportRepository(executionContext, projectContext.Team, projectContext.Project, projectContext.Configuration.Repository)
		if importError != nil {
			return fmt.Errorf("importing repository for %s: %w", projectContext.Project.Name, importError)
		}
		projectContext.Repository = importedRepository
	}

	if !projectContext.Repository.TargetDefault {
		if defaultError := service.launchpadAPI.SetDefaultRepository(executionContext, projectContext.Project, projectContext.Repository); defaultError != nil {
			service.logger.Warn("could not mark repository as project default",
				zap.String(projectFieldConstant, projectContext.Project.Name),
				zap.Error(defaultError))
		} else {
			projectContext.Repository.TargetDefault = true
		}
	}

	if projectContext.Project.VCS != launchpad.ProjectVCSGit {
		vcsUpdate := func(retryContext context.Context) error {
			updateError := service.launchpadAPI.SetProjectVCS(retryContext, projectContext.Project, launchpad.ProjectVCSGit)
			if launchpad.IsPreconditionFailed(updateError) {
				return retry.RetryableError(updateError)
			}
			return updateError
		}
		retryPolicy := retry.WithMaxRetries(vcsUpdateRetryAttemptsConstant, retry.NewConstant(vcsUpdateRetryDelayConstant))
		if updateError := retry.Do(executionContext, retryPolicy, vcsUpdate); updateError != nil {
			return fmt.Errorf("setting vcs for %s: %w", projectContext.Project.Name, updateError)
		}
		projectContext.Project.VCS = launchpad.ProjectVCSGit
	}
	return nil
}

// BuildPlan resolves the project context and computes the reconciliation
// plan. Projects whose repository does not exist yet produce a plan in which
// every configured branch is missing.
func (service *Service) BuildPlan(executionContext context.Context, configuration *groupconfig.Project, branchFilters []string) (*Plan, error) {
	projectContext, resolveError := service.ResolveProjectContext(executionContext, configuration)
	if resolveError != nil {
		var notFoundError launchpad.RepositoryNotFoundError
		if errors.As(resolveError, &notFoundError) {
			return computePlan(configuration, projectContext.Team, projectContext.Project, nil, nil, nil, branchFilters), nil
		}
		return nil, resolveError
	}
	return service.planForContext(executionContext, projectContext, branchFilters)
}

func (service *Service) planForContext(executionContext context.Context, projectContext *ProjectContext, branchFilters []string) (*Plan, error) {
	references, referencesError := service.launchpadAPI.GitRefs(executionContext, projectContext.Repository)
	if referencesError != nil {
		return nil, fmt.Errorf("listing references for %s: %w", projectContext.Repository.Name, referencesError)
	}

	liveRecipes, recipesError := service.launchpadAPI.CharmRecipes(executionContext, projectContext.Team, projectContext.Project)
	if recipesError != nil {
		return nil, fmt.Errorf("listing recipes for %s: %w", projectContext.Project.Name, recipesError)
	}

	return computePlan(projectContext.Configuration, projectContext.Team, projectContext.Project, projectContext.Repository, references, liveRecipes, branchFilters), nil
}

// Sync reconciles one configured project, creating and updating recipes so
// Launchpad matches the configuration. With DryRun set the plan is computed
// and reported but nothing is written.
func (service *Service) Sync(executionContext context.Context, configuration *groupconfig.Project, options SyncOptions) (*Plan, error) {
	projectContext, resolveError := service.ResolveProjectContext(executionContext, configuration)
	if resolveError != nil {
		var notFoundError launchpad.RepositoryNotFoundError
		if !errors.As(resolveError, &notFoundError) {
			return nil, resolveError
		}
		if options.DryRun {
			service.logger.Info("would import git repository",
				zap.String(projectFieldConstant, configuration.LaunchpadProject),
				zap.String("upstream", configuration.Repository))
			return computePlan(configuration, projectContext.Team, projectContext.Project, nil, nil, nil, options.BranchFilters), nil
		}
	}

	if !options.DryRun {
		if ensureError := service.EnsureGitRepository(executionContext, projectContext); ensureError != nil {
			return nil, ensureError
		}
	}

	plan, planError := service.planForContext(executionContext, projectContext, options.BranchFilters)
	if planError != nil {
		return nil, planError
	}

	if options.GitMirrorOnly {
		if !options.DryRun && len(projectContext.Repository.CodeImportLink) > 0 {
			if importError := service.launchpadAPI.RequestCodeImport(executionContext, projectContext.Repository); importError != nil {
				service.logger.Warn("could not request code import run",
					zap.String(repositoryFieldConstant, projectContext.Repository.Name),
					zap.Error(importError))
			}
		}
		return plan, nil
	}

	if applyError := service.applyPlan(executionContext, plan, options); applyError != nil {
		return plan, applyError
	}
	return plan, nil
}

func (service *Service) applyPlan(executionContext context.Context, plan *Plan, options SyncOptions) error {
	for actionIndex := range plan.Actions {
		action := &plan.Actions[actionIndex]
		switch {
		case !action.Exists:
			if options.DryRun {
				service.logger.Info("would create recipe", zap.String(recipeFieldConstant, action.RecipeName))
				continue
			}
			if createError := service.createRecipe(executionContext, plan, action); createError != nil {
				return createError
			}
		case action.Changed:
			if options.DryRun {
				service.logger.Info("would update recipe",
					zap.String(recipeFieldConstant, action.RecipeName),
					zap.Strings("changes", action.Changes))
				continue
			}
			service.logger.Info("updating recipe",
				zap.String(recipeFieldConstant, action.RecipeName),
				zap.Strings("changes", action.Changes))
			if updateError := service.launchpadAPI.UpdateCharmRecipe(executionContext, action.CurrentRecipe.SelfLink, action.UpdatedFields); updateError != nil {
				return fmt.Errorf("updating recipe %s: %w", action.RecipeName, updateError)
			}
		}
	}

	if options.RemoveUnknown {
		for _, unknownRecipe := range plan.UnknownRecipes {
			if options.DryRun {
				service.logger.Info("would delete unknown recipe", zap.String(recipeFieldConstant, unknownRecipe.Name))
				continue
			}
			service.logger.Info("deleting unknown recipe", zap.String(recipeFieldConstant, unknownRecipe.Name))
			if deleteError := service.launchpadAPI.DeleteCharmRecipe(executionContext, unknownRecipe.SelfLink); deleteError != nil {
				return fmt.Errorf("deleting recipe %s: %w", unknownRecipe.Name, deleteError)
			}
		}
	}
	return nil
}

func (service *Service) createRecipe(executionContext context.Context, plan *Plan, action *RecipeAction) error {
	storeChannels := action.StoreChannels
	if !action.Specification.Upload {
		storeChannels = nil
	}
	service.logger.Info("creating recipe",
		zap.String(recipeFieldConstant, action.RecipeName),
		zap.String("branch", action.BranchReference.Path),
		zap.Strings("store_channels", storeChannels))

	createdRecipe, createError := service.launchpadAPI.CreateCharmRecipe(executionContext, launchpad.CharmRecipeCreateArguments{
		Name:              action.RecipeName,
		Owner:             plan.Team,
		Project:           plan.LaunchpadProject,
		GitRef:            &action.BranchReference,
		StoreName:         plan.Project.CharmhubName,
		AutoBuild:         action.Specification.AutoBuild,
		AutoBuildChannels: action.Specification.BuildChannels,
		BuildPath:         action.Specification.BuildPath,
		StoreUpload:       action.Specification.Upload,
		StoreChannels:     storeChannels,
	})
	if createError != nil {
		return fmt.Errorf("creating recipe %s: %w", action.RecipeName, createError)
	}
	action.CurrentRecipe = createdRecipe
	action.Exists = true
	action.Changed = false
	action.UpdatedFields = nil
	action.Changes = nil
	return nil
}

// Delete removes recipes from a project. A recipe name selects exactly one
// recipe and wins over track and branch selectors; otherwise every recipe
// whose planned name matches the selectors is deleted.
func (service *Service) Delete(executionContext context.Context, configuration *groupconfig.Project, options DeleteOptions) ([]string, error) {
	projectContext, resolveError := service.ResolveProjectContext(executionContext, configuration)
	if resolveError != nil {
		return nil, resolveError
	}

	liveRecipes, recipesError := service.launchpadAPI.CharmRecipes(executionContext, projectContext.Team, projectContext.Project)
	if recipesError != nil {
		return nil, fmt.Errorf("listing recipes for %s: %w", projectContext.Project.Name, recipesError)
	}

	selectedRecipes, selectError := selectRecipesForDeletion(projectContext, liveRecipes, options)
	if selectError != nil {
		return nil, selectError
	}

	deletedNames := make([]string, 0, len(selectedRecipes))
	for _, recipe := range selectedRecipes {
		if options.DryRun {
			service.logger.Info("would delete recipe", zap.String(recipeFieldConstant, recipe.Name))
			deletedNames = append(deletedNames, recipe.Name)
			continue
		}
		service.logger.Info("deleting recipe", zap.String(recipeFieldConstant, recipe.Name))
		if deleteError := service.launchpadAPI.DeleteCharmRecipe(executionContext, recipe.SelfLink); deleteError != nil {
			return deletedNames, fmt.Errorf("deleting recipe %s: %w", recipe.Name, deleteError)
		}
		deletedNames = append(deletedNames, recipe.Name)
	}
	return deletedNames, nil
}

func selectRecipesForDeletion(projectContext *ProjectContext, liveRecipes []launchpad.CharmRecipe, options DeleteOptions) ([]launchpad.CharmRecipe, error) {
	if len(options.RecipeName) > 0 {
		for _, recipe := range liveRecipes {
			if recipe.Name == options.RecipeName {
				return []launchpad.CharmRecipe{recipe}, nil
			}
		}
		return nil, launchpad.RecipeNotFoundError{
			RecipeName:  options.RecipeName,
			ProjectName: projectContext.Project.Name,
			OwnerName:   projectContext.Team.Name,
		}
	}

	matchingNames := make(map[string]bool)
	for referencePath, specification := range projectContext.Configuration.Branches {
		if len(options.Branch) > 0 && groupconfig.BranchName(referencePath) != options.Branch {
			continue
		}
		for _, trackGroup := range trackGroupsForSpecification(specification) {
			if len(options.Track) > 0 && trackGroup.Track != options.Track {
				continue
			}
			matchingNames[groupconfig.RecipeName(specification.RecipeTemplate, projectContext.Project.Name, referencePath, trackGroup.Track)] = true
		}
	}

	selectedRecipes := make([]launchpad.CharmRecipe, 0)
	for _, recipe := range liveRecipes {
		if matchingNames[recipe.Name] {
			selectedRecipes = append(selectedRecipes, recipe)
		}
	}
	return selectedRecipes, nil
}
