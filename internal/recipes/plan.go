package recipes

import (
	"fmt"
	"sort"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const (
	recipeFieldAutoBuild              = "auto_build"
	recipeFieldAutoBuildChannels      = "auto_build_channels"
	recipeFieldBuildPath              = "build_path"
	recipeFieldStoreChannels          = "store_channels"
	recipeFieldStoreUpload            = "store_upload"
	changeDescriptionTemplateConstant = "recipe.%s = %v"
)

// RecipeAction is the planned state for one (branch, track) recipe.
type RecipeAction struct {
	RecipeName      string
	Exists          bool
	Changed         bool
	Filtered        bool
	CurrentRecipe   *launchpad.CharmRecipe
	UpdatedFields   map[string]any
	Changes         []string
	BranchReference launchpad.GitRef
	Specification   groupconfig.BranchSpecification
	StoreChannels   []string
}

// Plan captures the reconciliation outcome for one charm project.
type Plan struct {
	Project              *groupconfig.Project
	LaunchpadProject     *launchpad.Project
	Team                 *launchpad.Person
	Repository           *launchpad.GitRepository
	Actions              []RecipeAction
	UnknownRecipes       []launchpad.CharmRecipe
	MissingBranches      []string
	UnconfiguredBranches []string
}

// HasChanges reports whether applying the plan would touch Launchpad.
func (plan *Plan) HasChanges() bool {
	for _, action := range plan.Actions {
		if action.Filtered {
			continue
		}
		if !action.Exists || action.Changed {
			return true
		}
	}
	return false
}

// ActionByName returns the action planned under the given recipe name.
func (plan *Plan) ActionByName(recipeName string) (RecipeAction, bool) {
	for _, action := range plan.Actions {
		if action.RecipeName == recipeName {
			return action, true
		}
	}
	return RecipeAction{}, false
}

// computePlan reconciles the configured branches against the repository
// references and live recipes. Recipe names are claimed before branch
// filtering is applied so filtered branches never surrender their recipes to
// the unknown set.
func computePlan(
	project *groupconfig.Project,
	team *launchpad.Person,
	launchpadProject *launchpad.Project,
	repository *launchpad.GitRepository,
	references []launchpad.GitRef,
	liveRecipes []launchpad.CharmRecipe,
	branchFilters []string,
) *Plan {
	plan := &Plan{
		Project:          project,
		LaunchpadProject: launchpadProject,
		Team:             team,
		Repository:       repository,
	}

	recipesByName := make(map[string]*launchpad.CharmRecipe, len(liveRecipes))
	for recipeIndex := range liveRecipes {
		recipesByName[liveRecipes[recipeIndex].Name] = &liveRecipes[recipeIndex]
	}

	sortedReferences := append([]launchpad.GitRef(nil), references...)
	sort.Slice(sortedReferences, func(leftIndex, rightIndex int) bool {
		return sortedReferences[leftIndex].Path < sortedReferences[rightIndex].Path
	})

	mentionedReferences := make(map[string]bool, len(sortedReferences))
	for _, reference := range sortedReferences {
		mentionedReferences[reference.Path] = true

		specification, branchConfigured := project.Branches[reference.Path]
		if !branchConfigured {
			plan.UnconfiguredBranches = append(plan.UnconfiguredBranches, reference.Path)
			continue
		}

		filtered := !specification.Enabled || excludedByFilters(reference.Path, branchFilters)

		trackGroups := trackGroupsForSpecification(specification)
		for _, trackGroup := range trackGroups {
			recipeName := groupconfig.RecipeName(specification.RecipeTemplate, launchpadProject.Name, reference.Path, trackGroup.Track)

			currentRecipe := recipesByName[recipeName]
			delete(recipesByName, recipeName)

			if filtered {
				continue
			}

			action := RecipeAction{
				RecipeName:      recipeName,
				BranchReference: reference,
				Specification:   specification,
				StoreChannels:   trackGroup.Channels,
				CurrentRecipe:   currentRecipe,
			}
			if currentRecipe != nil {
				action.Exists = true
				action.UpdatedFields, action.Changes = diffRecipe(currentRecipe, specification, trackGroup.Channels)
				action.Changed = len(action.Changes) > 0
			}
			plan.Actions = append(plan.Actions, action)
		}
	}

	for referencePath := range project.Branches {
		if !mentionedReferences[referencePath] {
			plan.MissingBranches = append(plan.MissingBranches, referencePath)
		}
	}
	sort.Strings(plan.MissingBranches)

	unknownNames := make([]string, 0, len(recipesByName))
	for recipeName := range recipesByName {
		unknownNames = append(unknownNames, recipeName)
	}
	sort.Strings(unknownNames)
	for _, recipeName := range unknownNames {
		plan.UnknownRecipes = append(plan.UnknownRecipes, *recipesByName[recipeName])
	}

	return plan
}

// trackGroupsForSpecification yields the recipe track groups for a branch. A
// branch that does not upload, or names no channels, still gets one recipe
// on the default track.
func trackGroupsForSpecification(specification groupconfig.BranchSpecification) []groupconfig.TrackGroup {
	if specification.Upload && len(specification.Channels) > 0 {
		return groupconfig.GroupChannelsByTrack(specification.Channels)
	}
	return []groupconfig.TrackGroup{{Track: "latest"}}
}

func excludedByFilters(referencePath string, branchFilters []string) bool {
	if len(branchFilters) == 0 {
		return false
	}
	branchName := groupconfig.BranchName(referencePath)
	for _, filterValue := range branchFilters {
		if filterValue == branchName {
			return false
		}
	}
	return true
}

// diffRecipe compares a live recipe with the desired specification and
// returns the web-service fields to patch plus human-readable change
// descriptions.
func diffRecipe(currentRecipe *launchpad.CharmRecipe, specification groupconfig.BranchSpecification, storeChannels []string) (map[string]any, []string) {
	desiredStoreChannels := storeChannels
	if !specification.Upload {
		desiredStoreChannels = nil
	}

	updatedFields := make(map[string]any)
	changes := make([]string, 0)

	appendChange := func(fieldName string, desiredValue any) {
		updatedFields[fieldName] = desiredValue
		changes = append(changes, fmt.Sprintf(changeDescriptionTemplateConstant, fieldName, desiredValue))
	}

	if currentRecipe.AutoBuild != specification.AutoBuild {
		appendChange(recipeFieldAutoBuild, specification.AutoBuild)
	}
	if !equalStringMaps(currentRecipe.AutoBuildChannels, specification.BuildChannels) {
		appendChange(recipeFieldAutoBuildChannels, specification.BuildChannels)
	}
	if currentRecipe.BuildPath != specification.BuildPath {
		appendChange(recipeFieldBuildPath, specification.BuildPath)
	}
	if !equalStringSlices(currentRecipe.StoreChannels, desiredStoreChannels) {
		appendChange(recipeFieldStoreChannels, desiredStoreChannels)
	}
	if currentRecipe.StoreUpload != specification.Upload {
		appendChange(recipeFieldStoreUpload, specification.Upload)
	}

	if len(changes) == 0 {
		return nil, nil
	}
	return updatedFields, changes
}

func equalStringSlices(leftValues []string, rightValues []string) bool {
	if len(leftValues) != len(rightValues) {
		return false
	}
	for valueIndex := range leftValues {
		if leftValues[valueIndex] != rightValues[valueIndex] {
			return false
		}
	}
	return true
}

func equalStringMaps(leftValues map[string]string, rightValues map[string]string) bool {
	if len(leftValues) != len(rightValues) {
		return false
	}
	for valueKey, leftValue := range leftValues {
		if rightValue, valuePresent := rightValues[valueKey]; !valuePresent || rightValue != leftValue {
			return false
		}
	}
	return true
}
