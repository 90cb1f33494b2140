package recipes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

func testProject() *groupconfig.Project {
	return &groupconfig.Project{
		Name:             "OpenStack Nova Compute",
		Team:             "openstack-charmers",
		CharmhubName:     "nova-compute",
		LaunchpadProject: "charm-nova-compute",
		Repository:       "https://opendev.org/openstack/charm-nova-compute",
		Branches: map[string]groupconfig.BranchSpecification{
			"refs/heads/master": {
				Channels:       []string{"latest/edge"},
				AutoBuild:      true,
				Upload:         true,
				RecipeTemplate: "{project}.{branch}.{track}",
				Enabled:        true,
			},
			"refs/heads/stable/yoga": {
				Channels:       []string{"yoga/edge", "yoga/stable"},
				AutoBuild:      true,
				Upload:         true,
				RecipeTemplate: "{project}.{branch}.{track}",
				Enabled:        true,
			},
		},
	}
}

func testLaunchpadEntities() (*launchpad.Person, *launchpad.Project, *launchpad.GitRepository) {
	team := &launchpad.Person{SelfLink: "team-link", Name: "openstack-charmers"}
	project := &launchpad.Project{SelfLink: "project-link", Name: "charm-nova-compute"}
	repository := &launchpad.GitRepository{SelfLink: "repository-link", Name: "charm-nova-compute"}
	return team, project, repository
}

func TestComputePlanCreatesMissingRecipes(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{
		{SelfLink: "ref-master", Path: "refs/heads/master"},
		{SelfLink: "ref-yoga", Path: "refs/heads/stable/yoga"},
	}

	plan := computePlan(testProject(), team, project, repository, references, nil, nil)

	require.Len(testInstance, plan.Actions, 2)
	require.True(testInstance, plan.HasChanges())

	masterAction, masterPresent := plan.ActionByName("charm-nova-compute.master.latest")
	require.True(testInstance, masterPresent)
	require.False(testInstance, masterAction.Exists)
	require.Equal(testInstance, []string{"latest/edge"}, masterAction.StoreChannels)

	yogaAction, yogaPresent := plan.ActionByName("charm-nova-compute.stable-yoga.yoga")
	require.True(testInstance, yogaPresent)
	require.Equal(testInstance, []string{"yoga/edge", "yoga/stable"}, yogaAction.StoreChannels)

	require.Empty(testInstance, plan.MissingBranches)
	require.Empty(testInstance, plan.UnknownRecipes)
}

func TestComputePlanDiffsExistingRecipes(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{{SelfLink: "ref-master", Path: "refs/heads/master"}}

	configuration := testProject()
	delete(configuration.Branches, "refs/heads/stable/yoga")

	liveRecipes := []launchpad.CharmRecipe{
		{
			SelfLink:      "recipe-link",
			Name:          "charm-nova-compute.master.latest",
			AutoBuild:     false,
			StoreChannels: []string{"latest/beta"},
			StoreUpload:   true,
		},
	}

	plan := computePlan(configuration, team, project, repository, references, liveRecipes, nil)

	require.Len(testInstance, plan.Actions, 1)
	action := plan.Actions[0]
	require.True(testInstance, action.Exists)
	require.True(testInstance, action.Changed)
	require.Equal(testInstance, true, action.UpdatedFields["auto_build"])
	require.Equal(testInstance, []string{"latest/edge"}, action.UpdatedFields["store_channels"])
	require.NotContains(testInstance, action.UpdatedFields, "store_upload")
	require.NotContains(testInstance, action.UpdatedFields, "build_path")
	require.Empty(testInstance, plan.UnknownRecipes)
}

func TestComputePlanInSyncRecipeHasNoChanges(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{{SelfLink: "ref-master", Path: "refs/heads/master"}}

	configuration := testProject()
	delete(configuration.Branches, "refs/heads/stable/yoga")

	liveRecipes := []launchpad.CharmRecipe{
		{
			Name:          "charm-nova-compute.master.latest",
			AutoBuild:     true,
			StoreChannels: []string{"latest/edge"},
			StoreUpload:   true,
		},
	}

	plan := computePlan(configuration, team, project, repository, references, liveRecipes, nil)

	require.Len(testInstance, plan.Actions, 1)
	require.False(testInstance, plan.Actions[0].Changed)
	require.False(testInstance, plan.HasChanges())
}

func TestComputePlanKeepsConfiguredChannelSpelling(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{{SelfLink: "ref-master", Path: "refs/heads/master"}}

	configuration := testProject()
	delete(configuration.Branches, "refs/heads/stable/yoga")
	masterSpecification := configuration.Branches["refs/heads/master"]
	masterSpecification.Channels = []string{"edge"}
	configuration.Branches["refs/heads/master"] = masterSpecification

	liveRecipes := []launchpad.CharmRecipe{
		{
			Name:          "charm-nova-compute.master.latest",
			AutoBuild:     true,
			StoreChannels: []string{"edge"},
			StoreUpload:   true,
		},
	}

	plan := computePlan(configuration, team, project, repository, references, liveRecipes, nil)

	require.Len(testInstance, plan.Actions, 1)
	require.Equal(testInstance, []string{"edge"}, plan.Actions[0].StoreChannels)
	require.False(testInstance, plan.Actions[0].Changed)
	require.False(testInstance, plan.HasChanges())
}

func TestComputePlanCollectsUnknownAndMissing(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{
		{SelfLink: "ref-master", Path: "refs/heads/master"},
		{SelfLink: "ref-train", Path: "refs/heads/stable/train"},
	}

	liveRecipes := []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.master.latest", AutoBuild: true, StoreChannels: []string{"latest/edge"}, StoreUpload: true},
		{Name: "hand-made-recipe"},
	}

	plan := computePlan(testProject(), team, project, repository, references, liveRecipes, nil)

	require.Equal(testInstance, []string{"refs/heads/stable/yoga"}, plan.MissingBranches)
	require.Equal(testInstance, []string{"refs/heads/stable/train"}, plan.UnconfiguredBranches)
	require.Len(testInstance, plan.UnknownRecipes, 1)
	require.Equal(testInstance, "hand-made-recipe", plan.UnknownRecipes[0].Name)
}

func TestComputePlanFilteredBranchesKeepTheirRecipes(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{
		{SelfLink: "ref-master", Path: "refs/heads/master"},
		{SelfLink: "ref-yoga", Path: "refs/heads/stable/yoga"},
	}

	liveRecipes := []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.stable-yoga.yoga"},
	}

	plan := computePlan(testProject(), team, project, repository, references, liveRecipes, []string{"master"})

	require.Len(testInstance, plan.Actions, 1)
	require.Equal(testInstance, "charm-nova-compute.master.latest", plan.Actions[0].RecipeName)
	// The filtered branch's recipe is claimed, not reported as unknown.
	require.Empty(testInstance, plan.UnknownRecipes)
}

func TestComputePlanDisabledBranchIsSkipped(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{{SelfLink: "ref-master", Path: "refs/heads/master"}}

	configuration := testProject()
	delete(configuration.Branches, "refs/heads/stable/yoga")
	masterSpecification := configuration.Branches["refs/heads/master"]
	masterSpecification.Enabled = false
	configuration.Branches["refs/heads/master"] = masterSpecification

	liveRecipes := []launchpad.CharmRecipe{{Name: "charm-nova-compute.master.latest"}}

	plan := computePlan(configuration, team, project, repository, references, liveRecipes, nil)

	require.Empty(testInstance, plan.Actions)
	require.Empty(testInstance, plan.UnknownRecipes)
	require.False(testInstance, plan.HasChanges())
}

func TestComputePlanNonUploadingBranchGetsSingleRecipe(testInstance *testing.T) {
	team, project, repository := testLaunchpadEntities()
	references := []launchpad.GitRef{{SelfLink: "ref-master", Path: "refs/heads/master"}}

	configuration := testProject()
	delete(configuration.Branches, "refs/heads/stable/yoga")
	masterSpecification := configuration.Branches["refs/heads/master"]
	masterSpecification.Upload = false
	configuration.Branches["refs/heads/master"] = masterSpecification

	plan := computePlan(configuration, team, project, repository, references, nil, nil)

	require.Len(testInstance, plan.Actions, 1)
	require.Equal(testInstance, "charm-nova-compute.master.latest", plan.Actions[0].RecipeName)
	require.Empty(testInstance, plan.Actions[0].StoreChannels)
}

func TestDiffRecipeTreatsNilAndEmptyCollectionsAsEqual(testInstance *testing.T) {
	currentRecipe := &launchpad.CharmRecipe{
		AutoBuild:         true,
		AutoBuildChannels: map[string]string{},
		StoreChannels:     []string{},
		StoreUpload:       false,
	}
	specification := groupconfig.BranchSpecification{AutoBuild: true, Upload: false}

	updatedFields, changes := diffRecipe(currentRecipe, specification, nil)
	require.Nil(testInstance, updatedFields)
	require.Nil(testInstance, changes)
}
