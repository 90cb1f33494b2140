package recipes

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

func newTestCommandBuilder(stub *stubLaunchpadAPI, outputBuffer *bytes.Buffer) *CommandBuilder {
	return &CommandBuilder{
		LoggerProvider: zap.NewNop,
		GroupConfigurationProvider: func() (*groupconfig.GroupConfig, error) {
			groupConfiguration := groupconfig.NewGroupConfig()
			if addError := groupConfiguration.AddProject(testProject()); addError != nil {
				return nil, addError
			}
			return groupConfiguration, nil
		},
		LaunchpadAPIProvider: func() (LaunchpadAPI, error) {
			return stub, nil
		},
		SelectionProvider: func() (Selection, error) {
			return Selection{Format: OutputFormatPlain}, nil
		},
		OutputWriter: outputBuffer,
	}
}

func TestDiffCommandReportsPendingCreations(testInstance *testing.T) {
	stub := newStubAPI()
	outputBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, outputBuffer)

	diffCommand, buildError := builder.BuildDiffCommand()
	require.NoError(testInstance, buildError)
	diffCommand.SetArgs([]string{})
	require.NoError(testInstance, diffCommand.Execute())

	require.Contains(testInstance, outputBuffer.String(), "+ create charm-nova-compute.master.latest")
	require.Contains(testInstance, outputBuffer.String(), "+ create charm-nova-compute.stable-yoga.yoga")
	require.Empty(testInstance, stub.createdRecipes)
}

func TestDiffCommandDetailGatesFieldChanges(testInstance *testing.T) {
	driftedRecipes := []launchpad.CharmRecipe{
		{
			SelfLink:      "master-recipe-link",
			Name:          "charm-nova-compute.master.latest",
			AutoBuild:     false,
			StoreChannels: []string{"latest/edge"},
			StoreUpload:   true,
		},
	}

	stub := newStubAPI()
	stub.recipes = driftedRecipes
	summaryBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, summaryBuffer)

	diffCommand, buildError := builder.BuildDiffCommand()
	require.NoError(testInstance, buildError)
	diffCommand.SetArgs([]string{})
	require.NoError(testInstance, diffCommand.Execute())

	require.Contains(testInstance, summaryBuffer.String(), "~ update charm-nova-compute.master.latest (1 changes)")
	require.NotContains(testInstance, summaryBuffer.String(), "recipe.auto_build = true")

	detailStub := newStubAPI()
	detailStub.recipes = driftedRecipes
	detailBuffer := &bytes.Buffer{}
	detailBuilder := newTestCommandBuilder(detailStub, detailBuffer)

	detailCommand, detailBuildError := detailBuilder.BuildDiffCommand()
	require.NoError(testInstance, detailBuildError)
	detailCommand.SetArgs([]string{"--detail"})
	require.NoError(testInstance, detailCommand.Execute())

	require.Contains(testInstance, detailBuffer.String(), "~ update charm-nova-compute.master.latest\n")
	require.Contains(testInstance, detailBuffer.String(), "recipe.auto_build = true")
}

func TestSyncCommandDefaultsToDryRun(testInstance *testing.T) {
	stub := newStubAPI()
	outputBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, outputBuffer)

	syncCommand, buildError := builder.BuildSyncCommand()
	require.NoError(testInstance, buildError)
	syncCommand.SetArgs([]string{})
	require.NoError(testInstance, syncCommand.Execute())

	require.Empty(testInstance, stub.createdRecipes)
	require.Contains(testInstance, outputBuffer.String(), "+ create charm-nova-compute.master.latest")
}

func TestSyncCommandAppliesWhenConfirmed(testInstance *testing.T) {
	stub := newStubAPI()
	outputBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, outputBuffer)

	syncCommand, buildError := builder.BuildSyncCommand()
	require.NoError(testInstance, buildError)
	syncCommand.SetArgs([]string{"--i-really-mean-it"})
	require.NoError(testInstance, syncCommand.Execute())

	require.Len(testInstance, stub.createdRecipes, 2)
}

func TestDeleteCommandRequiresSelector(testInstance *testing.T) {
	stub := newStubAPI()
	builder := newTestCommandBuilder(stub, &bytes.Buffer{})

	deleteCommand, buildError := builder.BuildDeleteCommand()
	require.NoError(testInstance, buildError)
	deleteCommand.SilenceUsage = true
	deleteCommand.SilenceErrors = true
	deleteCommand.SetArgs([]string{})
	require.Error(testInstance, deleteCommand.Execute())
}

func TestDeleteCommandDryRunReportsRecipes(testInstance *testing.T) {
	stub := newStubAPI()
	stub.recipes = []launchpad.CharmRecipe{
		{Name: "charm-nova-compute.master.latest", SelfLink: "master-link"},
	}
	outputBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, outputBuffer)

	deleteCommand, buildError := builder.BuildDeleteCommand()
	require.NoError(testInstance, buildError)
	deleteCommand.SetArgs([]string{"--name", "charm-nova-compute.master.latest"})
	require.NoError(testInstance, deleteCommand.Execute())

	require.Contains(testInstance, outputBuffer.String(), "would delete charm-nova-compute.master.latest")
	require.Empty(testInstance, stub.deletedRecipeLinks)
}

func TestListCommandRendersTable(testInstance *testing.T) {
	stub := newStubAPI()
	outputBuffer := &bytes.Buffer{}
	builder := newTestCommandBuilder(stub, outputBuffer)

	listCommand, buildError := builder.BuildListCommand()
	require.NoError(testInstance, buildError)
	listCommand.SetArgs([]string{})
	require.NoError(testInstance, listCommand.Execute())

	require.Contains(testInstance, outputBuffer.String(), "charm-nova-compute.master.latest")
	require.Contains(testInstance, outputBuffer.String(), "stable/yoga")
}
