package recipes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
)

const (
	showCommandUseConstant              = "show"
	showCommandShortConstant            = "Show the resolved recipe configuration of the selected charms"
	listCommandUseConstant              = "list"
	listCommandShortConstant            = "List the recipes the configuration defines and whether they exist"
	diffCommandUseConstant              = "diff"
	diffCommandShortConstant            = "Show the differences between the configuration and Launchpad"
	syncCommandUseConstant              = "sync"
	syncCommandShortConstant            = "Reconcile Launchpad recipes with the configuration"
	syncCommandLongConstant             = "sync creates missing recipes and updates drifted ones so Launchpad matches the group configuration. Without --i-really-mean-it the command only reports what it would do."
	deleteCommandUseConstant            = "delete"
	deleteCommandShortConstant          = "Delete recipes from Launchpad"
	deleteCommandLongConstant           = "delete removes recipes selected by --name, or by --track and --git-branch. Without --i-really-mean-it the command only reports what it would delete."
	unexpectedArgumentsTemplateConstant = "%s does not accept positional arguments"
	commandFailureTemplateConstant      = "%s failed: %w"
	flagConfirmNameConstant             = "i-really-mean-it"
	flagConfirmDescriptionConstant      = "Apply the changes instead of reporting them"
	flagRemoveUnknownNameConstant       = "remove-unknown"
	flagRemoveUnknownDescConstant       = "Delete recipes that exist in Launchpad but not in the configuration"
	flagGitMirrorOnlyNameConstant       = "git-mirror-only"
	flagGitMirrorOnlyDescConstant       = "Only ensure the git repository mirror, leave recipes untouched"
	flagGitBranchNameConstant           = "git-branch"
	flagGitBranchShorthandConstant      = "b"
	flagGitBranchDescriptionConstant    = "Restrict the operation to the named branches"
	flagDetailNameConstant              = "detail"
	flagDetailDescriptionConstant       = "List the individual field changes of drifted recipes"
	flagRecipeNameConstant              = "name"
	flagRecipeNameDescConstant          = "Name of the recipe to delete"
	flagTrackNameConstant               = "track"
	flagTrackDescriptionConstant        = "Restrict the operation to recipes of this track"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// GroupConfigurationProvider loads the group configuration selected by the
// global flags.
type GroupConfigurationProvider func() (*groupconfig.GroupConfig, error)

// LaunchpadAPIProvider supplies the Launchpad web-service client.
type LaunchpadAPIProvider func() (LaunchpadAPI, error)

// Selection carries the global charm and output selectors.
type Selection struct {
	CharmSelectors []string
	Format         OutputFormat
	IgnoreErrors   bool
}

// SelectionProvider resolves the global selection flags.
type SelectionProvider func() (Selection, error)

// CommandBuilder assembles the recipe reconciliation commands.
type CommandBuilder struct {
	LoggerProvider             LoggerProvider
	GroupConfigurationProvider GroupConfigurationProvider
	LaunchpadAPIProvider       LaunchpadAPIProvider
	SelectionProvider          SelectionProvider
	OutputWriter               io.Writer
}

// BuildShowCommand constructs the show command.
func (builder *CommandBuilder) BuildShowCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   showCommandUseConstant,
		Short: showCommandShortConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.runReport(command, arguments, showCommandUseConstant, nil, RenderShow)
		},
	}
	return command, nil
}

// BuildListCommand constructs the list command.
func (builder *CommandBuilder) BuildListCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   listCommandUseConstant,
		Short: listCommandShortConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.runReport(command, arguments, listCommandUseConstant, nil, RenderList)
		},
	}
	return command, nil
}

// BuildDiffCommand constructs the diff command.
func (builder *CommandBuilder) BuildDiffCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   diffCommandUseConstant,
		Short: diffCommandShortConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			branchFilters, _ := command.Flags().GetStringSlice(flagGitBranchNameConstant)
			detail, _ := command.Flags().GetBool(flagDetailNameConstant)
			return builder.runReport(command, arguments, diffCommandUseConstant, branchFilters, func(outputWriter io.Writer, plans []*Plan, format OutputFormat) error {
				return RenderDiff(outputWriter, plans, format, detail)
			})
		},
	}
	command.Flags().StringSliceP(flagGitBranchNameConstant, flagGitBranchShorthandConstant, nil, flagGitBranchDescriptionConstant)
	command.Flags().Bool(flagDetailNameConstant, false, flagDetailDescriptionConstant)
	return command, nil
}

// BuildSyncCommand constructs the sync command.
func (builder *CommandBuilder) BuildSyncCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   syncCommandUseConstant,
		Short: syncCommandShortConstant,
		Long:  syncCommandLongConstant,
		RunE:  builder.runSync,
	}
	command.Flags().Bool(flagConfirmNameConstant, false, flagConfirmDescriptionConstant)
	command.Flags().Bool(flagRemoveUnknownNameConstant, false, flagRemoveUnknownDescConstant)
	command.Flags().Bool(flagGitMirrorOnlyNameConstant, false, flagGitMirrorOnlyDescConstant)
	command.Flags().StringSliceP(flagGitBranchNameConstant, flagGitBranchShorthandConstant, nil, flagGitBranchDescriptionConstant)
	return command, nil
}

// BuildDeleteCommand constructs the delete command.
func (builder *CommandBuilder) BuildDeleteCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   deleteCommandUseConstant,
		Short: deleteCommandShortConstant,
		Long:  deleteCommandLongConstant,
		RunE:  builder.runDelete,
	}
	command.Flags().Bool(flagConfirmNameConstant, false, flagConfirmDescriptionConstant)
	command.Flags().String(flagRecipeNameConstant, "", flagRecipeNameDescConstant)
	command.Flags().String(flagTrackNameConstant, "", flagTrackDescriptionConstant)
	command.Flags().StringP(flagGitBranchNameConstant, flagGitBranchShorthandConstant, "", flagGitBranchDescriptionConstant)
	return command, nil
}

type renderFunction func(outputWriter io.Writer, plans []*Plan, format OutputFormat) error

func (builder *CommandBuilder) runReport(command *cobra.Command, arguments []string, commandName string, branchFilters []string, render renderFunction) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, commandName)
	}

	service, selection, projects, setupError := builder.prepare()
	if setupError != nil {
		return setupError
	}

	plans := make([]*Plan, 0, len(projects))
	collectError := forEachProject(command.Context(), builder.resolveLogger(), selection, projects, func(executionContext context.Context, project *groupconfig.Project) error {
		plan, planError := service.BuildPlan(executionContext, project, branchFilters)
		if planError != nil {
			return planError
		}
		plans = append(plans, plan)
		return nil
	})
	if collectError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, commandName, collectError)
	}

	return render(builder.resolveOutputWriter(), plans, selection.Format)
}

func (builder *CommandBuilder) runSync(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, syncCommandUseConstant)
	}

	confirmed, _ := command.Flags().GetBool(flagConfirmNameConstant)
	removeUnknown, _ := command.Flags().GetBool(flagRemoveUnknownNameConstant)
	gitMirrorOnly, _ := command.Flags().GetBool(flagGitMirrorOnlyNameConstant)
	branchFilters, _ := command.Flags().GetStringSlice(flagGitBranchNameConstant)

	service, selection, projects, setupError := builder.prepare()
	if setupError != nil {
		return setupError
	}

	options := SyncOptions{
		DryRun:        !confirmed,
		RemoveUnknown: removeUnknown,
		GitMirrorOnly: gitMirrorOnly,
		BranchFilters: branchFilters,
	}

	plans := make([]*Plan, 0, len(projects))
	syncError := forEachProject(command.Context(), builder.resolveLogger(), selection, projects, func(executionContext context.Context, project *groupconfig.Project) error {
		plan, planError := service.Sync(executionContext, project, options)
		if plan != nil {
			plans = append(plans, plan)
		}
		return planError
	})
	if syncError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, syncCommandUseConstant, syncError)
	}

	if options.DryRun {
		return RenderDiff(builder.resolveOutputWriter(), plans, selection.Format, true)
	}
	return nil
}

func (builder *CommandBuilder) runDelete(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, deleteCommandUseConstant)
	}

	confirmed, _ := command.Flags().GetBool(flagConfirmNameConstant)
	recipeName, _ := command.Flags().GetString(flagRecipeNameConstant)
	trackName, _ := command.Flags().GetString(flagTrackNameConstant)
	branchName, _ := command.Flags().GetString(flagGitBranchNameConstant)

	if len(recipeName) == 0 && len(trackName) == 0 && len(branchName) == 0 {
		return errors.New("delete requires --name, --track, or --git-branch")
	}

	service, selection, projects, setupError := builder.prepare()
	if setupError != nil {
		return setupError
	}

	options := DeleteOptions{
		RecipeName: recipeName,
		Track:      trackName,
		Branch:     branchName,
		DryRun:     !confirmed,
	}

	outputWriter := builder.resolveOutputWriter()
	deleteError := forEachProject(command.Context(), builder.resolveLogger(), selection, projects, func(executionContext context.Context, project *groupconfig.Project) error {
		deletedNames, projectDeleteError := service.Delete(executionContext, project, options)
		for _, deletedName := range deletedNames {
			if options.DryRun {
				fmt.Fprintf(outputWriter, "would delete %s\n", deletedName)
			} else {
				fmt.Fprintf(outputWriter, "deleted %s\n", deletedName)
			}
		}
		return projectDeleteError
	})
	if deleteError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, deleteCommandUseConstant, deleteError)
	}
	return nil
}

func (builder *CommandBuilder) prepare() (*Service, Selection, []*groupconfig.Project, error) {
	selection, selectionError := builder.resolveSelection()
	if selectionError != nil {
		return nil, Selection{}, nil, selectionError
	}

	groupConfiguration, configurationError := builder.GroupConfigurationProvider()
	if configurationError != nil {
		return nil, Selection{}, nil, configurationError
	}

	launchpadAPI, clientError := builder.LaunchpadAPIProvider()
	if clientError != nil {
		return nil, Selection{}, nil, clientError
	}

	service := NewService(launchpadAPI, builder.resolveLogger())
	return service, selection, groupConfiguration.Projects(selection.CharmSelectors), nil
}

// forEachProject runs the callback per project. When the selection asks for
// errors to be ignored, a failing project is logged and skipped instead of
// aborting the run.
func forEachProject(executionContext context.Context, logger *zap.Logger, selection Selection, projects []*groupconfig.Project, callback func(context.Context, *groupconfig.Project) error) error {
	for _, project := range projects {
		callbackError := callback(executionContext, project)
		if callbackError == nil {
			continue
		}
		if selection.IgnoreErrors {
			logger.Warn("skipping project after error",
				zap.String("project", project.LaunchpadProject),
				zap.Error(callbackError))
			continue
		}
		return callbackError
	}
	return nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveSelection() (Selection, error) {
	if builder.SelectionProvider == nil {
		return Selection{Format: OutputFormatPlain}, nil
	}
	return builder.SelectionProvider()
}

func (builder *CommandBuilder) resolveOutputWriter() io.Writer {
	if builder.OutputWriter != nil {
		return builder.OutputWriter
	}
	return os.Stdout
}
