package builds

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
)

const (
	checkCommandUseConstant             = "check-builds"
	checkCommandShortConstant           = "Report the state of recipe builds"
	checkCommandLongConstant            = "check-builds reports the newest build per series and architecture for the latest revision of each recipe. With --detect-error the logs of failed builds are scanned for known failure markers."
	requestCommandUseConstant           = "request-build"
	requestCommandShortConstant         = "Request builds for recipes without a usable build"
	requestCommandLongConstant          = "request-build asks Launchpad to build recipes whose newest build failed or never ran. With --force builds are requested even when the last build is usable."
	unexpectedArgumentsTemplateConstant = "%s does not accept positional arguments"
	commandFailureTemplateConstant      = "%s failed: %w"
	flagArchNameConstant                = "arch"
	flagArchDescriptionConstant         = "Restrict the report to the named architectures"
	flagChannelNameConstant             = "channel"
	flagChannelDescriptionConstant      = "Restrict the operation to recipes publishing to these channels"
	flagDetectErrorNameConstant         = "detect-error"
	flagDetectErrorDescConstant         = "Scan the logs of failed builds for error markers"
	flagForceNameConstant               = "force"
	flagForceDescriptionConstant        = "Request builds even when the last build is usable"
	flagGitBranchNameConstant           = "git-branch"
	flagGitBranchShorthandConstant      = "b"
	flagGitBranchDescriptionConstant    = "Restrict the operation to recipes of the named branches"
	flagConfirmNameConstant             = "i-really-mean-it"
	flagConfirmDescriptionConstant      = "Request the builds instead of reporting what would be requested"
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
	JSONOutput     bool
	IgnoreErrors   bool
}

// SelectionProvider resolves the global selection flags.
type SelectionProvider func() (Selection, error)

// CommandBuilder assembles the build inspection commands.
type CommandBuilder struct {
	LoggerProvider             LoggerProvider
	GroupConfigurationProvider GroupConfigurationProvider
	LaunchpadAPIProvider       LaunchpadAPIProvider
	SelectionProvider          SelectionProvider
	OutputWriter               io.Writer
}

// BuildCheckCommand constructs the check-builds command.
func (builder *CommandBuilder) BuildCheckCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   checkCommandUseConstant,
		Short: checkCommandShortConstant,
		Long:  checkCommandLongConstant,
		RunE:  builder.runCheck,
	}
	command.Flags().StringSlice(flagArchNameConstant, nil, flagArchDescriptionConstant)
	command.Flags().StringSlice(flagChannelNameConstant, nil, flagChannelDescriptionConstant)
	command.Flags().Bool(flagDetectErrorNameConstant, false, flagDetectErrorDescConstant)
	return command, nil
}

// BuildRequestCommand constructs the request-build command.
func (builder *CommandBuilder) BuildRequestCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   requestCommandUseConstant,
		Short: requestCommandShortConstant,
		Long:  requestCommandLongConstant,
		RunE:  builder.runRequest,
	}
	command.Flags().StringSlice(flagChannelNameConstant, nil, flagChannelDescriptionConstant)
	command.Flags().StringSliceP(flagGitBranchNameConstant, flagGitBranchShorthandConstant, nil, flagGitBranchDescriptionConstant)
	command.Flags().Bool(flagForceNameConstant, false, flagForceDescriptionConstant)
	command.Flags().Bool(flagConfirmNameConstant, false, flagConfirmDescriptionConstant)
	return command, nil
}

func (builder *CommandBuilder) runCheck(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, checkCommandUseConstant)
	}

	architectures, _ := command.Flags().GetStringSlice(flagArchNameConstant)
	channels, _ := command.Flags().GetStringSlice(flagChannelNameConstant)
	detectErrors, _ := command.Flags().GetBool(flagDetectErrorNameConstant)

	service, selection, projects, setupError := builder.prepare()
	if setupError != nil {
		return setupError
	}

	options := CheckOptions{
		Architectures: architectures,
		Channels:      channels,
		DetectErrors:  detectErrors,
	}

	statuses := make([]BuildStatus, 0)
	checkError := builder.forEachProject(command.Context(), selection, projects, func(executionContext context.Context, project *groupconfig.Project) error {
		projectStatuses, projectError := service.Check(executionContext, project, options)
		if projectError != nil {
			return projectError
		}
		statuses = append(statuses, projectStatuses...)
		return nil
	})
	if checkError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, checkCommandUseConstant, checkError)
	}

	return RenderStatuses(builder.resolveOutputWriter(), statuses, selection.JSONOutput)
}

func (builder *CommandBuilder) runRequest(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, requestCommandUseConstant)
	}

	channels, _ := command.Flags().GetStringSlice(flagChannelNameConstant)
	branchFilters, _ := command.Flags().GetStringSlice(flagGitBranchNameConstant)
	force, _ := command.Flags().GetBool(flagForceNameConstant)
	confirmed, _ := command.Flags().GetBool(flagConfirmNameConstant)

	service, selection, projects, setupError := builder.prepare()
	if setupError != nil {
		return setupError
	}

	options := RequestOptions{
		Force:    force,
		Branches: branchFilters,
		Channels: channels,
		DryRun:   !confirmed,
	}

	results := make([]RequestResult, 0)
	requestError := builder.forEachProject(command.Context(), selection, projects, func(executionContext context.Context, project *groupconfig.Project) error {
		projectResults, projectError := service.Request(executionContext, project, options)
		results = append(results, projectResults...)
		return projectError
	})
	if requestError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, requestCommandUseConstant, requestError)
	}

	return RenderRequests(builder.resolveOutputWriter(), results, selection.JSONOutput)
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

func (builder *CommandBuilder) forEachProject(executionContext context.Context, selection Selection, projects []*groupconfig.Project, callback func(context.Context, *groupconfig.Project) error) error {
	logger := builder.resolveLogger()
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
		return Selection{}, nil
	}
	return builder.SelectionProvider()
}

func (builder *CommandBuilder) resolveOutputWriter() io.Writer {
	if builder.OutputWriter != nil {
		return builder.OutputWriter
	}
	return os.Stdout
}
