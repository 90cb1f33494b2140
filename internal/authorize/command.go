package authorize

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const (
	authorizeCommandUseConstant         = "authorize"
	authorizeCommandShortConstant       = "Authorize recipes to upload to Charmhub"
	authorizeCommandLongConstant        = "authorize opens the Charmhub authorization page of each recipe that cannot upload to the store yet. With --force every recipe is re-authorized."
	loginCommandUseConstant             = "login"
	loginCommandShortConstant           = "Log in to Launchpad and store the OAuth token"
	unexpectedArgumentsTemplateConstant = "%s does not accept positional arguments"
	commandFailureTemplateConstant      = "%s failed: %w"
	flagForceNameConstant               = "force"
	flagForceDescriptionConstant        = "Re-authorize recipes that can already upload"
	jsonIndentConstant                  = "  "
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// GroupConfigurationProvider loads the group configuration selected by the
// global flags.
type GroupConfigurationProvider func() (*groupconfig.GroupConfig, error)

// LaunchpadAPIProvider supplies the Launchpad web-service client.
type LaunchpadAPIProvider func() (LaunchpadAPI, error)

// LoginAPIProvider supplies the OAuth token flow client.
type LoginAPIProvider func() (LoginAPI, error)

// CredentialStoreProvider supplies the credential store used by login.
type CredentialStoreProvider func() launchpad.CredentialStore

// Selection carries the global charm and output selectors.
type Selection struct {
	CharmSelectors []string
	JSONOutput     bool
	IgnoreErrors   bool
}

// SelectionProvider resolves the global selection flags.
type SelectionProvider func() (Selection, error)

// CommandBuilder assembles the authorize and login commands.
type CommandBuilder struct {
	LoggerProvider             LoggerProvider
	GroupConfigurationProvider GroupConfigurationProvider
	LaunchpadAPIProvider       LaunchpadAPIProvider
	LoginAPIProvider           LoginAPIProvider
	CredentialStoreProvider    CredentialStoreProvider
	SelectionProvider          SelectionProvider
	BrowserOpener              BrowserOpener
	OutputWriter               io.Writer
}

// BuildAuthorizeCommand constructs the authorize command.
func (builder *CommandBuilder) BuildAuthorizeCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   authorizeCommandUseConstant,
		Short: authorizeCommandShortConstant,
		Long:  authorizeCommandLongConstant,
		RunE:  builder.runAuthorize,
	}
	command.Flags().Bool(flagForceNameConstant, false, flagForceDescriptionConstant)
	return command, nil
}

// BuildLoginCommand constructs the login command.
func (builder *CommandBuilder) BuildLoginCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   loginCommandUseConstant,
		Short: loginCommandShortConstant,
		RunE:  builder.runLogin,
	}
	return command, nil
}

func (builder *CommandBuilder) runAuthorize(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, authorizeCommandUseConstant)
	}

	force, _ := command.Flags().GetBool(flagForceNameConstant)

	selection, selectionError := builder.resolveSelection()
	if selectionError != nil {
		return selectionError
	}

	groupConfiguration, configurationError := builder.GroupConfigurationProvider()
	if configurationError != nil {
		return configurationError
	}

	launchpadAPI, clientError := builder.LaunchpadAPIProvider()
	if clientError != nil {
		return clientError
	}

	logger := builder.resolveLogger()
	service := NewService(launchpadAPI, builder.resolveBrowser(), logger)
	options := AuthorizeOptions{Force: force}

	outcomes := make([]AuthorizationOutcome, 0)
	for _, project := range groupConfiguration.Projects(selection.CharmSelectors) {
		projectOutcomes, projectError := service.AuthorizeRecipes(command.Context(), project, options)
		outcomes = append(outcomes, projectOutcomes...)
		if projectError != nil {
			if selection.IgnoreErrors {
				logger.Warn("skipping project after error",
					zap.String("project", project.LaunchpadProject),
					zap.Error(projectError))
				continue
			}
			return fmt.Errorf(commandFailureTemplateConstant, authorizeCommandUseConstant, projectError)
		}
	}

	return builder.renderOutcomes(selection, outcomes)
}

func (builder *CommandBuilder) runLogin(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf(unexpectedArgumentsTemplateConstant, loginCommandUseConstant)
	}

	loginAPI, clientError := builder.LoginAPIProvider()
	if clientError != nil {
		return clientError
	}

	service := NewService(nil, builder.resolveBrowser(), builder.resolveLogger())
	loginError := service.Login(command.Context(), loginAPI, builder.CredentialStoreProvider())
	if loginError != nil {
		return fmt.Errorf(commandFailureTemplateConstant, loginCommandUseConstant, loginError)
	}
	return nil
}

func (builder *CommandBuilder) renderOutcomes(selection Selection, outcomes []AuthorizationOutcome) error {
	outputWriter := builder.resolveOutputWriter()
	if selection.JSONOutput {
		encoder := json.NewEncoder(outputWriter)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(outcomes)
	}
	for _, outcome := range outcomes {
		switch {
		case outcome.Skipped:
			fmt.Fprintf(outputWriter, "%s: %s\n", outcome.Recipe, outcome.Reason)
		case outcome.Authorized:
			fmt.Fprintf(outputWriter, "%s: authorization page opened\n", outcome.Recipe)
		default:
			fmt.Fprintf(outputWriter, "%s: not authorized (%s)\n", outcome.Recipe, outcome.Reason)
		}
	}
	return nil
}

func (builder *CommandBuilder) resolveBrowser() BrowserOpener {
	if builder.BrowserOpener != nil {
		return builder.BrowserOpener
	}
	return browser.OpenURL
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
