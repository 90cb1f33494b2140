package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-recipe-tool/internal/authorize"
	"github.com/openstack-charmers/charm-recipe-tool/internal/builds"
	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
	"github.com/openstack-charmers/charm-recipe-tool/internal/recipes"
	"github.com/openstack-charmers/charm-recipe-tool/internal/utils"
)

const (
	applicationNameConstant                  = "charm-recipe-tool"
	applicationShortDescriptionConstant      = "Manage Launchpad charm recipes from declarative configuration"
	applicationLongDescriptionConstant       = "charm-recipe-tool reconciles the charm build recipes declared in group configuration files against the recipes that actually exist in Launchpad."
	configFileFlagNameConstant               = "config"
	configFileFlagUsageConstant              = "Optional path to a configuration file (YAML or JSON)."
	configDirFlagNameConstant                = "config-dir"
	configDirFlagUsageConstant               = "Directory holding the group configuration files."
	groupFlagNameConstant                    = "group"
	groupFlagShorthandConstant               = "p"
	groupFlagUsageConstant                   = "Only load the named configuration groups."
	charmFlagNameConstant                    = "charm"
	charmFlagShorthandConstant               = "c"
	charmFlagUsageConstant                   = "Only operate on the named charms."
	formatFlagNameConstant                   = "format"
	formatFlagShorthandConstant              = "f"
	formatFlagUsageConstant                  = "Output format (plain or json)."
	ignoreErrorsFlagNameConstant             = "ignore-errors"
	ignoreErrorsFlagShorthandConstant        = "i"
	ignoreErrorsFlagUsageConstant            = "Log per-charm errors and continue instead of aborting."
	logLevelFlagNameConstant                 = "log-level"
	logLevelFlagUsageConstant                = "Override the configured log level."
	logFormatFlagNameConstant                = "log-format"
	logFormatFlagUsageConstant               = "Override the configured log format (structured or console)."
	environmentPrefixConstant                = "CHARMRECIPE"
	configurationNameConstant                = "config"
	configurationTypeConstant                = "yaml"
	commonLogLevelConfigKeyConstant          = "common.log_level"
	commonLogFormatConfigKeyConstant         = "common.log_format"
	launchpadServiceRootConfigKeyConstant    = "launchpad.service_root"
	launchpadWebRootConfigKeyConstant        = "launchpad.web_root"
	groupsDirectoryConfigKeyConstant         = "groups.directory"
	defaultGroupsDirectoryConstant           = "."
	configurationLoadErrorTemplateConstant   = "unable to load configuration: %w"
	commandRegistrationErrorTemplateConstant = "unable to register commands: %w"
	loggerCreationErrorTemplateConstant      = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant          = "unable to flush logger: %w"
	defaultOutputFormatConstant              = string(recipes.OutputFormatPlain)
)

// ApplicationConfiguration describes the persisted configuration for the CLI
// entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration    `mapstructure:"common"`
	Launchpad ApplicationLaunchpadConfiguration `mapstructure:"launchpad"`
	Groups    ApplicationGroupsConfiguration    `mapstructure:"groups"`
}

// ApplicationCommonConfiguration stores logging configuration shared across
// commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationLaunchpadConfiguration points the tool at a Launchpad instance.
type ApplicationLaunchpadConfiguration struct {
	ServiceRoot string `mapstructure:"service_root"`
	WebRoot     string `mapstructure:"web_root"`
}

// ApplicationGroupsConfiguration locates the group configuration files.
type ApplicationGroupsConfiguration struct {
	Directory string `mapstructure:"directory"`
}

// Application wires the Cobra root command, configuration loader, Launchpad
// client, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	commandBuildError     error
	configDirFlagValue    string
	groupFlagValues       []string
	charmFlagValues       []string
	formatFlagValue       string
	ignoreErrorsFlagValue bool
	logLevelFlagValue     string
	logFormatFlagValue    string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	searchPaths := []string{defaultGroupsDirectoryConstant}
	if userConfigDirectory := utils.UserConfigurationDirectory(applicationNameConstant); len(userConfigDirectory) > 0 {
		searchPaths = append(searchPaths, userConfigDirectory)
	}
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		searchPaths,
	)

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetContext(context.Background())
	persistentFlags := cobraCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	persistentFlags.StringVar(&application.configDirFlagValue, configDirFlagNameConstant, "", configDirFlagUsageConstant)
	persistentFlags.StringSliceVarP(&application.groupFlagValues, groupFlagNameConstant, groupFlagShorthandConstant, nil, groupFlagUsageConstant)
	persistentFlags.StringSliceVarP(&application.charmFlagValues, charmFlagNameConstant, charmFlagShorthandConstant, nil, charmFlagUsageConstant)
	persistentFlags.StringVarP(&application.formatFlagValue, formatFlagNameConstant, formatFlagShorthandConstant, defaultOutputFormatConstant, formatFlagUsageConstant)
	persistentFlags.BoolVarP(&application.ignoreErrorsFlagValue, ignoreErrorsFlagNameConstant, ignoreErrorsFlagShorthandConstant, false, ignoreErrorsFlagUsageConstant)
	persistentFlags.StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	application.registerRecipeCommands(cobraCommand)
	application.registerBuildCommands(cobraCommand)
	application.registerAuthorizeCommands(cobraCommand)

	application.rootCommand = cobraCommand

	return application
}

// RootCommand exposes the assembled Cobra root command.
func (application *Application) RootCommand() *cobra.Command {
	return application.rootCommand
}

// Execute runs the configured Cobra command hierarchy and ensures logger
// flushing. A command builder failure recorded during assembly aborts the run
// instead of silently leaving the command out.
func (application *Application) Execute() error {
	if application.commandBuildError != nil {
		return fmt.Errorf(commandRegistrationErrorTemplateConstant, application.commandBuildError)
	}
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command
// hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) registerRecipeCommands(rootCommand *cobra.Command) {
	recipeBuilder := recipes.CommandBuilder{
		LoggerProvider:             application.loggerProvider,
		GroupConfigurationProvider: application.loadGroupConfiguration,
		LaunchpadAPIProvider: func() (recipes.LaunchpadAPI, error) {
			return application.launchpadClient()
		},
		SelectionProvider: func() (recipes.Selection, error) {
			outputFormat, formatError := recipes.ParseOutputFormat(application.formatFlagValue)
			if formatError != nil {
				return recipes.Selection{}, formatError
			}
			return recipes.Selection{
				CharmSelectors: application.charmFlagValues,
				Format:         outputFormat,
				IgnoreErrors:   application.ignoreErrorsFlagValue,
			}, nil
		},
		OutputWriter: rootCommand.OutOrStdout(),
	}

	application.registerCommands(rootCommand, []func() (*cobra.Command, error){
		recipeBuilder.BuildShowCommand,
		recipeBuilder.BuildListCommand,
		recipeBuilder.BuildDiffCommand,
		recipeBuilder.BuildSyncCommand,
		recipeBuilder.BuildDeleteCommand,
	})
}

func (application *Application) registerBuildCommands(rootCommand *cobra.Command) {
	buildBuilder := builds.CommandBuilder{
		LoggerProvider:             application.loggerProvider,
		GroupConfigurationProvider: application.loadGroupConfiguration,
		LaunchpadAPIProvider: func() (builds.LaunchpadAPI, error) {
			return application.launchpadClient()
		},
		SelectionProvider: func() (builds.Selection, error) {
			outputFormat, formatError := recipes.ParseOutputFormat(application.formatFlagValue)
			if formatError != nil {
				return builds.Selection{}, formatError
			}
			return builds.Selection{
				CharmSelectors: application.charmFlagValues,
				JSONOutput:     outputFormat == recipes.OutputFormatJSON,
				IgnoreErrors:   application.ignoreErrorsFlagValue,
			}, nil
		},
		OutputWriter: rootCommand.OutOrStdout(),
	}

	application.registerCommands(rootCommand, []func() (*cobra.Command, error){
		buildBuilder.BuildCheckCommand,
		buildBuilder.BuildRequestCommand,
	})
}

func (application *Application) registerAuthorizeCommands(rootCommand *cobra.Command) {
	authorizeBuilder := authorize.CommandBuilder{
		LoggerProvider:             application.loggerProvider,
		GroupConfigurationProvider: application.loadGroupConfiguration,
		LaunchpadAPIProvider: func() (authorize.LaunchpadAPI, error) {
			return application.launchpadClient()
		},
		LoginAPIProvider: func() (authorize.LoginAPI, error) {
			return application.launchpadClient()
		},
		CredentialStoreProvider: func() launchpad.CredentialStore {
			return launchpad.NewKeyringCredentialStore(utils.UserConfigurationDirectory(applicationNameConstant))
		},
		SelectionProvider: func() (authorize.Selection, error) {
			outputFormat, formatError := recipes.ParseOutputFormat(application.formatFlagValue)
			if formatError != nil {
				return authorize.Selection{}, formatError
			}
			return authorize.Selection{
				CharmSelectors: application.charmFlagValues,
				JSONOutput:     outputFormat == recipes.OutputFormatJSON,
				IgnoreErrors:   application.ignoreErrorsFlagValue,
			}, nil
		},
		OutputWriter: rootCommand.OutOrStdout(),
	}

	application.registerCommands(rootCommand, []func() (*cobra.Command, error){
		authorizeBuilder.BuildAuthorizeCommand,
		authorizeBuilder.BuildLoginCommand,
	})
}

// registerCommands attaches every successfully built command to the root and
// records the first builder failure for Execute to report.
func (application *Application) registerCommands(rootCommand *cobra.Command, commandBuilds []func() (*cobra.Command, error)) {
	for _, buildCommand := range commandBuilds {
		builtCommand, buildError := buildCommand()
		if buildError != nil {
			if application.commandBuildError == nil {
				application.commandBuildError = buildError
			}
			continue
		}
		rootCommand.AddCommand(builtCommand)
	}
}

func (application *Application) loggerProvider() *zap.Logger {
	return application.logger
}

// loadGroupConfiguration discovers and loads the selected group files from
// the configured directory.
func (application *Application) loadGroupConfiguration() (*groupconfig.GroupConfig, error) {
	configurationDirectory := application.configuration.Groups.Directory
	if len(strings.TrimSpace(application.configDirFlagValue)) > 0 {
		configurationDirectory = application.configDirFlagValue
	}
	if len(strings.TrimSpace(configurationDirectory)) == 0 {
		configurationDirectory = defaultGroupsDirectoryConstant
	}

	groupFiles, discoverError := groupconfig.DiscoverGroupFiles(configurationDirectory, application.groupFlagValues)
	if discoverError != nil {
		return nil, discoverError
	}

	groupConfiguration := groupconfig.NewGroupConfig()
	if loadError := groupConfiguration.LoadFiles(groupFiles); loadError != nil {
		return nil, loadError
	}
	return groupConfiguration, nil
}

// launchpadClient builds the web-service client. Reads work anonymously;
// stored credentials are attached when present so mutating operations can
// authenticate.
func (application *Application) launchpadClient() (*launchpad.Client, error) {
	clientOptions := []launchpad.ClientOption{launchpad.WithLogger(application.logger)}
	if len(application.configuration.Launchpad.ServiceRoot) > 0 {
		clientOptions = append(clientOptions, launchpad.WithServiceRoot(application.configuration.Launchpad.ServiceRoot))
	}
	if len(application.configuration.Launchpad.WebRoot) > 0 {
		clientOptions = append(clientOptions, launchpad.WithWebRoot(application.configuration.Launchpad.WebRoot))
	}

	credentialStore := launchpad.NewKeyringCredentialStore(utils.UserConfigurationDirectory(applicationNameConstant))
	credentials, credentialsError := credentialStore.Load()
	switch {
	case credentialsError == nil:
		clientOptions = append(clientOptions, launchpad.WithCredentials(credentials))
	case errors.Is(credentialsError, launchpad.ErrCredentialsMissing):
		application.logger.Debug("no stored launchpad credentials, proceeding anonymously")
	default:
		return nil, credentialsError
	}

	return launchpad.NewClient(clientOptions...), nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:       string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant:      string(utils.LogFormatStructured),
		launchpadServiceRootConfigKeyConstant: launchpad.DefaultServiceRoot,
		launchpadWebRootConfigKeyConstant:     launchpad.DefaultWebRoot,
		groupsDirectoryConfigKeyConstant:      defaultGroupsDirectoryConstant,
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}
	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}
	application.logger = logger

	return nil
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}
		if flagSet.Changed(flagName) {
			return true
		}
	}
	return false
}
