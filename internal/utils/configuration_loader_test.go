package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstack-charmers/charm-recipe-tool/internal/utils"
)

type loaderTestConfiguration struct {
	Common struct {
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"common"`
	Groups struct {
		Directory string `mapstructure:"directory"`
	} `mapstructure:"groups"`
}

func TestLoadConfigurationAppliesDefaults(testInstance *testing.T) {
	loader := utils.NewConfigurationLoader("config", "yaml", "CHARMRECIPE", []string{testInstance.TempDir()})

	var configuration loaderTestConfiguration
	defaultValues := map[string]any{
		"common.log_level": "info",
		"groups.directory": ".",
	}

	metadata, loadError := loader.LoadConfiguration("", defaultValues, &configuration)
	require.NoError(testInstance, loadError)
	require.Empty(testInstance, metadata.ConfigFileUsed)
	require.Equal(testInstance, "info", configuration.Common.LogLevel)
	require.Equal(testInstance, ".", configuration.Groups.Directory)
}

func TestLoadConfigurationReadsExplicitFile(testInstance *testing.T) {
	configurationDirectory := testInstance.TempDir()
	configurationFile := filepath.Join(configurationDirectory, "custom.yaml")
	require.NoError(testInstance, os.WriteFile(configurationFile, []byte("common:\n  log_level: debug\n"), 0o644))

	loader := utils.NewConfigurationLoader("config", "yaml", "CHARMRECIPE", nil)

	var configuration loaderTestConfiguration
	metadata, loadError := loader.LoadConfiguration(configurationFile, map[string]any{"groups.directory": "."}, &configuration)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, configurationFile, metadata.ConfigFileUsed)
	require.Equal(testInstance, "debug", configuration.Common.LogLevel)
	require.Equal(testInstance, ".", configuration.Groups.Directory)
}

func TestUserConfigurationDirectoryHonorsXDGConfigHome(testInstance *testing.T) {
	xdgDirectory := testInstance.TempDir()
	testInstance.Setenv("XDG_CONFIG_HOME", xdgDirectory)

	resolvedDirectory := utils.UserConfigurationDirectory("charm-recipe-tool")
	require.Equal(testInstance, filepath.Join(xdgDirectory, "charm-recipe-tool"), resolvedDirectory)
}

func TestUserConfigurationDirectoryFallsBackToHome(testInstance *testing.T) {
	homeDirectory := testInstance.TempDir()
	testInstance.Setenv("XDG_CONFIG_HOME", "")
	testInstance.Setenv("HOME", homeDirectory)

	resolvedDirectory := utils.UserConfigurationDirectory("charm-recipe-tool")
	require.Equal(testInstance, filepath.Join(homeDirectory, ".config", "charm-recipe-tool"), resolvedDirectory)
}
