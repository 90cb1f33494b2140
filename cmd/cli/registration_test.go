package cli

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestRegisterCommandsSurfacesBuilderFailures(testInstance *testing.T) {
	application := &Application{}
	rootCommand := &cobra.Command{Use: "root"}
	builderFailure := errors.New("flag table misconfigured")

	application.registerCommands(rootCommand, []func() (*cobra.Command, error){
		func() (*cobra.Command, error) { return &cobra.Command{Use: "healthy"}, nil },
		func() (*cobra.Command, error) { return nil, builderFailure },
	})

	require.Len(testInstance, rootCommand.Commands(), 1)
	require.ErrorIs(testInstance, application.commandBuildError, builderFailure)

	executionError := application.Execute()
	require.ErrorIs(testInstance, executionError, builderFailure)
}

func TestNewApplicationRecordsNoBuilderFailures(testInstance *testing.T) {
	require.NoError(testInstance, NewApplication().commandBuildError)
}
