package utils_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstack-charmers/charm-recipe-tool/internal/utils"
)

func TestCreateLoggerScenarios(testInstance *testing.T) {
	testCases := []struct {
		name         string
		logLevel     utils.LogLevel
		logFormat    utils.LogFormat
		expectFailed bool
	}{
		{name: "info_structured", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormatStructured},
		{name: "debug_console", logLevel: utils.LogLevelDebug, logFormat: utils.LogFormatConsole},
		{name: "warn_structured", logLevel: utils.LogLevelWarn, logFormat: utils.LogFormatStructured},
		{name: "error_console", logLevel: utils.LogLevelError, logFormat: utils.LogFormatConsole},
		{name: "unknown_level", logLevel: utils.LogLevel("verbose"), logFormat: utils.LogFormatStructured, expectFailed: true},
		{name: "unknown_format", logLevel: utils.LogLevelInfo, logFormat: utils.LogFormat("logfmt"), expectFailed: true},
	}

	factory := utils.NewLoggerFactory()
	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			logger, creationError := factory.CreateLogger(testCase.logLevel, testCase.logFormat)
			if testCase.expectFailed {
				require.Error(subTest, creationError)
				return
			}
			require.NoError(subTest, creationError)
			require.NotNil(subTest, logger)
		})
	}
}
