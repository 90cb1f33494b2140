// Package utils bundles shared infrastructure for the charm-recipe-tool CLI:
// a Viper-backed configuration loader honoring per-user configuration
// directory conventions and a zap logger factory with consistent encodings.
package utils
