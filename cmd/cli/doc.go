// Package cli assembles the charm-recipe-tool command hierarchy, wiring the
// configuration loader, structured logger, and Launchpad client into the
// subcommand builders.
package cli
