// Package groupconfig loads and validates the YAML project-group
// configuration describing which git branches should have charm recipes, the
// channels those recipes publish to, and the Launchpad coordinates (team,
// project, repository) each charm lives under. Group files supply per-group
// defaults that are merged into every project before validation.
package groupconfig
