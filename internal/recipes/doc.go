// Package recipes reconciles the declared group configuration against the
// charm recipes that actually exist in Launchpad. It computes a plan per
// charm project (recipes to create, recipes whose fields drifted, recipes no
// configuration claims, branches the repository is missing) and applies that
// plan for the sync and delete commands, while show, list, and diff only
// report it.
package recipes
