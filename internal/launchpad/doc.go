// Package launchpad implements a client for the Launchpad web service API
// (https://api.launchpad.net/devel/). It covers the subset of the API the
// recipe tooling needs: people and teams, projects, git repositories and
// their references, code imports, charm recipes, and charm recipe builds.
//
// Requests are signed with OAuth 1.0a PLAINTEXT signatures the way Launchpad
// expects them. Credentials are obtained through the interactive
// request-token/access-token exchange and persisted in the system keyring,
// with a file fallback for hosts without one. Read-only operations work
// anonymously when no credentials are stored.
package launchpad
