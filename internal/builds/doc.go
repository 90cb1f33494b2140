// Package builds inspects and requests charm recipe builds. It reports the
// newest build per series and architecture for the latest built revision,
// optionally scanning build logs for known failure markers, and can request
// fresh builds for recipes whose last build did not produce a usable
// artifact.
package builds
