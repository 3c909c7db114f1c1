// Package buildinfo exposes compile-time metadata shared across the server.
package buildinfo

var (
	// Version is the semantic version of the running build.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "none"
	// BuildDate records when the binary was produced.
	BuildDate = "unknown"
)
