// Package version holds the build-time identification of the binary,
// injected via -ldflags.
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
