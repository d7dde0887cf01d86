// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (set by build flags)
	Version = "dev"

	// GitCommit is the git commit hash (set by build flags)
	GitCommit = "unknown"

	// BuildDate is the build timestamp (set by build flags)
	BuildDate = "unknown"

	// GoVersion is the Go version used to build
	GoVersion = runtime.Version()
)

// Platform is the GOOS/GOARCH pair the binary runs on; code generation
// and prologue analysis depend on it.
func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

// String renders a one-line version banner.
func String() string {
	return fmt.Sprintf("hookchain %s (commit %s, built %s, %s, %s)", Version, GitCommit, BuildDate, GoVersion, Platform())
}
