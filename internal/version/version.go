// Package version carries build metadata stamped in at link time.
package version

import "fmt"

// Overridden via -ldflags on release builds.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the version with its commit, for logs and --version output.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
