// Package version reports build information for browseiso.
package version

import (
	"fmt"
	"runtime"
)

// Program is the executable name printed with the version
const Program = "browseiso"

// Set via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the one-line version banner
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Program, Version, Commit, BuildTime, runtime.Version())
}
