// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

var (
	// These are set via ldflags at build time
	Version = "dev"
	Commit  = "unknown"
	Date    = ""
)

// Info returns a one-line version string.
func Info() string {
	s := fmt.Sprintf("ratedash %s (commit: %s", Version, Commit)
	if Date != "" {
		s += ", built: " + Date
	}
	return s + fmt.Sprintf(", %s/%s)", runtime.GOOS, runtime.GOARCH)
}
