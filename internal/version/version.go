// Package version exposes build metadata set with -ldflags "-X".
package version

import "fmt"

//nolint:gochecknoglobals // overwritten by the linker
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the metadata for logs and the health endpoint.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}
