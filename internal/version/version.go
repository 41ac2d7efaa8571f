// Package version holds build information for the yolsda binary, set with
// -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/yolsda-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/yolsda-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/yolsda-go/internal/version.BuildDate=2025-01-01"
package version

import "fmt"

// Version is the semantic version, "dev" for local builds.
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date.
var BuildDate = "unknown"

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("yolsda %s (commit %s, built %s)", Version, Commit, BuildDate)
}
