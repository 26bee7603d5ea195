// Package version carries build metadata stamped by the release build:
//
//	go build -ldflags "-X github.com/banshee-data/walkpal/internal/version.Version=v0.3.0 ..."
package version

import "fmt"

// Stamped at link time. The zero build reports dev/unknown.
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String is the --version line shared by walkpal and walkpal-tools.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
