package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X github.com/weatherd/weatherd/internal/version.Version=1.2.0 ..."
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the build metadata reported on startup and by the status API.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the build metadata of the running binary.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

// String formats the version for the startup banner.
func (i Info) String() string {
	if i.Version == "dev" {
		return fmt.Sprintf("dev (commit: %s)", i.Commit)
	}
	return fmt.Sprintf("%s (commit: %s, built %s)", i.Version, i.Commit, i.BuildDate)
}
