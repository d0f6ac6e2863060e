// Package buildinfo reports the version of the crateindex binary.
//
// Release builds set the variables with ldflags:
//
//	go build -ldflags "-X github.com/matzehuels/crateindex/pkg/buildinfo.Version=v1.0.0 \
//	    -X github.com/matzehuels/crateindex/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/crateindex/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Without ldflags, [Read] falls back to the module version and VCS stamp the
// Go toolchain embeds ("go install ...@v1.2.3" or a build inside a git
// checkout).
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is the semantic version, "dev" when unset.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// Info is the resolved build information.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

var (
	once     sync.Once
	resolved Info
)

// Read returns the build information, filling fields left unset by ldflags
// from the embedded module data.
func Read() Info {
	once.Do(func() {
		resolved = Info{Version: Version, Commit: Commit, Date: Date}
		if bi, ok := debug.ReadBuildInfo(); ok {
			fill(&resolved, bi)
		}
	})
	return resolved
}

func fill(info *Info, bi *debug.BuildInfo) {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Date == "unknown":
			info.Date = s.Value
		}
	}
}

// String returns the formatted build information.
func String() string {
	i := Read()
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", i.Version, i.Commit, i.Date)
}

// Template returns the version template string for cobra.
func Template() string {
	i := Read()
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", i.Version, i.Commit, i.Date)
}
