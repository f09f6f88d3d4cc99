// Package version reports the build of the running binary.
package version

import (
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/MeKo-Tech/regionseg/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

var (
	readOnce  sync.Once
	buildInfo *debug.BuildInfo
)

// Info returns the ldflags values, filling unset ones from the VCS stamp the
// Go toolchain embeds in module builds.
func Info() Build {
	readOnce.Do(func() {
		buildInfo, _ = debug.ReadBuildInfo()
	})
	return resolve(buildInfo)
}

func resolve(bi *debug.BuildInfo) Build {
	b := Build{Version: Version, Commit: GitCommit, Date: BuildDate}
	if bi == nil {
		return b
	}
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
