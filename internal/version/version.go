// Package version reports the build version of the fluxusb binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/fluxusb/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/fluxusb/internal/version.Commit=abc123"
//
// Unset values are filled from the module build info on first use.
var (
	Version = ""
	Commit  = ""
)

// Info describes one build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Modified  bool   `json:"modified"`
	GoVersion string `json:"go_version"`
}

var (
	once  sync.Once
	build Info
)

// Get returns the build info, resolving fallbacks once.
func Get() Info {
	once.Do(func() {
		build = resolve(Version, Commit, debug.ReadBuildInfo)
	})
	return build
}

func resolve(ver, commit string, read func() (*debug.BuildInfo, bool)) Info {
	info := Info{Version: ver, Commit: commit, GoVersion: runtime.Version()}

	if bi, ok := read(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
					if len(info.Commit) > 7 {
						info.Commit = info.Commit[:7]
					}
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	return info
}

// String returns the version with its commit.
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (commit: %s, %s)", i.Version, commit, i.GoVersion)
}

// Full returns the full version string including commit
func Full() string {
	return Get().String()
}
