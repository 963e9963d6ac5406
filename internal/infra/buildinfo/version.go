package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Set with -ldflags "-X github.com/yndnr/memkv/internal/infra/buildinfo.Version=v1.2.3".
// Commit and BuildTime fall back to the VCS stamp the go command embeds.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// fallbackServerVersion is written to snapshots by development builds.
const fallbackServerVersion = "5.0.0"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

var readInfo = sync.OnceValue(func() Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fromSettings(&info, bi.Settings)
	}
	if info.Commit == "" {
		info.Commit = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
})

// fromSettings fills fields ldflags left empty from vcs.* build settings.
func fromSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// Get returns the build information.
func Get() Info { return readInfo() }

// String is the --version text, e.g. "v1.2.3 (3f1c9a2e7b10, modified) 2026-01-02T15:04:05Z go1.24.11".
func String() string {
	info := Get()
	commit := info.Commit
	if info.Modified {
		commit += ", modified"
	}
	return info.Version + " (" + commit + ") " + info.BuildTime + " " + info.GoVersion
}

// ServerVersion returns the dotted version recorded in the redis-ver aux
// field of snapshots. Non-release builds report a fixed compatible version.
func ServerVersion() string {
	return serverVersion(Version)
}

func serverVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) != 3 {
		return fallbackServerVersion
	}
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return fallbackServerVersion
		}
	}
	return v
}
