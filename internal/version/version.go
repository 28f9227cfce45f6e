// Package version holds build metadata for the kleinsync binary, set with
// ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/kleinsync/internal/version.Version=1.0.0 ..." ./cmd/kleinsync
//
// Without ldflags the commit and build time fall back to the VCS stamp the
// go tool embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	Dirty     = "false"
	BuildDate = "unknown"
)

// Info is the structured form printed by `kleinsync version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata, filling unset fields from the VCS stamp.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	return withBuildSettings(info, readSettings())
}

func readSettings() map[string]string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}
	return settings
}

func withBuildSettings(info Info, settings map[string]string) Info {
	if info.Commit == "unknown" {
		if rev := settings["vcs.revision"]; rev != "" {
			info.Commit = rev
			info.Dirty = settings["vcs.modified"] == "true"
		}
	}
	if info.BuildDate == "unknown" {
		if at := settings["vcs.time"]; at != "" {
			info.BuildDate = at
		}
	}
	return info
}

// String returns the version, suffixed with -dirty for modified trees.
func String() string {
	return Get().short()
}

func (i Info) short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// Full returns a multi-line description.
func Full() string {
	return Get().full()
}

func (i Info) full() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "kleinsync %s\n", i.short())
	fmt.Fprintf(&sb, "  Commit:     %s\n", i.Commit)
	fmt.Fprintf(&sb, "  Built:      %s\n", i.BuildDate)
	fmt.Fprintf(&sb, "  Go version: %s\n", i.GoVersion)
	fmt.Fprintf(&sb, "  OS/Arch:    %s", i.Platform)
	return sb.String()
}
