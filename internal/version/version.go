package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/hermes"

// buildVersion is set via -ldflags "-X pkt.systems/hermes/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Module    string
	Version   string
	GoVersion string
	Dirty     bool
}

// Current returns the best available version string without the dirty suffix.
func Current() string {
	return strings.TrimSuffix(resolve(), "+dirty")
}

// Read collects the build metadata reported by `hermes version`.
func Read() Info {
	v := resolve()
	return Info{
		Module:    Module(),
		Version:   strings.TrimSuffix(v, "+dirty"),
		GoVersion: runtime.Version(),
		Dirty:     strings.HasSuffix(v, "+dirty"),
	}
}

func (i Info) String() string {
	v := i.Version
	if i.Dirty {
		v += " (modified)"
	}
	return fmt.Sprintf("%s %s %s", i.Module, v, i.GoVersion)
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

func resolve() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if v := pseudoFromBuildInfo(info); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

// pseudoFromBuildInfo derives a Go pseudo-version from VCS stamps.
func pseudoFromBuildInfo(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	var revision, stamp string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			stamp = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if modified {
		v += "+dirty"
	}
	return v
}
