// Package version reports the hulybridge build version.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/hulybridge"

// buildVersion is set via -ldflags "-X pkt.systems/hulybridge/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the ldflags version, the module version recorded in the
// build info, a VCS pseudo-version, or "v0.0.0-unknown" in that order.
func Current() string {
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
	if v := pseudoVersion(info.Settings); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

// Module returns the main module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// UserAgent is sent on every outbound HTTP and websocket request.
func UserAgent() string {
	return "hulybridge/" + Current()
}

func pseudoVersion(settings []debug.BuildSetting) string {
	vcs := make(map[string]string, len(settings))
	for _, s := range settings {
		vcs[s.Key] = s.Value
	}
	revision, stamp := vcs["vcs.revision"], vcs["vcs.time"]
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
	ver := "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
	if vcs["vcs.modified"] == "true" {
		ver += "+dirty"
	}
	return ver
}
