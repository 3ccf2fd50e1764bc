// Package config holds build information for BlazeAlert.
//
// Set at build time:
//
//	go build -ldflags "-X github.com/good-yellow-bee/blazealert/pkg/config.Version=v1.2.0 \
//	  -X github.com/good-yellow-bee/blazealert/pkg/config.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/good-yellow-bee/blazealert/pkg/config.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package config

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the build information of the running binary.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// VersionString returns a formatted version string.
func VersionString() string {
	return fmt.Sprintf("blazealert %s (%s) built at %s with %s %s/%s",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with outgoing notification and trigger requests.
func UserAgent() string {
	return "BlazeAlert/" + Version
}
