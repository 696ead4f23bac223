// Package version exposes build metadata injected through -ldflags, e.g.
//
//	-X github.com/orbit-cli/orbit/pkg/version.Version=v1.2.0
package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is reported by `orbit version` and GET /api/version.
type BuildInfo struct {
	Version   string     `json:"version"`
	GitCommit string     `json:"gitCommit"`
	BuildDate string     `json:"buildDate"`
	GoVersion string     `json:"goVersion"`
	Platform  string     `json:"platform"`
	BuildTime *time.Time `json:"buildTime,omitempty"`
}

func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		info.BuildTime = &t
	}
	return info
}

// UserAgent identifies a component in outgoing HTTP requests, e.g. "orbit/v1.2.0".
func UserAgent(component string) string {
	return fmt.Sprintf("%s/%s", component, Version)
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}
