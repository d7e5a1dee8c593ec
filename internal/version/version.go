package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the alarm-push release, set with
	// -ldflags "-X github.com/oshokin/alarm-push/internal/version.Version=...".
	Version = "0.1.0"
	// Commit is the short git SHA of the build (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp (or "unknown").
	BuildTime = "unknown"
)

// Short returns only the release string.
func Short() string {
	return Version
}

// Full describes the build of an alarm-push binary on one line.
func Full() string {
	return fmt.Sprintf(
		"%s (commit %s, built %s, %s %s/%s)",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH,
	)
}

// Fields returns the build metadata as logger key-value pairs for startup lines.
func Fields() []any {
	return []any{"version", Version, "commit", Commit, "go", runtime.Version()}
}
