// Package version exposes the build identity of the binary.
package version

import "strings"

// All values below are placeholders until the linker stamps them:
//
//	go build -ldflags "-X github.com/hrygo/mnemosyne/internal/version.Version=0.3.0 \
//	  -X github.com/hrygo/mnemosyne/internal/version.GitCommit=$(git rev-parse HEAD) \
//	  -X github.com/hrygo/mnemosyne/internal/version.GitBranch=$(git rev-parse --abbrev-ref HEAD) \
//	  -X github.com/hrygo/mnemosyne/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the release tag without the leading v.
	Version = "0.0.0-dev"

	// DevVersion identifies non-release builds. Nightly pipelines may
	// stamp it separately; by default it tracks Version.
	DevVersion = Version

	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

// GetCurrentVersion returns the version the instance reports for the
// given run mode.
func GetCurrentVersion(mode string) string {
	if mode == "prod" {
		return Version
	}
	return DevVersion
}

// String is the single-line form shown by --version: the version,
// suffixed with the short commit when one was stamped.
func String() string {
	if c := shortCommit(); c != "" {
		return Version + "-" + c
	}
	return Version
}

// StringFull renders every stamped field, for the startup log.
func StringFull() string {
	parts := []string{"Version=" + Version}
	if c := shortCommit(); c != "" {
		parts = append(parts, "Commit="+c)
	}
	if stamped(GitBranch) {
		parts = append(parts, "Branch="+GitBranch)
	}
	if stamped(BuildTime) {
		parts = append(parts, "BuildTime="+BuildTime)
	}
	return strings.Join(parts, " ")
}

func shortCommit() string {
	if !stamped(GitCommit) {
		return ""
	}
	if len(GitCommit) > 8 {
		return GitCommit[:8]
	}
	return GitCommit
}

func stamped(v string) bool {
	return v != "" && v != "unknown"
}
