package version

import (
	"fmt"
	"runtime"

	goversion "github.com/hashicorp/go-version"
)

var (
	// Version is the CLI version, overridden at build time.
	Version = "0.1.0"
	// GitCommit is the git commit hash.
	GitCommit = "unknown"
	// BuildDate is the build date.
	BuildDate = "unknown"
)

// Info holds version information for the running binary.
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns version information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a one-line version string.
func (i Info) String() string {
	return fmt.Sprintf("sqlward version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns the detailed multi-line form.
func (i Info) FullString() string {
	return fmt.Sprintf(`sqlward version %s
Git Commit: %s
Build Date: %s
Platform:   %s
Go Version: %s`, i.Version, i.GitCommit, i.BuildDate, i.Platform, i.GoVersion)
}

// IsOlderThan reports whether the running version is older than other.
// Development builds ("dev") never report as outdated.
func (i Info) IsOlderThan(other string) (bool, error) {
	if i.Version == "dev" {
		return false, nil
	}
	current, err := goversion.NewVersion(i.Version)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	latest, err := goversion.NewVersion(other)
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	return current.LessThan(latest), nil
}
