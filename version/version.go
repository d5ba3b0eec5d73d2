// Package version carries build metadata, overridable at link time.
package version

var (
	// Version is the semantic version of this build.
	Version = "0.1.0"

	// Commit is the VCS revision this binary was built from.
	Commit = "unknown"

	// BuildDate is the date of the build.
	BuildDate = "unknown"
)

// GetVersion returns the semantic version.
func GetVersion() string {
	return Version
}

// GetBuildDate returns the build date.
func GetBuildDate() string {
	return BuildDate
}
