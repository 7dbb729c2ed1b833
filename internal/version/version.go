package version

// Version information, set at build time with -ldflags.
var (
	// Version is the current version of lokilog
	Version = "0.1.0-dev"
	// BuildDate is the date when the binary was built
	BuildDate = "undefined"
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "undefined"
)

// VersionInfo returns formatted version information
func VersionInfo() string {
	return "lokilog version " + Version + " (build: " + BuildDate + ", commit: " + CommitHash + ")"
}

// Fields returns the version information as a map, used by the /version
// endpoint and startup logging.
func Fields() map[string]interface{} {
	return map[string]interface{}{
		"version":    Version,
		"build_date": BuildDate,
		"commit":     CommitHash,
	}
}
