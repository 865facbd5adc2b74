package buildinfo

// Software is the name recorded in provenance annotations.
const Software = "omero-cli-transfer"

// These values are injected via ldflags for release binaries.
// They default to empty for local/dev builds.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// ToolVersion returns the version recorded in provenance annotations.
func ToolVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
