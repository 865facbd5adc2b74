package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/buildinfo"
)

const defaultModulePath = "github.com/ome/omero-cli-transfer"

type versionInfo struct {
	Version    string `json:"version"`
	ModulePath string `json:"module_path"`
	Commit     string `json:"commit,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show omero-transfer version and build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := currentVersionInfo()
		if isJSONOutput() {
			outputSuccess(info, nil)
			return nil
		}

		fmt.Printf("omero-transfer %s (%s, %s)\n", info.Version, info.GoVersion, info.Platform)
		if info.Commit != "" {
			modified := ""
			if info.Modified {
				modified = ", modified"
			}
			fmt.Printf("commit %s %s%s\n", info.Commit, info.CommitTime, modified)
		}
		return nil
	},
}

// currentVersionInfo prefers the module build info and falls back to the
// values injected with ldflags.
func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:    buildinfo.ToolVersion(),
		ModulePath: defaultModulePath,
		Commit:     buildinfo.Commit,
		CommitTime: buildinfo.Date,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}

	bi, ok := readBuildInfo()
	if !ok || bi == nil {
		return info
	}
	settings := map[string]string{}
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}

	if bi.Main.Path != "" {
		info.ModulePath = bi.Main.Path
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	if settings["GOOS"] != "" && settings["GOARCH"] != "" {
		info.Platform = settings["GOOS"] + "/" + settings["GOARCH"]
	}
	if rev := settings["vcs.revision"]; rev != "" {
		info.Commit = rev
		info.CommitTime = settings["vcs.time"]
	}
	info.Modified = strings.EqualFold(settings["vcs.modified"], "true")
	return info
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
