package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/config"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var configShowEnv bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show where the config file is read from and the values in effect after
environment variables and defaults are applied. Credentials are never shown.

Examples:
  omero-transfer config
  omero-transfer config --env`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, statErr := os.Stat(resolvedConfigPath)
		exists := statErr == nil

		var env string
		if configShowEnv {
			var err error
			env, err = config.EnvDescription()
			if err != nil {
				return handleError(ErrInternal, err, "")
			}
		}

		if isJSONOutput() {
			data := configData(resolvedConfigPath, exists, cfg)
			if configShowEnv {
				data["environment"] = env
			}
			outputSuccess(data, nil)
			return nil
		}

		state := "missing, defaults in use"
		if exists {
			state = "found"
		}
		fmt.Printf("%s %s %s\n\n", ui.Header("config:"), ui.FilePath(resolvedConfigPath), ui.Hint("("+state+")"))
		tbl := ui.NewTable(2)
		tbl.AddRow("server.driver", cfg.Server.Driver)
		tbl.AddRow("server.dsn", cfg.Server.DSN)
		tbl.AddRow("server.repository", cfg.Server.Repository)
		tbl.AddRow("server.user", cfg.Server.User)
		tbl.AddRow("server.group", cfg.Server.Group)
		tbl.AddRow("server.hostname", cfg.Server.Hostname)
		tbl.AddRow("importer.mode", cfg.Importer.Mode)
		tbl.AddRow("importer.command", strings.Join(cfg.Importer.Command, " "))
		tbl.AddRow("importer.showinf", strings.Join(cfg.Importer.Showinf, " "))
		tbl.AddRow("importer.timeout", cfg.Importer.Timeout.String())
		tbl.AddRow("transport.bucket", cfg.Transport.Bucket)
		tbl.AddRow("transport.region", cfg.Transport.Region)
		tbl.AddRow("transport.endpoint", cfg.Transport.Endpoint)
		tbl.AddRow("pack.metadata", strings.Join(cfg.Pack.Metadata, ","))
		tbl.AddRow("metrics.file", cfg.Metrics.File)
		fmt.Print(tbl.String())
		if configShowEnv {
			fmt.Println()
			fmt.Print(env)
		}
		return nil
	},
}

func configData(path string, exists bool, c *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"config_path": path,
		"exists":      exists,
		"server": map[string]interface{}{
			"driver":     c.Server.Driver,
			"dsn":        c.Server.DSN,
			"repository": c.Server.Repository,
			"user":       c.Server.User,
			"group":      c.Server.Group,
			"hostname":   c.Server.Hostname,
		},
		"importer": map[string]interface{}{
			"mode":    c.Importer.Mode,
			"command": c.Importer.Command,
			"showinf": c.Importer.Showinf,
			"timeout": c.Importer.Timeout.String(),
		},
		"transport": map[string]interface{}{
			"bucket":      c.Transport.Bucket,
			"region":      c.Transport.Region,
			"endpoint":    c.Transport.Endpoint,
			"path_style":  c.Transport.PathStyle,
			"prefix":      c.Transport.Prefix,
			"credentials": c.Transport.AccessKeyID != "",
		},
		"pack":    map[string]interface{}{"metadata": c.Pack.Metadata},
		"metrics": map[string]interface{}{"file": c.Metrics.File},
	}
}

func init() {
	configCmd.Flags().BoolVar(&configShowEnv, "env", false, "Also list the environment variables read")
	rootCmd.AddCommand(configCmd)
}
