package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ome/omero-cli-transfer/internal/config"
	"github.com/ome/omero-cli-transfer/internal/server/fixture"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var (
	serverInitDriver     string
	serverInitDSN        string
	serverInitRepository string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the local server store",
	Long: `The server store is a sqlite or postgres database plus a managed repository
directory. It holds the hierarchy that pack reads and unpack writes.`,
}

var serverInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the server schema and the config file",
	Long: `Create the config file (when missing) and the database schema.

With --driver, --dsn or --repository the given values are saved to the
config file first.

Examples:
  omero-transfer server init
  omero-transfer server init --driver postgres --dsn postgres://omero@db/omero`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		created := false
		if _, err := os.Stat(resolvedConfigPath); os.IsNotExist(err) {
			if _, err := config.CreateDefault(resolvedConfigPath); err != nil {
				return handleError(ErrConfigInvalid, err, "")
			}
			created = true
		}
		if serverInitDriver != "" || serverInitDSN != "" || serverInitRepository != "" {
			if serverInitDriver != "" {
				cfg.Server.Driver = serverInitDriver
			}
			if serverInitDSN != "" {
				cfg.Server.DSN = serverInitDSN
			}
			if serverInitRepository != "" {
				cfg.Server.Repository = serverInitRepository
			}
			if err := cfg.Validate(); err != nil {
				return handleError(ErrConfigInvalid, err, "")
			}
			if err := config.SaveTo(resolvedConfigPath, cfg); err != nil {
				return handleError(ErrConfigInvalid, err, "")
			}
		}

		st, err := connect(cmd.Context())
		if err != nil {
			return fail(err)
		}
		sess, err := st.Session(cmd.Context())
		if err != nil {
			return fail(err)
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{
				"config_path":    resolvedConfigPath,
				"config_created": created,
				"driver":         cfg.Server.Driver,
				"dsn":            cfg.Server.DSN,
				"repository":     st.Repository(),
				"database_id":    sess.DatabaseID,
			}, nil)
			return nil
		}

		if created {
			fmt.Println(ui.Successf("Created config %s", ui.FilePath(resolvedConfigPath)))
		}
		fmt.Println(ui.Successf("Server ready: %s database %s", cfg.Server.Driver, ui.FilePath(cfg.Server.DSN)))
		fmt.Println(ui.Hint(fmt.Sprintf("  repository:  %s", st.Repository())))
		fmt.Println(ui.Hint(fmt.Sprintf("  database id: %s", sess.DatabaseID)))
		return nil
	},
}

var serverSeedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a YAML hierarchy into the server",
	Long: `Create the projects, datasets, screens, plates, images, annotations and ROIs
described by a YAML fixture file. Image files listed in the fixture are
created in the managed repository with placeholder content.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fixture.Load(args[0])
		if err != nil {
			return fail(err)
		}
		st, err := connect(cmd.Context())
		if err != nil {
			return fail(err)
		}
		ids, err := fixture.Seed(cmd.Context(), st, f)
		if err != nil {
			return fail(err)
		}

		if isJSONOutput() {
			outputSuccess(map[string]interface{}{"ids": ids}, &Meta{Count: len(ids)})
			return nil
		}

		keys := make([]string, 0, len(ids))
		for k := range ids {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		tbl := ui.NewTable(2)
		for _, k := range keys {
			tbl.AddRow(k, fmt.Sprintf("%d", ids[k]))
		}
		fmt.Println(ui.Successf("Seeded %s %s", ui.FilePath(args[0]), ui.Hint(ui.Count(len(ids), "object", "objects"))))
		fmt.Print(tbl.String())
		return nil
	},
}

func init() {
	serverInitCmd.Flags().StringVar(&serverInitDriver, "driver", "", "Database driver to save (sqlite or postgres)")
	serverInitCmd.Flags().StringVar(&serverInitDSN, "dsn", "", "Database file or URL to save")
	serverInitCmd.Flags().StringVar(&serverInitRepository, "repository", "", "Managed repository directory to save")
	serverCmd.AddCommand(serverInitCmd)
	serverCmd.AddCommand(serverSeedCmd)
	rootCmd.AddCommand(serverCmd)
}
