// Package cli implements the command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ome/omero-cli-transfer/internal/config"
	"github.com/ome/omero-cli-transfer/internal/importer"
	"github.com/ome/omero-cli-transfer/internal/logging"
	"github.com/ome/omero-cli-transfer/internal/metrics"
	"github.com/ome/omero-cli-transfer/internal/server/sqlstore"
	"github.com/ome/omero-cli-transfer/internal/ui"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	metricsFile string

	// Resolved values
	resolvedConfigPath string
	cfg                *config.Config
	logger             = zap.NewNop()
	collector          *metrics.Collector
	store              *sqlstore.Store
)

// errReported marks an error whose JSON envelope was already written.
var errReported = errors.New("error reported")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "omero-transfer",
	Short: "Move image hierarchies between OMERO servers",
	Long: `omero-transfer packs a Project, Dataset, Image, Screen or Plate with its
annotations, ROIs and original files into a portable archive, and unpacks
such archives into another server, recreating the hierarchy there.

Every object created on the destination carries a provenance annotation
pointing back at its origin.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config resolution for commands that don't need it
		switch cmd.Name() {
		case "version", "help", "completion":
			return nil
		}
		if cmd.Parent() != nil && cmd.Parent().Name() == "completion" {
			return nil
		}

		logger = logging.New(logging.Options{Verbose: verbose, JSON: jsonOutput})
		collector = metrics.NewCollector()

		var err error
		cfg, resolvedConfigPath, err = loadConfigWithPath()
		if err != nil {
			return handleError(ErrConfigInvalid, fmt.Errorf("failed to load config: %w", err),
				"Run 'omero-transfer config' to see the config path and environment variables")
		}
		if metricsFile == "" {
			metricsFile = cfg.Metrics.File
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if ferr := finish(); err == nil {
		err = ferr
	}
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(os.Stderr, ui.Error(err.Error()))
	}
	_ = logger.Sync()
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (for agent/script use)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log progress at debug level to stderr")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write run counters to this Prometheus textfile")
}

func loadConfigWithPath() (*config.Config, string, error) {
	if strings.TrimSpace(configPath) != "" {
		loaded, err := config.LoadFrom(configPath)
		return loaded, configPath, err
	}
	loaded, err := config.Load()
	return loaded, config.DefaultPath(), err
}

// connect opens the configured server store once per run.
func connect(ctx context.Context) (*sqlstore.Store, error) {
	if store != nil {
		return store, nil
	}
	st, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:     sqlstore.Driver(cfg.Server.Driver),
		DSN:        cfg.Server.DSN,
		Repository: cfg.Server.Repository,
		User:       cfg.Server.User,
		Group:      cfg.Server.Group,
		Hostname:   cfg.Server.Hostname,
		Logger:     logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}
	store = st
	return store, nil
}

// newImporter returns the importer for the configured mode. In local mode
// the store imports and exports files itself.
func newImporter(st *sqlstore.Store) importer.Importer {
	if cfg.Importer.Mode == config.ModeProcess {
		return newProcess()
	}
	return st
}

// newInspector returns the file inspector used by prepare.
func newInspector() importer.Inspector {
	if cfg.Importer.Mode == config.ModeProcess {
		return newProcess()
	}
	return importer.Local{}
}

func newProcess() *importer.Process {
	p := importer.NewProcess(cfg.Importer.Command, cfg.Importer.Timeout, logger.Named("importer"))
	p.Showinf = cfg.Importer.Showinf
	return p
}

// finish writes the run counters and closes the store. It is safe to call
// more than once.
func finish() error {
	var errs []error
	if collector != nil && metricsFile != "" {
		if err := collector.WriteFile(metricsFile); err != nil {
			errs = append(errs, err)
		}
		collector = nil
	}
	if store != nil {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
		store = nil
	}
	return errors.Join(errs...)
}
