package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/config"
	"github.com/jfoltran/pgbackupctl/internal/dispatch"
	"github.com/jfoltran/pgbackupctl/internal/rtvars"
	"github.com/jfoltran/pgbackupctl/internal/shm"
	"github.com/jfoltran/pgbackupctl/internal/walfs"
)

var (
	cfg        config.Config
	cfgPath    string
	logger     zerolog.Logger
	out        = newFormatter()
	vars       *rtvars.Registry
	cat        *catalog.Catalog
	dispatcher *dispatch.Dispatcher

	logLevelFlag  string
	logFormatFlag string
	catalogFlag   string
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "pgbackupctl",
	Short: "PostgreSQL base backup and WAL archive manager",
	Long: `pgbackupctl manages a catalog of PostgreSQL archives: streaming
connections, base backups, retention policies, and the launcher process
that supervises them. Commands take already-resolved flags and
arguments, not a free-form query language.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = logLevelFlag
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Logging.Format = logFormatFlag
		}
		if cmd.Flags().Changed("catalog") {
			cfg.CatalogPath = catalogFlag
		}
		if cfg.CatalogPath == "" {
			cfg.CatalogPath = defaultCatalogPath()
		}

		var logOutput = os.Stderr
		var logger0 zerolog.Logger
		switch cfg.Logging.Format {
		case "json":
			logger0 = zerolog.New(logOutput).With().Timestamp().Logger()
		default:
			logger0 = zerolog.New(zerolog.ConsoleWriter{Out: logOutput, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		}
		level, err := zerolog.ParseLevel(cfg.Logging.Level)
		if err != nil {
			level = zerolog.InfoLevel
		}
		logger = logger0.Level(level)

		if skipsCatalog(cmd) {
			return nil
		}

		c, err := catalog.Open(cfg.CatalogPath, catalog.Options{Logger: logger})
		if err != nil {
			return err
		}
		cat = c

		registry, err := rtvars.NewDefault(out)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			registry.Set("log_level", cfg.Logging.Level) //nolint:errcheck
		}
		vars = registry

		dispatcher = &dispatch.Dispatcher{
			Catalog:   cat,
			Variables: vars,
			Logger:    logger.With().Str("component", "dispatch").Logger(),
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cat != nil {
			return cat.Close()
		}
		return nil
	},
}

// skipsCatalog reports whether cmd is a leaf command that manages its
// own catalog lifecycle (the launcher owns long-running exclusive
// access, so the front end must not also open and hold it).
func skipsCatalog(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == launcherCmd || c == workerCmd {
			return true
		}
	}
	return false
}

func defaultCatalogPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.pgbackupctl/catalog.db"
	}
	return "./pgbackupctl-catalog.db"
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "Path to a pgbackupctl TOML config file")
	f.StringVar(&catalogFlag, "catalog", "", "Path to the catalog database (overrides config)")
	f.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormatFlag, "log-format", "console", "Log format (console, json)")
	f.BoolVarP(&verboseFlag, "verbose", "v", false, "Include extra columns in list output")
}

// runDispatch is the shared tail of every leaf command: send req through
// the dispatcher, render the result with the active formatter, and
// translate a nil *Result (never happens today, but defensive against
// future no-output tags) into a quiet success.
//
// dropBasebackup and applyRetentionPolicy reach into the archive's
// directory through Dispatcher.FS; that interface is deliberately left
// for the wiring layer to supply, so this resolves it from
// req.ArchiveName before dispatching.
func runDispatch(cmd *cobra.Command, req dispatch.Request) error {
	req.Verbose = verboseFlag
	if (req.Tag == dispatch.TagDropBasebackup || req.Tag == dispatch.TagApplyRetentionPolicy) && req.ArchiveName != "" {
		fs, err := archiveFS(cmd.Context(), req.ArchiveName)
		if err != nil {
			return err
		}
		dispatcher.FS = fs
	}
	if req.Tag == dispatch.TagShowWorkers {
		seg, err := shm.OpenWorkerSegment(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("attach worker segment (is the launcher running?): %w", err)
		}
		defer seg.Close() //nolint:errcheck
		dispatcher.WorkerSeg = seg
	}
	res, err := dispatcher.Dispatch(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	out.printMessage(res.Message)
	if res.Rows != nil {
		out.printRows(res.Rows)
	}
	return nil
}

var errMissingArg = func(name string) error {
	return fmt.Errorf("missing required argument: %s", name)
}

// archiveFS resolves archiveName to a *walfs.Layout bound to its root
// directory, satisfying retention.ArchiveFS for a single command's
// filesystem-touching dispatch call.
func archiveFS(ctx context.Context, archiveName string) (*walfs.Layout, error) {
	archive, err := cat.GetArchive(ctx, archiveName)
	if err != nil {
		return nil, err
	}
	return walfs.NewLayout(archive.Directory)
}
