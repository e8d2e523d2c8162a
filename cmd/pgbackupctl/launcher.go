package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/monitor"
	"github.com/jfoltran/pgbackupctl/internal/shm"
	"github.com/jfoltran/pgbackupctl/internal/supervisor"
)

var launcherCmd = &cobra.Command{
	Use:   "launcher",
	Short: "Manage the long-running launcher process",
}

var launcherForeground bool

var launcherStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the launcher (START LAUNCHER)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !launcherForeground && !supervisor.IsLauncherProcess() {
			logPath := cfg.CatalogPath + ".launcher.log"
			pid, err := supervisor.Background(os.Args[1:], logPath)
			if err != nil {
				return err
			}
			fmt.Printf("launcher started, pid %d (log: %s)\n", pid, logPath)
			return nil
		}

		metrics := supervisor.NewMetrics(prometheus.DefaultRegisterer)
		l, err := supervisor.NewLauncher(cfg.CatalogPath, &queueDispatcher{catalogPath: cfg.CatalogPath, logger: logger}, metrics, logger)
		if err != nil {
			return err
		}

		if cfg.Launcher.MonitorPort != 0 {
			if err := startMonitorSocket(cmd.Context(), cfg.Launcher.MonitorPort); err != nil {
				return err
			}
		}

		return l.Run(cmd.Context())
	},
}

var launcherStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running launcher",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		seg, err := shm.OpenLauncherSegment(cfg.CatalogPath)
		if err != nil {
			return err
		}
		defer seg.Close() //nolint:errcheck

		pid, attached := seg.Attached()
		if !attached {
			return fmt.Errorf("no launcher is attached to catalog %s", cfg.CatalogPath)
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal launcher pid %d: %w", pid, err)
		}
		fmt.Printf("sent SIGTERM to launcher pid %d\n", pid)
		return nil
	},
}

// startMonitorSocket attaches its own view of the worker segment (the
// launcher's own attach stays private to *supervisor.Launcher) and
// serves the status/websocket endpoints a remote `monitor --remote`
// invocation dials, in a background goroutine that stops when ctx is
// done.
//
// launcherStartCmd skips the root command's catalog-open step (see
// skipsCatalog), so cat is nil here; the monitor socket opens its own
// read path onto the catalog instead of sharing the launcher's.
func startMonitorSocket(ctx context.Context, port int) error {
	seg, err := shm.OpenWorkerSegment(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("attach monitor worker segment: %w", err)
	}

	monitorCat, err := catalog.Open(cfg.CatalogPath, catalog.Options{Logger: logger})
	if err != nil {
		seg.Close() //nolint:errcheck
		return fmt.Errorf("open monitor catalog handle: %w", err)
	}

	collector := monitor.NewCollector(seg, monitorCat, logger)
	hub := monitor.NewHub(collector, logger)

	mux := http.NewServeMux()
	hub.Mux(mux)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go collector.Run(ctx, monitorPollInterval)
	go hub.Start(ctx)
	go func() {
		<-ctx.Done()
		seg.Close()        //nolint:errcheck
		monitorCat.Close() //nolint:errcheck
		collector.Close()
		srv.Close() //nolint:errcheck
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Err(err).Msg("monitor socket")
		}
	}()

	logger.Info().Int("port", port).Msg("monitor socket listening")
	return nil
}

func init() {
	launcherStartCmd.Flags().BoolVar(&launcherForeground, "foreground", false, "Run the launcher in this process instead of backgrounding it")
	launcherCmd.AddCommand(launcherStartCmd, launcherStopCmd)
	rootCmd.AddCommand(launcherCmd)
}
