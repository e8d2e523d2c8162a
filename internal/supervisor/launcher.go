package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// daemonEnvFlag marks a re-exec'd process as the backgrounded launcher,
// the Go analog of the fork() the original daemon used (grounded on the
// teacher's internal/daemon.Background/IsDaemonProcess).
const daemonEnvFlag = "_PGBACKUPCTL_LAUNCHER=1"

// idlePoll is how long the main loop sleeps after finding no command and
// no dead pid to reap, so it isn't a busy spin.
const idlePoll = 100 * time.Millisecond

// Dispatcher executes one command-tag message against the catalog,
// archive filesystem, and replication stream, spawning whatever worker
// processes the command needs. Left as an interface so the launcher
// doesn't need to import the command-dispatch package directly; the
// concrete implementation wires it at cmd/pgbackupctl start-up.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg []byte, workers *shm.WorkerSegment) error
}

// Launcher is the long-running supervisor process: it owns the launcher
// shared-memory slot, the worker segment, the command queue, and the
// SIGCHLD reaper.
type Launcher struct {
	catalogPath string
	logger      zerolog.Logger

	launcherSeg *shm.LauncherSegment
	workerSeg   *shm.WorkerSegment
	queue       *Queue
	reaper      *Reaper
	dispatch    Dispatcher
	metrics     *Metrics

	shutdown chan os.Signal
}

// NewLauncher attaches every shared-memory segment and the command queue
// for catalogPath. Attach fails with apperrors.Launcher if another live
// launcher already holds the segment. metrics may be nil, in which case
// the loop skips gauge updates.
func NewLauncher(catalogPath string, dispatch Dispatcher, metrics *Metrics, logger zerolog.Logger) (*Launcher, error) {
	launcherSeg, err := shm.OpenLauncherSegment(catalogPath)
	if err != nil {
		return nil, err
	}
	if err := launcherSeg.Attach(os.Getpid()); err != nil {
		launcherSeg.Close() //nolint:errcheck
		return nil, err
	}

	workerSeg, err := shm.CreateWorkerSegment(catalogPath)
	if err != nil {
		launcherSeg.Detach() //nolint:errcheck
		launcherSeg.Close()  //nolint:errcheck
		return nil, err
	}

	queue, err := ListenQueue(catalogPath)
	if err != nil {
		workerSeg.Close()    //nolint:errcheck
		launcherSeg.Detach() //nolint:errcheck
		launcherSeg.Close()  //nolint:errcheck
		return nil, err
	}

	l := &Launcher{
		catalogPath: catalogPath,
		logger:      logger.With().Str("component", "launcher").Logger(),
		launcherSeg: launcherSeg,
		workerSeg:   workerSeg,
		queue:       queue,
		reaper:      NewReaper(),
		dispatch:    dispatch,
		metrics:     metrics,
		shutdown:    make(chan os.Signal, 4),
	}
	return l, nil
}

// Background re-execs the current binary with daemonEnvFlag set and
// detaches stdin/stdout/stderr, so the parent can return immediately. It
// is the Go substitute for fork(): Go's runtime cannot safely fork a
// multi-threaded process, so a fresh child is started instead, the same
// approach internal/daemon uses.
func Background(args []string, logPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open launcher log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), daemonEnvFlag)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start launcher: %w", err)
	}
	return cmd.Process.Pid, nil
}

// IsLauncherProcess reports whether the current process is the
// backgrounded launcher child started by Background.
func IsLauncherProcess() bool {
	return os.Getenv("_PGBACKUPCTL_LAUNCHER") == "1"
}

// Run is the launcher's main loop. It blocks until a shutdown signal is
// received or ctx is canceled. SIGTERM requests a smart shutdown (finish
// dispatching, refuse new commands, wait for workers to drain); SIGINT
// and SIGQUIT request an emergency shutdown (stop immediately); SIGHUP
// is reserved for a future config-reload; SIGUSR1 just logs a status
// refresh.
func (l *Launcher) Run(ctx context.Context) error {
	signal.Notify(l.shutdown, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(l.shutdown)

	draining := false
	for {
		select {
		case <-ctx.Done():
			return l.shutdownNow()
		case sig := <-l.shutdown:
			switch sig {
			case syscall.SIGTERM:
				l.logger.Info().Msg("smart shutdown requested, draining remaining commands")
				draining = true
			case syscall.SIGINT, syscall.SIGQUIT:
				l.logger.Warn().Msg("emergency shutdown requested")
				return l.shutdownNow()
			case syscall.SIGHUP:
				l.logger.Info().Msg("SIGHUP received (reserved, no-op)")
			case syscall.SIGUSR1:
				l.logStatus()
			}
		default:
		}

		l.reapDead()

		if l.metrics != nil {
			l.metrics.Observe(l.workerSeg.Snapshot())
		}

		if draining && len(l.workerSeg.Snapshot()) == 0 {
			return l.shutdownNow()
		}

		msg, err := l.queue.TryReceive()
		if err == ErrQueueEmpty {
			time.Sleep(idlePoll)
			continue
		}
		if err != nil {
			l.logger.Err(err).Msg("receive command")
			continue
		}
		if draining {
			l.logger.Warn().Msg("dropping command received while draining")
			continue
		}
		if err := l.dispatch.Dispatch(ctx, msg, l.workerSeg); err != nil {
			l.logger.Err(err).Msg("dispatch command")
		}
	}
}

// reapDead pops every pid the SIGCHLD handler collected and frees its
// worker slot or child sub-slot, whichever matches.
func (l *Launcher) reapDead() {
	dead := l.reaper.Drain()
	if l.metrics != nil {
		l.metrics.CountReaped(len(dead))
	}
	for _, pid := range dead {
		freed := false
	slots:
		for _, is := range l.workerSeg.SnapshotIndexed() {
			if is.Slot.PID == int64(pid) {
				if err := l.workerSeg.Free(is.Index); err != nil {
					l.logger.Err(err).Int("pid", pid).Msg("free worker slot after exit")
				}
				freed = true
				break
			}
			for ci, c := range is.Slot.Children {
				if c.PID == int64(pid) {
					if err := l.workerSeg.DetachBasebackup(is.Index, ci); err != nil {
						l.logger.Err(err).Int("pid", pid).Msg("detach child sub-slot after exit")
					}
					freed = true
					break slots
				}
			}
		}
		if !freed {
			l.logger.Warn().Int("pid", pid).Msg("reaped pid had no matching worker slot")
		}
	}
}

func (l *Launcher) logStatus() {
	snap := l.workerSeg.Snapshot()
	l.logger.Info().Int("active_workers", len(snap)).Msg("status refresh")
}

func (l *Launcher) shutdownNow() error {
	var firstErr error
	if err := l.queue.Close(); err != nil {
		firstErr = err
	}
	l.reaper.Stop()
	if err := l.workerSeg.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.launcherSeg.Detach(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.launcherSeg.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return apperrors.Launcher("shutdown launcher", firstErr)
	}
	return nil
}
