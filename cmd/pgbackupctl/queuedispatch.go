package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// queueDispatcher implements supervisor.Dispatcher: it decodes the fixed-
// width queueMsg the CLI's client-side commands enqueue (basebackup.go's
// "start" verb, stream.go) and reacts to it — spawning a worker process
// for the commands that need one, or signaling an already-running one
// for STOP STREAMING.
type queueDispatcher struct {
	catalogPath string
	cat         *catalog.Catalog
	logger      zerolog.Logger
}

func (q *queueDispatcher) catalogHandle() (*catalog.Catalog, error) {
	if q.cat != nil {
		return q.cat, nil
	}
	c, err := catalog.Open(q.catalogPath, catalog.Options{Logger: q.logger})
	if err != nil {
		return nil, err
	}
	q.cat = c
	return c, nil
}

// Dispatch satisfies internal/supervisor.Dispatcher. workers is accepted
// to match that interface but unused here: slot bookkeeping happens
// inside the spawned worker process via supervisor.RunWorker, not in the
// launcher's own loop.
func (q *queueDispatcher) Dispatch(ctx context.Context, msg []byte, workers *shm.WorkerSegment) error {
	m, err := decodeQueueMsg(msg)
	if err != nil {
		return apperrors.Launcher("decode queue message", err)
	}

	switch m.Cmd {
	case queueCmdStartBasebackup:
		return q.spawn("basebackup", m.ArchiveID, m.ProfileID)
	case queueCmdStartStreaming:
		return q.spawn("stream", m.ArchiveID, 0)
	case queueCmdStartRecoveryStream:
		return q.spawn("recovery-stream", m.ArchiveID, 0)
	case queueCmdStopStreaming:
		return q.stopStreaming(ctx, m.ArchiveID)
	default:
		return apperrors.Launcher("dispatch queue message", fmt.Errorf("unknown queue command %d", m.Cmd))
	}
}

func (q *queueDispatcher) spawn(verb string, archiveID, profileID int64) error {
	exe, err := os.Executable()
	if err != nil {
		return apperrors.Launcher("spawn worker", err)
	}
	logPath := q.catalogPath + "." + verb + ".log"
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return apperrors.Launcher("spawn worker", err)
	}

	cmd := exec.Command(exe, "__worker", verb,
		"--catalog", q.catalogPath,
		"--archive-id", strconv.FormatInt(archiveID, 10),
		"--profile-id", strconv.FormatInt(profileID, 10),
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close() //nolint:errcheck
		return apperrors.Launcher("spawn worker", err)
	}
	logFile.Close() //nolint:errcheck
	q.logger.Info().Str("verb", verb).Int64("archive_id", archiveID).Int("pid", cmd.Process.Pid).Msg("spawned worker")
	return nil
}

// stopStreaming signals the archive's running streamer process rather
// than spawning anything: internal/catalog's procs table already tracks
// which pid owns the active stream.
func (q *queueDispatcher) stopStreaming(ctx context.Context, archiveID int64) error {
	cat, err := q.catalogHandle()
	if err != nil {
		return err
	}
	proc, err := cat.GetProc(ctx, archiveID, catalog.ProcStreamer)
	if err != nil {
		return err
	}
	p, err := os.FindProcess(proc.PID)
	if err != nil {
		return apperrors.Launcher("stop streaming", err)
	}
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return apperrors.Launcher("stop streaming", err)
	}
	return nil
}
