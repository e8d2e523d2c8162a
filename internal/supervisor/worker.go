package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// Job is the unit of work a worker process runs once it has a slot: open
// the catalog connection itself needs, stream/copy data, and report any
// child processes it forks back through registerChild so the launcher's
// locked_by_shm classification sees them.
type Job func(ctx context.Context, registerChild func(pid, backupID int64) error) error

// RunWorker attaches to an already-created worker segment (it never
// creates one — requires the launcher to own that), claims a
// slot for the given command tag and archive, runs job, and frees the
// slot when job returns regardless of outcome.
func RunWorker(ctx context.Context, catalogPath, cmdTag string, archiveID int64, job Job, logger zerolog.Logger) error {
	seg, err := shm.OpenWorkerSegment(catalogPath)
	if err != nil {
		return err
	}
	defer seg.Close() //nolint:errcheck

	idx, err := seg.Allocate(shm.Slot{
		PID:       int64(os.Getpid()),
		CmdTag:    cmdTag,
		ArchiveID: archiveID,
		Started:   time.Now(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := seg.Free(idx); err != nil {
			logger.Err(err).Msg("free worker slot on exit")
		}
	}()

	registerChild := func(pid, backupID int64) error {
		return seg.UpdateChild(idx, -1, shm.ChildInfo{PID: pid, BackupID: backupID})
	}

	if err := job(ctx, registerChild); err != nil {
		return apperrors.Worker(cmdTag, err)
	}
	return nil
}
