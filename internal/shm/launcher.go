package shm

import (
	"fmt"
	"os"
	"syscall"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

func errAlreadyRunning(pid int64) error {
	return fmt.Errorf("a launcher is already running (pid %d)", pid)
}

// LauncherSegment is the `{pid, mutex}` record used to guarantee at most
// one launcher runs per catalog.
type LauncherSegment struct {
	f    *os.File
	mm   mmap.MMap
	lock *flock.Flock
}

// OpenLauncherSegment creates (if necessary) and maps the launcher segment
// for the catalog at catalogPath.
func OpenLauncherSegment(catalogPath string) (*LauncherSegment, error) {
	path := launcherPath(catalogPath)
	f, mm, err := openOrCreate(path, launcherSize, false)
	if err != nil {
		return nil, err
	}
	return &LauncherSegment{f: f, mm: mm, lock: flock.New(path + ".lock")}, nil
}

// Attach records pid as the running launcher. It fails if another launcher
// is already attached ("if nattach ≥ 1 ... fail; only one
// launcher per catalog").
func (l *LauncherSegment) Attach(pid int) error {
	if err := l.lock.Lock(); err != nil {
		return apperrors.SHM("attach launcher", err)
	}
	defer l.lock.Unlock() //nolint:errcheck

	nattach := getInt64(l.mm, 8)
	if nattach >= 1 {
		existingPID := getInt64(l.mm, 0)
		if processAlive(int(existingPID)) {
			return apperrors.Launcher("attach launcher", errAlreadyRunning(existingPID))
		}
		// Stale segment left by a crashed launcher: reclaim it.
	}

	putInt64(l.mm, 0, int64(pid))
	putInt64(l.mm, 8, 1)
	return l.mm.Flush()
}

// Detach clears the segment, allowing a future launcher to attach.
func (l *LauncherSegment) Detach() error {
	if err := l.lock.Lock(); err != nil {
		return apperrors.SHM("detach launcher", err)
	}
	defer l.lock.Unlock() //nolint:errcheck

	putInt64(l.mm, 0, 0)
	putInt64(l.mm, 8, 0)
	return l.mm.Flush()
}

// Attached reports the currently recorded launcher pid and whether one is
// attached.
func (l *LauncherSegment) Attached() (int, bool) {
	nattach := getInt64(l.mm, 8)
	return int(getInt64(l.mm, 0)), nattach >= 1
}

// Close unmaps and releases the segment's file handle.
func (l *LauncherSegment) Close() error {
	if err := l.mm.Unmap(); err != nil {
		return apperrors.SHM("unmap launcher segment", err)
	}
	return l.f.Close()
}

// processAlive checks liveness the same way teacher's internal/daemon does
// — signal 0 probes for existence without delivering anything.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
