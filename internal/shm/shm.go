// Package shm implements the two shared-memory segments the process
// supervisor uses to detect a running launcher and to track worker slots
// across independent OS processes.
//
// Go has no portable shm_open/shmat binding in the standard library, so
// each segment is backed by a regular file mmap'd with edsrzf/mmap-go —
// the same substitute used elsewhere in the pack for fixed-size shared
// record regions — with a gofrs/flock file lock standing in for the
// segment's mutex, since that is the only cross-process (not just
// cross-goroutine) primitive available without cgo.
package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

const (
	// MaxSlots bounds the worker segment's fixed-capacity slot array.
	MaxSlots = 64
	// ChildMax bounds each slot's child sub-slot array (// "child_info[0..CHILD_MAX-1]").
	ChildMax = 8

	cmdTagLen = 32

	childSize = 8 + 8 // pid int64 + backup_id int64
	slotSize  = 8 /*pid*/ + cmdTagLen + 8 /*archive_id*/ + 8 /*started*/ + 1 /*basebackup_in_use*/ + ChildMax*childSize

	launcherSize = 8 /*pid*/ + 8 /*nattach*/
)

func segmentDir(catalogPath string) string {
	return filepath.Dir(catalogPath)
}

func launcherPath(catalogPath string) string {
	return segmentDir(catalogPath) + "/.pgbackupctl.launcher.shm"
}

func workerPath(catalogPath string) string {
	return segmentDir(catalogPath) + "/.pgbackupctl.workers.shm"
}

func openOrCreate(path string, size int64, mustExist bool) (*os.File, mmap.MMap, error) {
	flags := os.O_RDWR
	if !mustExist {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if mustExist && os.IsNotExist(err) {
			return nil, nil, apperrors.SHM("attach segment", fmt.Errorf("segment %s does not exist; the launcher must create it first", path))
		}
		return nil, nil, apperrors.SHM("open segment", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, apperrors.SHM("stat segment", err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, nil, apperrors.SHM("size segment", err)
		}
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, nil, apperrors.SHM("mmap segment", err)
	}
	return f, mm, nil
}

func putUint64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:off+8], v) }
func getUint64(b []byte, off int) uint64    { return binary.LittleEndian.Uint64(b[off : off+8]) }

func putInt64(b []byte, off int, v int64) { putUint64(b, off, uint64(v)) }
func getInt64(b []byte, off int) int64    { return int64(getUint64(b, off)) }
