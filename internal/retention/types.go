// Package retention implements the rule-evaluation and cleanup planner:
// given a retention policy and the current catalog contents for an archive,
// it produces a deterministic set of base backups to remove and a
// per-timeline WAL cutoff below which segment files may be deleted.
package retention

import (
	"regexp"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// LockState classifies a backup's eligibility for deletion.
type LockState string

const (
	LockedByPin LockState = "locked_by_pin"
	LockedByShm LockState = "locked_by_shm"
	NotLocked   LockState = "not_locked"
)

// Classify returns the locking state of a backup given the current set of
// backup ids referenced by a worker slot's child sub-slots.
func Classify(b *catalog.BaseBackupDescr, shmLocked map[int64]bool) LockState {
	if b.Pinned {
		return LockedByPin
	}
	if shmLocked[b.ID] {
		return LockedByShm
	}
	return NotLocked
}

// CleanupMode enumerates the WAL-cleanup granularity a plan operates at.
type CleanupMode string

const (
	ModeNone             CleanupMode = "none"
	ModeWALCleanupOffset CleanupMode = "wal_cleanup_offset"
	// ModeWALCleanupRange is reserved: its exact semantics are an open
	// question. EvaluateRule never produces it, and ApplyPlan does not
	// treat it differently from ModeWALCleanupOffset.
	ModeWALCleanupRange CleanupMode = "wal_cleanup_range"
)

// BasebackupMode says whether the plan's deletion set should actually be
// deleted or only reported (dry-run callers can flip this to keep).
type BasebackupMode string

const (
	BasebackupDelete BasebackupMode = "delete"
	BasebackupKeep   BasebackupMode = "keep"
)

// TimelineOffset is the WAL cutoff computed for one timeline.
type TimelineOffset struct {
	CleanupStartPtr xlog.RecPtr
	WalSegmentSize  uint64
}

// BackupRef identifies one backup moved to the deletion set, carrying just
// enough to unlink its filesystem subtree without a second catalog fetch.
type BackupRef struct {
	ID      int64
	FSEntry string
}

// CleanupDescriptor is the product of one retention rule evaluation.
type CleanupDescriptor struct {
	Mode               CleanupMode
	BasebackupMode     BasebackupMode
	Backups            []BackupRef
	PerTimelineOffsets map[uint32]TimelineOffset
	Warnings           []string
}

func (d *CleanupDescriptor) moveCutoff(tli uint32, segSize uint64, ptr xlog.RecPtr) {
	if d.PerTimelineOffsets == nil {
		d.PerTimelineOffsets = make(map[uint32]TimelineOffset)
	}
	cur, ok := d.PerTimelineOffsets[tli]
	if !ok {
		d.PerTimelineOffsets[tli] = TimelineOffset{CleanupStartPtr: ptr, WalSegmentSize: segSize}
		return
	}
	d.PerTimelineOffsets[tli] = TimelineOffset{
		CleanupStartPtr: xlog.Min(cur.CleanupStartPtr, ptr),
		WalSegmentSize:  segSize,
	}
}

func (d *CleanupDescriptor) warn(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

func compileLabelRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(pattern)
}
