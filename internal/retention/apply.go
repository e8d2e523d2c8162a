package retention

import (
	"context"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/catalog"
)

// ArchiveFS is the filesystem side of plan application: unlinking a
// deleted backup's directory tree and sweeping WAL segments below a
// timeline's cutoff (implemented by internal/walfs, kept as an interface
// here so the planner and its tests don't depend on real disk I/O).
type ArchiveFS interface {
	RemoveBackupDir(fsentry string) error
	CleanupWAL(timeline uint32, offset TimelineOffset) error
	CleanupAbsentTimelines(planTimelines map[uint32]struct{}, oldestPlanTimeline uint32) error
}

// ApplyPlan commits a CleanupDescriptor in a fixed order: catalog rows
// first, then the fsentry subtrees, then per-timeline WAL sweeps — so a
// crash mid-application leaves only dangling files, never orphaned
// catalog rows. It does not roll back partial progress: plan application
// failures are reported, not retried.
func ApplyPlan(ctx context.Context, cat *catalog.Catalog, plan *CleanupDescriptor, fs ArchiveFS) error {
	if plan.BasebackupMode == BasebackupKeep {
		return applyWALOnly(plan, fs)
	}

	for _, ref := range plan.Backups {
		if err := cat.DeleteBaseBackup(ctx, ref.ID); err != nil {
			return apperrors.Retention("apply retention plan",
				"catalog deletion failed partway through the plan; re-run after resolving the underlying error", err)
		}
	}

	for _, ref := range plan.Backups {
		if ref.FSEntry == "" {
			continue
		}
		if err := fs.RemoveBackupDir(ref.FSEntry); err != nil {
			return apperrors.Retention("apply retention plan",
				"basebackup rows were deleted but the filesystem subtree could not be removed; clean up manually", err)
		}
	}

	return applyWALOnly(plan, fs)
}

func applyWALOnly(plan *CleanupDescriptor, fs ArchiveFS) error {
	if plan.Mode == ModeNone {
		return nil
	}
	planTimelines := make(map[uint32]struct{}, len(plan.PerTimelineOffsets))
	var oldest uint32
	first := true
	for tli, offset := range plan.PerTimelineOffsets {
		if err := fs.CleanupWAL(tli, offset); err != nil {
			return apperrors.Retention("apply retention plan", "WAL segment cleanup failed for a timeline", err)
		}
		planTimelines[tli] = struct{}{}
		if first || tli < oldest {
			oldest = tli
			first = false
		}
	}
	if first {
		// No in-plan timeline at all: nothing is "older than the oldest
		// in-plan timeline", so there is nothing to sweep.
		return nil
	}
	if err := fs.CleanupAbsentTimelines(planTimelines, oldest); err != nil {
		return apperrors.Retention("apply retention plan", "absent-timeline cleanup failed", err)
	}
	return nil
}

// Merge folds other into d in place: deletion sets are unioned and
// per-timeline cutoffs combine via the same "move only backward" rule the
// engine uses internally. Used when a policy carries more than one
// non-pin rule and their plans must be applied as a single unit.
func (d *CleanupDescriptor) Merge(other *CleanupDescriptor) {
	seen := make(map[int64]bool, len(d.Backups))
	for _, b := range d.Backups {
		seen[b.ID] = true
	}
	for _, b := range other.Backups {
		if !seen[b.ID] {
			d.Backups = append(d.Backups, b)
			seen[b.ID] = true
		}
	}
	for tli, off := range other.PerTimelineOffsets {
		d.moveCutoff(tli, off.WalSegmentSize, off.CleanupStartPtr)
	}
	d.Warnings = append(d.Warnings, other.Warnings...)
}
