package walfs

import (
	"os"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/retention"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// CleanupWAL implements retention.ArchiveFS: it enumerates log/, classifies
// every entry, and unlinks segments on timeline whose start position is at
// or before offset.CleanupStartPtr ('s two-phase apply, phase
// 2). History files and segments on timelines the plan doesn't mention are
// left untouched by this call — the policy layer only calls CleanupWAL per
// timeline the plan actually produced a cutoff for.
func (l *Layout) CleanupWAL(timeline uint32, offset retention.TimelineOffset) error {
	entries, err := ScanLogDir(l.LogDir())
	if err != nil {
		return err
	}

	segSize := offset.WalSegmentSize
	if segSize == 0 {
		segSize = xlog.DefaultSegmentSize
	}

	for _, e := range entries {
		switch e.Class {
		case ClassComplete, ClassCompleteCompressed, ClassPartial, ClassPartialCompressed:
		default:
			continue
		}
		if e.Identity.Timeline != timeline {
			continue
		}
		segStart := xlog.RecPtr(e.Identity.SegNo * segSize)
		if segStart > offset.CleanupStartPtr {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return apperrors.Archive("remove WAL segment", err)
		}
	}
	return nil
}

// CleanupAbsentTimelines removes history files and WAL segments whose
// timeline never appears in planTimelines, but only when that absent
// timeline predates oldestPlanTimeline. CleanupWAL only ever sweeps a
// single in-plan timeline's segment classes and never touches history
// files; this complements it for the timelines that fell out of the
// plan entirely (normally because every backup on them was already
// deleted) and for the history files CleanupWAL skips outright.
func (l *Layout) CleanupAbsentTimelines(planTimelines map[uint32]struct{}, oldestPlanTimeline uint32) error {
	entries, err := ScanLogDir(l.LogDir())
	if err != nil {
		return err
	}

	for _, e := range entries {
		var timeline uint32
		switch e.Class {
		case ClassComplete, ClassCompleteCompressed, ClassPartial, ClassPartialCompressed:
			timeline = e.Identity.Timeline
		case ClassHistory:
			timeline = historyTimeline(historyRe, e.Name)
		case ClassHistoryCompressed:
			timeline = historyTimeline(historyGzRe, e.Name)
		default:
			continue
		}
		if _, inPlan := planTimelines[timeline]; inPlan {
			continue
		}
		if timeline >= oldestPlanTimeline {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return apperrors.Archive("remove timeline artifact", err)
		}
	}
	return nil
}
