package walfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jfoltran/pgbackupctl/internal/retention"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

func TestCleanupWALRemovesSegmentsAtOrBeforeCutoff(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	logDir := l.LogDir()
	mustTouch(t, filepath.Join(logDir, "000000010000000000000005"))
	mustTouch(t, filepath.Join(logDir, "00000001000000000000000A"))
	mustTouch(t, filepath.Join(logDir, "000000010000000000000014"))
	mustTouch(t, filepath.Join(logDir, "00000001.history"))

	cutoff := xlog.RecPtr(0x0A * xlog.DefaultSegmentSize)
	err = l.CleanupWAL(1, retention.TimelineOffset{CleanupStartPtr: cutoff, WalSegmentSize: xlog.DefaultSegmentSize})
	if err != nil {
		t.Fatalf("CleanupWAL: %v", err)
	}

	assertGone(t, filepath.Join(logDir, "000000010000000000000005"))
	assertGone(t, filepath.Join(logDir, "00000001000000000000000A"))
	assertExists(t, filepath.Join(logDir, "000000010000000000000014"))
	assertExists(t, filepath.Join(logDir, "00000001.history"))
}

func TestCleanupWALIgnoresOtherTimelines(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	logDir := l.LogDir()
	mustTouch(t, filepath.Join(logDir, "000000020000000000000005"))

	err = l.CleanupWAL(1, retention.TimelineOffset{CleanupStartPtr: xlog.RecPtr(100 * xlog.DefaultSegmentSize), WalSegmentSize: xlog.DefaultSegmentSize})
	if err != nil {
		t.Fatalf("CleanupWAL: %v", err)
	}
	assertExists(t, filepath.Join(logDir, "000000020000000000000005"))
}

func TestCleanupAbsentTimelinesRemovesOlderHistoryAndSegments(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	logDir := l.LogDir()
	mustTouch(t, filepath.Join(logDir, "00000001.history"))
	mustTouch(t, filepath.Join(logDir, "000000010000000000000005"))
	mustTouch(t, filepath.Join(logDir, "00000002.history"))
	mustTouch(t, filepath.Join(logDir, "000000020000000000000005"))

	planTimelines := map[uint32]struct{}{3: {}}
	if err := l.CleanupAbsentTimelines(planTimelines, 3); err != nil {
		t.Fatalf("CleanupAbsentTimelines: %v", err)
	}

	assertGone(t, filepath.Join(logDir, "00000001.history"))
	assertGone(t, filepath.Join(logDir, "000000010000000000000005"))
	assertGone(t, filepath.Join(logDir, "00000002.history"))
	assertGone(t, filepath.Join(logDir, "000000020000000000000005"))
}

func TestCleanupAbsentTimelinesKeepsInPlanAndNewerTimelines(t *testing.T) {
	l, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	logDir := l.LogDir()
	mustTouch(t, filepath.Join(logDir, "00000001.history")) // in plan
	mustTouch(t, filepath.Join(logDir, "00000002.history")) // absent but newer than oldest in-plan (1)

	planTimelines := map[uint32]struct{}{1: {}}
	if err := l.CleanupAbsentTimelines(planTimelines, 1); err != nil {
		t.Fatalf("CleanupAbsentTimelines: %v", err)
	}

	assertExists(t, filepath.Join(logDir, "00000001.history"))
	assertExists(t, filepath.Join(logDir, "00000002.history"))
}

func assertGone(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed", path)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected %s to still exist: %v", path, err)
	}
}
