package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
	"github.com/rs/zerolog"
)

type fakeFS struct {
	removed           []string
	swept             []uint32
	absentSweepOldest uint32
	absentSweepPlan   map[uint32]struct{}
}

func (f *fakeFS) RemoveBackupDir(fsentry string) error {
	f.removed = append(f.removed, fsentry)
	return nil
}

func (f *fakeFS) CleanupWAL(timeline uint32, offset TimelineOffset) error {
	f.swept = append(f.swept, timeline)
	return nil
}

func (f *fakeFS) CleanupAbsentTimelines(planTimelines map[uint32]struct{}, oldestPlanTimeline uint32) error {
	f.absentSweepOldest = oldestPlanTimeline
	f.absentSweepPlan = planTimelines
	return nil
}

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := catalog.Open(path, catalog.Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestApplyPlanDeletesCatalogRowsThenFiles(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	archiveID, _ := c.CreateArchive(ctx, &catalog.ArchiveDescr{Name: "a1", Directory: "/d"})

	d := &catalog.BaseBackupDescr{
		ArchiveID: archiveID, XlogposStart: "0/1000000", Timeline: 1,
		Label: "b", FSEntry: "/d/base/b", Started: time.Now().UTC(),
		SystemID: 1, WalSegmentSize: xlog.DefaultSegmentSize,
	}
	id, err := c.RegisterBasebackup(ctx, d)
	if err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}

	plan := &CleanupDescriptor{
		Mode:           ModeWALCleanupOffset,
		BasebackupMode: BasebackupDelete,
		Backups:        []BackupRef{{ID: id, FSEntry: d.FSEntry}},
		PerTimelineOffsets: map[uint32]TimelineOffset{
			1: {CleanupStartPtr: 0, WalSegmentSize: xlog.DefaultSegmentSize},
		},
	}

	fs := &fakeFS{}
	if err := ApplyPlan(ctx, c, plan, fs); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}

	if _, err := c.GetBaseBackup(ctx, catalog.BackupSelector{ID: id}, archiveID, false); err == nil {
		t.Fatalf("expected backup row to be gone after apply")
	}
	if len(fs.removed) != 1 || fs.removed[0] != "/d/base/b" {
		t.Fatalf("expected fsentry removed, got %v", fs.removed)
	}
	if len(fs.swept) != 1 || fs.swept[0] != 1 {
		t.Fatalf("expected timeline 1 swept, got %v", fs.swept)
	}
	if fs.absentSweepOldest != 1 {
		t.Fatalf("expected absent-timeline sweep to use oldest in-plan timeline 1, got %d", fs.absentSweepOldest)
	}
	if _, ok := fs.absentSweepPlan[1]; !ok || len(fs.absentSweepPlan) != 1 {
		t.Fatalf("expected absent-timeline sweep plan set to contain only timeline 1, got %v", fs.absentSweepPlan)
	}
}

func TestApplyPlanSkipsAbsentTimelineSweepWhenNoTimelineInPlan(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	plan := &CleanupDescriptor{Mode: ModeWALCleanupOffset, BasebackupMode: BasebackupKeep}
	fs := &fakeFS{}
	if err := ApplyPlan(ctx, c, plan, fs); err != nil {
		t.Fatalf("ApplyPlan: %v", err)
	}
	if fs.absentSweepPlan != nil {
		t.Fatalf("expected no absent-timeline sweep when the plan has no timelines, got %v", fs.absentSweepPlan)
	}
}

func TestMergeUnionsBackupsAndTakesOlderCutoff(t *testing.T) {
	a := &CleanupDescriptor{
		Backups:            []BackupRef{{ID: 1, FSEntry: "/x/1"}},
		PerTimelineOffsets: map[uint32]TimelineOffset{1: {CleanupStartPtr: 100, WalSegmentSize: xlog.DefaultSegmentSize}},
	}
	b := &CleanupDescriptor{
		Backups:            []BackupRef{{ID: 1, FSEntry: "/x/1"}, {ID: 2, FSEntry: "/x/2"}},
		PerTimelineOffsets: map[uint32]TimelineOffset{1: {CleanupStartPtr: 50, WalSegmentSize: xlog.DefaultSegmentSize}},
	}
	a.Merge(b)

	if len(a.Backups) != 2 {
		t.Fatalf("expected deduplicated union of 2 backups, got %v", a.Backups)
	}
	if a.PerTimelineOffsets[1].CleanupStartPtr != 50 {
		t.Fatalf("expected the older (smaller) cutoff to win, got %v", a.PerTimelineOffsets[1].CleanupStartPtr)
	}
}
