package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(path, Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenCreatesSchema(t *testing.T) {
	c := openTestCatalog(t)
	var count int
	if err := c.DB().QueryRow("SELECT COUNT(*) FROM version").Scan(&count); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one version row, got %d", count)
	}
}

func TestArchiveCRUD(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	id, err := c.CreateArchive(ctx, &ArchiveDescr{Name: "a1", Directory: "/var/archive/a1"})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	got, err := c.GetArchive(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if got.ID != id || got.Directory != "/var/archive/a1" {
		t.Fatalf("unexpected archive: %+v", got)
	}

	got.SetDirectory("/var/archive/a1-moved")
	if err := c.UpdateArchive(ctx, got); err != nil {
		t.Fatalf("UpdateArchive: %v", err)
	}
	reread, err := c.GetArchive(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArchive after update: %v", err)
	}
	if reread.Directory != "/var/archive/a1-moved" {
		t.Fatalf("update did not apply: %+v", reread)
	}

	if _, err := c.CreateArchive(ctx, &ArchiveDescr{Name: "a1", Directory: "/x"}); err == nil {
		t.Fatalf("expected unique constraint violation on duplicate name")
	}

	if err := c.DropArchive(ctx, "a1"); err != nil {
		t.Fatalf("DropArchive: %v", err)
	}
	if _, err := c.GetArchive(ctx, "a1"); err == nil {
		t.Fatalf("expected archive to be gone after drop")
	}
}

func TestAffectedAttributesProtocol(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	id, _ := c.CreateArchive(ctx, &ArchiveDescr{Name: "a2", Directory: "/d"})

	d := &ArchiveDescr{ID: id}
	d.SetCompression(true)
	if got := d.Affected(); len(got) != 1 || got[0] != ColArchiveCompression {
		t.Fatalf("expected only ColArchiveCompression to be affected, got %v", got)
	}

	if err := c.UpdateArchive(ctx, d); err != nil {
		t.Fatalf("UpdateArchive: %v", err)
	}

	reread, err := c.GetArchive(ctx, "a2")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if !reread.Compression {
		t.Fatalf("expected compression flag to be set")
	}
	if reread.Directory != "/d" {
		t.Fatalf("unaffected column directory should not have changed, got %q", reread.Directory)
	}
}

func TestBindComputedColumnRaises(t *testing.T) {
	if err := bindComputedGuard(ColBackupDuration); err == nil {
		t.Fatalf("expected error binding a computed column")
	}
	if err := bindComputedGuard(ColArchiveName); err != nil {
		t.Fatalf("non-computed column should not raise: %v", err)
	}
}

func TestBaseBackupLifecycle(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	archiveID, _ := c.CreateArchive(ctx, &ArchiveDescr{Name: "a3", Directory: "/d3"})

	d := &BaseBackupDescr{
		ArchiveID:      archiveID,
		XlogposStart:   "0/1000000",
		Timeline:       1,
		Label:          "base_000001",
		FSEntry:        "/d3/base/base_000001",
		Started:        time.Now().UTC(),
		SystemID:       12345,
		WalSegmentSize: 16 * 1024 * 1024,
	}
	id, err := c.RegisterBasebackup(ctx, d)
	if err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}

	fetched, err := c.GetBaseBackup(ctx, BackupSelector{ID: id}, archiveID, false)
	if err != nil {
		t.Fatalf("GetBaseBackup: %v", err)
	}
	if fetched.Status != StatusInProgress {
		t.Fatalf("expected in progress, got %s", fetched.Status)
	}
	if err := fetched.CheckInvariants(); err != nil {
		t.Fatalf("in-progress invariant check: %v", err)
	}

	stopped := d.Started.Add(5 * time.Minute)
	if err := c.FinalizeBasebackup(ctx, id, stopped, "0/2000000"); err != nil {
		t.Fatalf("FinalizeBasebackup: %v", err)
	}

	ready, err := c.GetBaseBackup(ctx, BackupSelector{ID: id}, archiveID, true)
	if err != nil {
		t.Fatalf("GetBaseBackup valid_only: %v", err)
	}
	if ready.Status != StatusReady || ready.XlogposEnd != "0/2000000" {
		t.Fatalf("unexpected finalized backup: %+v", ready)
	}
	if err := ready.CheckInvariants(); err != nil {
		t.Fatalf("ready invariant check: %v", err)
	}
	if ready.Duration <= 0 {
		t.Fatalf("expected positive computed duration, got %s", ready.Duration)
	}
}

func TestPerformPinAction(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	archiveID, _ := c.CreateArchive(ctx, &ArchiveDescr{Name: "a4", Directory: "/d4"})

	var ids []int64
	for i := 0; i < 3; i++ {
		d := &BaseBackupDescr{
			ArchiveID: archiveID, XlogposStart: "0/1000000", Timeline: 1,
			Label: "b", FSEntry: "/d4/base/b", Started: time.Now().UTC(),
			SystemID: 1, WalSegmentSize: 16 * 1024 * 1024,
		}
		id, err := c.RegisterBasebackup(ctx, d)
		if err != nil {
			t.Fatalf("RegisterBasebackup: %v", err)
		}
		ids = append(ids, id)
	}

	if err := c.PerformPinAction(ctx, ids[:2], true); err != nil {
		t.Fatalf("PerformPinAction: %v", err)
	}

	list, err := c.GetBackupList(ctx, archiveID)
	if err != nil {
		t.Fatalf("GetBackupList: %v", err)
	}
	pinned := 0
	for _, b := range list {
		if b.Pinned {
			pinned++
		}
	}
	if pinned != 2 {
		t.Fatalf("expected 2 pinned backups, got %d", pinned)
	}
}

func TestRetentionPolicyCRUD(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	policy := &RetentionPolicyDescr{
		Name: "p1",
		Rules: []RetentionRuleDescr{
			{Type: RuleKeepNum, Value: "2"},
			{Type: RulePin, Value: "newest"},
		},
	}
	if _, err := c.CreateRetentionPolicy(ctx, policy); err != nil {
		t.Fatalf("CreateRetentionPolicy: %v", err)
	}

	got, err := c.GetRetentionPolicy(ctx, "p1")
	if err != nil {
		t.Fatalf("GetRetentionPolicy: %v", err)
	}
	if len(got.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got.Rules))
	}

	if err := c.DropRetentionPolicy(ctx, "p1"); err != nil {
		t.Fatalf("DropRetentionPolicy: %v", err)
	}
	if _, err := c.GetRetentionPolicy(ctx, "p1"); err == nil {
		t.Fatalf("expected policy to be gone")
	}
}
