package dispatch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/retention"
	"github.com/jfoltran/pgbackupctl/internal/rtvars"
)

type fakeFS struct {
	removed []string
}

func (f *fakeFS) RemoveBackupDir(fsentry string) error {
	f.removed = append(f.removed, fsentry)
	return nil
}

func (f *fakeFS) CleanupWAL(timeline uint32, offset retention.TimelineOffset) error { return nil }

func (f *fakeFS) CleanupAbsentTimelines(planTimelines map[uint32]struct{}, oldestPlanTimeline uint32) error {
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeFS) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := catalog.Open(path, catalog.Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	vars, err := rtvars.NewDefault(nil)
	if err != nil {
		t.Fatalf("rtvars.NewDefault: %v", err)
	}

	fs := &fakeFS{}
	return &Dispatcher{Catalog: cat, FS: fs, Variables: vars, Logger: zerolog.Nop()}, fs
}

func TestCreateAndListArchive(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, Request{Tag: TagCreateArchive, Archive: &catalog.ArchiveDescr{Name: "a1", Directory: filepath.Join(t.TempDir(), "a1")}})
	if err != nil {
		t.Fatalf("Dispatch create archive: %v", err)
	}
	if res.Message == "" {
		t.Fatalf("expected a confirmation message")
	}

	res, err = d.Dispatch(ctx, Request{Tag: TagListArchive})
	if err != nil {
		t.Fatalf("Dispatch list archive: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["name"] != "a1" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

func TestDropBasebackupRemovesFSEntry(t *testing.T) {
	d, fs := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, Request{Tag: TagCreateArchive, Archive: &catalog.ArchiveDescr{Name: "a1", Directory: filepath.Join(t.TempDir(), "a1")}}); err != nil {
		t.Fatalf("create archive: %v", err)
	}
	archive, err := d.Catalog.GetArchive(ctx, "a1")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	backupID, err := d.Catalog.RegisterBasebackup(ctx, &catalog.BaseBackupDescr{
		ArchiveID:      archive.ID,
		Label:          "backup1",
		FSEntry:        "/var/archive/a1/base/backup1",
		WalSegmentSize: 16 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}

	_, err = d.Dispatch(ctx, Request{
		Tag:            TagDropBasebackup,
		ArchiveName:    "a1",
		BackupSelector: catalog.BackupSelector{ID: backupID},
	})
	if err != nil {
		t.Fatalf("Dispatch drop basebackup: %v", err)
	}
	if len(fs.removed) != 1 || fs.removed[0] != "/var/archive/a1/base/backup1" {
		t.Fatalf("expected the backup's fsentry to be removed, got %v", fs.removed)
	}
}

func TestSetResetShowVariable(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, Request{Tag: TagSetVariable, VariableName: "compress_type", VariableValue: "zstd"}); err != nil {
		t.Fatalf("Dispatch set variable: %v", err)
	}
	res, err := d.Dispatch(ctx, Request{Tag: TagShowVariable, VariableName: "compress_type"})
	if err != nil {
		t.Fatalf("Dispatch show variable: %v", err)
	}
	if res.Rows[0]["value"] != "zstd" {
		t.Fatalf("unexpected value: %+v", res.Rows)
	}

	if _, err := d.Dispatch(ctx, Request{Tag: TagResetVariable, VariableName: "compress_type"}); err != nil {
		t.Fatalf("Dispatch reset variable: %v", err)
	}
	res, err = d.Dispatch(ctx, Request{Tag: TagShowVariable, VariableName: "compress_type"})
	if err != nil {
		t.Fatalf("Dispatch show variable after reset: %v", err)
	}
	if res.Rows[0]["value"] != "gzip" {
		t.Fatalf("expected reset to restore default gzip, got %+v", res.Rows)
	}
}

func TestDispatchUnknownTagErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)
	if _, err := d.Dispatch(context.Background(), Request{Tag: Tag("NOT A REAL TAG")}); err == nil {
		t.Fatalf("expected an error for an unrecognized tag")
	}
}

func TestPinAndUnpinBasebackup(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, Request{Tag: TagCreateArchive, Archive: &catalog.ArchiveDescr{Name: "a1", Directory: filepath.Join(t.TempDir(), "a1")}}); err != nil {
		t.Fatalf("create archive: %v", err)
	}
	archive, _ := d.Catalog.GetArchive(ctx, "a1")
	backupID, err := d.Catalog.RegisterBasebackup(ctx, &catalog.BaseBackupDescr{
		ArchiveID:      archive.ID,
		Label:          "backup1",
		WalSegmentSize: 16 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}

	if _, err := d.Dispatch(ctx, Request{Tag: TagPin, ArchiveName: "a1", BackupSelector: catalog.BackupSelector{ID: backupID}}); err != nil {
		t.Fatalf("Dispatch pin: %v", err)
	}
	backup, err := d.Catalog.GetBaseBackup(ctx, catalog.BackupSelector{ID: backupID}, archive.ID, false)
	if err != nil {
		t.Fatalf("GetBaseBackup: %v", err)
	}
	if !backup.Pinned {
		t.Fatalf("expected backup to be pinned")
	}

	if _, err := d.Dispatch(ctx, Request{Tag: TagUnpin, ArchiveName: "a1", BackupSelector: catalog.BackupSelector{ID: backupID}}); err != nil {
		t.Fatalf("Dispatch unpin: %v", err)
	}
	backup, err = d.Catalog.GetBaseBackup(ctx, catalog.BackupSelector{ID: backupID}, archive.ID, false)
	if err != nil {
		t.Fatalf("GetBaseBackup: %v", err)
	}
	if backup.Pinned {
		t.Fatalf("expected backup to be unpinned")
	}
}
