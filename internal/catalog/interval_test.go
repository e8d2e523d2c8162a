package catalog

import (
	"context"
	"testing"
	"time"
)

func TestIntervalRoundTrip(t *testing.T) {
	cases := []string{"+7 days", "+7 days|-12 hours", "+1 years|+2 months|-3 minutes"}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			e, err := ParseInterval(s)
			if err != nil {
				t.Fatalf("ParseInterval(%q): %v", s, err)
			}
			if got := e.Compile(); got != s {
				t.Fatalf("compile(parse(%q)) = %q, want %q", s, got, s)
			}
		})
	}
}

func TestIntervalParseErrors(t *testing.T) {
	for _, s := range []string{"", "7 days", "+7 fortnights", "x|y"} {
		if _, err := ParseInterval(s); err == nil {
			t.Fatalf("ParseInterval(%q): expected error", s)
		}
	}
}

func TestExceedsRetention(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	archiveID, _ := c.CreateArchive(ctx, &ArchiveDescr{Name: "a5", Directory: "/d5"})

	old := &BaseBackupDescr{
		ArchiveID: archiveID, XlogposStart: "0/1000000", Timeline: 1,
		Label: "old", FSEntry: "/d5/base/old", Started: time.Now().Add(-48 * time.Hour),
		SystemID: 1, WalSegmentSize: 16 * 1024 * 1024,
	}
	id, err := c.RegisterBasebackup(ctx, old)
	if err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}
	stopped := old.Started.Add(5 * time.Minute)
	if err := c.FinalizeBasebackup(ctx, id, stopped, "0/2000000"); err != nil {
		t.Fatalf("FinalizeBasebackup: %v", err)
	}

	fetched, err := c.GetBaseBackup(ctx, BackupSelector{ID: id}, archiveID, false)
	if err != nil {
		t.Fatalf("GetBaseBackup: %v", err)
	}

	interval, _ := ParseInterval("+1 days")
	olderThanADay, err := c.ExceedsRetention(ctx, fetched, "older_than", interval)
	if err != nil {
		t.Fatalf("ExceedsRetention: %v", err)
	}
	if !olderThanADay {
		t.Fatalf("expected a 2-day-old backup to exceed a 1-day older_than rule")
	}

	newerThanADay, err := c.ExceedsRetention(ctx, fetched, "newer_than", interval)
	if err != nil {
		t.Fatalf("ExceedsRetention: %v", err)
	}
	if newerThanADay {
		t.Fatalf("expected a 2-day-old backup to NOT exceed a 1-day newer_than rule")
	}
}

func TestExceedsRetentionInProgressAlwaysFalse(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	archiveID, _ := c.CreateArchive(ctx, &ArchiveDescr{Name: "a6", Directory: "/d6"})

	d := &BaseBackupDescr{
		ArchiveID: archiveID, XlogposStart: "0/1000000", Timeline: 1,
		Label: "inprog", FSEntry: "/d6/base/inprog", Started: time.Now().Add(-72 * time.Hour),
		SystemID: 1, WalSegmentSize: 16 * 1024 * 1024,
	}
	if _, err := c.RegisterBasebackup(ctx, d); err != nil {
		t.Fatalf("RegisterBasebackup: %v", err)
	}

	interval, _ := ParseInterval("+1 days")
	exceeds, err := c.ExceedsRetention(ctx, d, "older_than", interval)
	if err != nil {
		t.Fatalf("ExceedsRetention: %v", err)
	}
	if exceeds {
		t.Fatalf("in-progress backups must never exceed retention")
	}
}
