package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

func newTestCollector(t *testing.T) (*Collector, *shm.WorkerSegment) {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.Open(filepath.Join(dir, "catalog.db"), catalog.Options{Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	seg, err := shm.CreateWorkerSegment(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("CreateWorkerSegment: %v", err)
	}
	t.Cleanup(func() { seg.Close() })

	c := NewCollector(seg, cat, zerolog.Nop())
	t.Cleanup(c.Close)
	return c, seg
}

func TestCollector_SnapshotResolvesArchiveNames(t *testing.T) {
	c, seg := newTestCollector(t)
	ctx := context.Background()

	id, err := c.catalog.CreateArchive(ctx, &catalog.ArchiveDescr{Name: "prod", Directory: "/var/archive/prod"})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	if _, err := seg.Allocate(shm.Slot{PID: 4242, CmdTag: "START BASEBACKUP", ArchiveID: id, Started: time.Now()}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.SlotsMax != shm.MaxSlots {
		t.Errorf("SlotsMax = %d, want %d", snap.SlotsMax, shm.MaxSlots)
	}
	if snap.SlotsInUse != 1 {
		t.Fatalf("SlotsInUse = %d, want 1", snap.SlotsInUse)
	}
	if snap.Slots[0].ArchiveName != "prod" {
		t.Errorf("ArchiveName = %q, want prod", snap.Slots[0].ArchiveName)
	}
	if snap.Slots[0].PID != 4242 {
		t.Errorf("PID = %d, want 4242", snap.Slots[0].PID)
	}
}

func TestCollector_SnapshotCountsBasebackupsRunning(t *testing.T) {
	c, seg := newTestCollector(t)
	ctx := context.Background()

	id, err := c.catalog.CreateArchive(ctx, &catalog.ArchiveDescr{Name: "a1", Directory: "/var/archive/a1"})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	idx, err := seg.Allocate(shm.Slot{PID: 100, CmdTag: "START STREAMING", ArchiveID: id, Started: time.Now()})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := seg.UpdateChild(idx, -1, shm.ChildInfo{PID: 101, BackupID: 7}); err != nil {
		t.Fatalf("UpdateChild: %v", err)
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.BasebackupsRunning != 1 {
		t.Errorf("BasebackupsRunning = %d, want 1", snap.BasebackupsRunning)
	}
	if len(snap.Slots[0].Children) != 1 || snap.Slots[0].Children[0].BackupID != 7 {
		t.Errorf("unexpected children: %+v", snap.Slots[0].Children)
	}
}

func TestCollector_SubscribeUnsubscribe(t *testing.T) {
	c, _ := newTestCollector(t)

	ch := c.Subscribe()
	c.broadcast(Snapshot{SlotsMax: shm.MaxSlots})
	select {
	case <-ch:
	default:
		t.Fatal("expected a broadcast snapshot on the subscribed channel")
	}

	c.Unsubscribe(ch)
	// Should not panic or deadlock.
	c.broadcast(Snapshot{SlotsMax: shm.MaxSlots})
}

func TestCollector_RunStopsOnClose(t *testing.T) {
	c, _ := newTestCollector(t)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background(), time.Millisecond)
		close(done)
	}()

	c.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}
