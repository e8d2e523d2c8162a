package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/shm"
)

func TestReaperPushDrainOrderIndependent(t *testing.T) {
	r := &Reaper{}
	r.push(10)
	r.push(20)
	r.push(30)

	got := r.Drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 pids, got %v", got)
	}
	seen := map[int]bool{}
	for _, pid := range got {
		seen[pid] = true
	}
	for _, want := range []int{10, 20, 30} {
		if !seen[want] {
			t.Fatalf("expected pid %d among drained, got %v", want, got)
		}
	}

	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("expected empty stack after drain, got %v", got)
	}
}

func TestReaperDrainEmpty(t *testing.T) {
	r := &Reaper{}
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("expected no pids from an empty reaper, got %v", got)
	}
}

// TestReapDeadFreesCorrectSlotAmongMany guards against reapDead confusing
// Snapshot's compacted slot order with real segment indices: with several
// slots occupied, reaping a pid that isn't in the first occupied slot
// must free that slot specifically and leave the others untouched.
func TestReapDeadFreesCorrectSlotAmongMany(t *testing.T) {
	catalogPath := filepath.Join(t.TempDir(), "catalog.db")
	l, err := NewLauncher(catalogPath, &countingDispatcher{}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}

	idxA, err := l.workerSeg.Allocate(shm.Slot{PID: 111, CmdTag: "START STREAMING", ArchiveID: 1, Started: time.Now()})
	if err != nil {
		t.Fatalf("Allocate A: %v", err)
	}
	idxB, err := l.workerSeg.Allocate(shm.Slot{PID: 222, CmdTag: "START BASEBACKUP", ArchiveID: 2, Started: time.Now()})
	if err != nil {
		t.Fatalf("Allocate B: %v", err)
	}
	idxC, err := l.workerSeg.Allocate(shm.Slot{PID: 333, CmdTag: "START STREAMING", ArchiveID: 3, Started: time.Now()})
	if err != nil {
		t.Fatalf("Allocate C: %v", err)
	}
	if idxA == idxB || idxB == idxC {
		t.Fatalf("expected distinct slot indices, got %d %d %d", idxA, idxB, idxC)
	}

	// Reap the middle-allocated pid; its segment index is not 0 unless
	// every lower slot happened to be free already.
	l.reaper.push(222)
	l.reapDead()

	snap := l.workerSeg.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 occupied slots after reap, got %d: %+v", len(snap), snap)
	}
	for _, s := range snap {
		if s.PID == 222 {
			t.Fatalf("pid 222's slot should have been freed, found %+v", s)
		}
	}
	seen := map[int64]bool{}
	for _, s := range snap {
		seen[s.PID] = true
	}
	if !seen[111] || !seen[333] {
		t.Fatalf("expected pids 111 and 333 to remain occupied, got %+v", snap)
	}
}
