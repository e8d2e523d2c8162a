package shm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// ChildInfo is one child sub-slot: a process the worker forked (a WAL
// streamer, a base-backup streamer) along with the backup it is serving.
type ChildInfo struct {
	PID      int64
	BackupID int64
}

// Slot is one worker-segment entry.
type Slot struct {
	PID             int64
	CmdTag          string
	ArchiveID       int64
	Started         time.Time
	BasebackupInUse bool
	Children        [ChildMax]ChildInfo
}

func (s Slot) free() bool { return s.PID == 0 }

// WorkerSegment is the fixed-capacity `slot[0..MaxSlots-1]` array shared
// between the launcher and every worker it spawns.
type WorkerSegment struct {
	f    *os.File
	mm   mmap.MMap
	lock *flock.Flock
}

// CreateWorkerSegment creates (or reuses) the worker segment for the
// catalog at catalogPath. Called by the launcher before it starts
// accepting commands.
func CreateWorkerSegment(catalogPath string) (*WorkerSegment, error) {
	path := workerPath(catalogPath)
	f, mm, err := openOrCreate(path, int64(MaxSlots*slotSize), false)
	if err != nil {
		return nil, err
	}
	return &WorkerSegment{f: f, mm: mm, lock: flock.New(path + ".lock")}, nil
}

// OpenWorkerSegment attaches to an existing worker segment: attach-only,
// it must already exist, since workers never create it.
func OpenWorkerSegment(catalogPath string) (*WorkerSegment, error) {
	path := workerPath(catalogPath)
	f, mm, err := openOrCreate(path, int64(MaxSlots*slotSize), true)
	if err != nil {
		return nil, err
	}
	return &WorkerSegment{f: f, mm: mm, lock: flock.New(path + ".lock")}, nil
}

// Close unmaps the segment.
func (w *WorkerSegment) Close() error {
	if err := w.mm.Unmap(); err != nil {
		return apperrors.SHM("unmap worker segment", err)
	}
	return w.f.Close()
}

func (w *WorkerSegment) slotBytes(i int) []byte {
	off := i * slotSize
	return w.mm[off : off+slotSize]
}

func encodeSlot(b []byte, s Slot) {
	for i := range b {
		b[i] = 0
	}
	putInt64(b, 0, s.PID)
	tag := s.CmdTag
	if len(tag) > cmdTagLen {
		tag = tag[:cmdTagLen]
	}
	copy(b[8:8+cmdTagLen], tag)
	off := 8 + cmdTagLen
	putInt64(b, off, s.ArchiveID)
	off += 8
	putInt64(b, off, s.Started.Unix())
	off += 8
	if s.BasebackupInUse {
		b[off] = 1
	}
	off++
	for i := 0; i < ChildMax; i++ {
		putInt64(b, off, s.Children[i].PID)
		putInt64(b, off+8, s.Children[i].BackupID)
		off += childSize
	}
}

func decodeSlot(b []byte) Slot {
	var s Slot
	s.PID = getInt64(b, 0)
	s.CmdTag = strings.TrimRight(string(b[8:8+cmdTagLen]), "\x00")
	off := 8 + cmdTagLen
	s.ArchiveID = getInt64(b, off)
	off += 8
	s.Started = time.Unix(getInt64(b, off), 0)
	off += 8
	s.BasebackupInUse = b[off] != 0
	off++
	for i := 0; i < ChildMax; i++ {
		s.Children[i] = ChildInfo{PID: getInt64(b, off), BackupID: getInt64(b, off+8)}
		off += childSize
	}
	return s
}

// Allocate finds the first free slot, writes entry into it, and returns
// its index. Fails if no free slot exists.
func (w *WorkerSegment) Allocate(entry Slot) (int, error) {
	if err := w.lock.Lock(); err != nil {
		return 0, apperrors.SHM("allocate worker slot", err)
	}
	defer w.lock.Unlock() //nolint:errcheck

	for i := 0; i < MaxSlots; i++ {
		if decodeSlot(w.slotBytes(i)).free() {
			encodeSlot(w.slotBytes(i), entry)
			if err := w.mm.Flush(); err != nil {
				return 0, apperrors.SHM("allocate worker slot", err)
			}
			return i, nil
		}
	}
	return 0, apperrors.Worker("allocate worker slot", fmt.Errorf("no free slot (max %d)", MaxSlots))
}

// Free zeroes slot index, clearing all of its child sub-slots.
func (w *WorkerSegment) Free(index int) error {
	if index < 0 || index >= MaxSlots {
		return apperrors.Worker("free worker slot", fmt.Errorf("slot index %d out of range", index))
	}
	if err := w.lock.Lock(); err != nil {
		return apperrors.SHM("free worker slot", err)
	}
	defer w.lock.Unlock() //nolint:errcheck

	encodeSlot(w.slotBytes(index), Slot{})
	return w.mm.Flush()
}

// UpdateChild writes child into slot index's child sub-slot childIndex. A
// childIndex of -1 searches for the first free child sub-slot and
// recomputes basebackup_in_use afterward.
func (w *WorkerSegment) UpdateChild(index, childIndex int, child ChildInfo) error {
	if index < 0 || index >= MaxSlots {
		return apperrors.Worker("update child slot", fmt.Errorf("slot index %d out of range", index))
	}
	if err := w.lock.Lock(); err != nil {
		return apperrors.SHM("update child slot", err)
	}
	defer w.lock.Unlock() //nolint:errcheck

	s := decodeSlot(w.slotBytes(index))
	if childIndex == -1 {
		for i, c := range s.Children {
			if c.PID <= 0 {
				childIndex = i
				break
			}
		}
		if childIndex == -1 {
			return apperrors.Worker("update child slot", fmt.Errorf("no free child sub-slot (max %d)", ChildMax))
		}
	}
	if childIndex < 0 || childIndex >= ChildMax {
		return apperrors.Worker("update child slot", fmt.Errorf("child index %d out of range", childIndex))
	}
	s.Children[childIndex] = child
	recomputeBasebackupInUse(&s)
	encodeSlot(w.slotBytes(index), s)
	return w.mm.Flush()
}

// DetachBasebackup clears a child's backup_id and recomputes
// basebackup_in_use by scanning the remaining children.
func (w *WorkerSegment) DetachBasebackup(index, childIndex int) error {
	if index < 0 || index >= MaxSlots || childIndex < 0 || childIndex >= ChildMax {
		return apperrors.Worker("detach basebackup", fmt.Errorf("slot/child index out of range"))
	}
	if err := w.lock.Lock(); err != nil {
		return apperrors.SHM("detach basebackup", err)
	}
	defer w.lock.Unlock() //nolint:errcheck

	s := decodeSlot(w.slotBytes(index))
	s.Children[childIndex].BackupID = 0
	recomputeBasebackupInUse(&s)
	encodeSlot(w.slotBytes(index), s)
	return w.mm.Flush()
}

func recomputeBasebackupInUse(s *Slot) {
	s.BasebackupInUse = false
	for _, c := range s.Children {
		if c.BackupID != 0 {
			s.BasebackupInUse = true
			return
		}
	}
}

// Snapshot returns every occupied slot, for the monitor TUI and for the
// retention engine's locked_by_shm classification.
func (w *WorkerSegment) Snapshot() []Slot {
	var out []Slot
	for _, is := range w.SnapshotIndexed() {
		out = append(out, is.Slot)
	}
	return out
}

// IndexedSlot pairs an occupied Slot with its raw segment index, the
// value Free/UpdateChild/DetachBasebackup actually expect — Snapshot's
// compacted []Slot view drops that index, so any caller that needs to
// act on a specific slot afterward (reapDead) must use SnapshotIndexed
// instead.
type IndexedSlot struct {
	Index int
	Slot  Slot
}

// SnapshotIndexed returns every occupied slot together with its real
// segment index.
func (w *WorkerSegment) SnapshotIndexed() []IndexedSlot {
	var out []IndexedSlot
	for i := 0; i < MaxSlots; i++ {
		s := decodeSlot(w.slotBytes(i))
		if !s.free() {
			out = append(out, IndexedSlot{Index: i, Slot: s})
		}
	}
	return out
}

// BackupIDsInUse collects every child sub-slot's backup id across all
// occupied slots — the shmLocked input retention.EvaluateRule expects.
func (w *WorkerSegment) BackupIDsInUse() map[int64]bool {
	out := make(map[int64]bool)
	for _, s := range w.Snapshot() {
		for _, c := range s.Children {
			if c.BackupID != 0 {
				out[c.BackupID] = true
			}
		}
	}
	return out
}
