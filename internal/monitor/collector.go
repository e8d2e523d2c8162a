// Package monitor turns a live worker segment into a pollable/streamable
// Snapshot for the TUI and the status socket, the way internal/metrics
// turns pipeline state into a Snapshot for pgmigrator's dashboard and
// HTTP API.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// ChildView is one worker slot's child sub-slot, archive-name-resolved.
type ChildView struct {
	PID      int64 `json:"pid"`
	BackupID int64 `json:"backup_id"`
}

// SlotView is one occupied worker-segment slot, archive-name-resolved.
type SlotView struct {
	PID             int64       `json:"pid"`
	ArchiveName     string      `json:"archive_name"`
	CmdTag          string      `json:"cmd_tag"`
	Started         time.Time   `json:"started"`
	ElapsedSec      float64     `json:"elapsed_sec"`
	BasebackupInUse bool        `json:"basebackup_in_use"`
	Children        []ChildView `json:"children,omitempty"`
}

// Snapshot is the complete launcher status at a point in time.
type Snapshot struct {
	Timestamp          time.Time  `json:"timestamp"`
	Slots              []SlotView `json:"slots"`
	SlotsInUse         int        `json:"slots_in_use"`
	SlotsMax           int        `json:"slots_max"`
	BasebackupsRunning int        `json:"basebackups_running"`
}

// Collector polls a worker segment, resolves its archive ids to names
// through the catalog, and fans the result out to subscribers.
type Collector struct {
	logger    zerolog.Logger
	workerSeg *shm.WorkerSegment
	catalog   *catalog.Catalog

	subMu       sync.Mutex
	subscribers map[chan Snapshot]struct{}

	done chan struct{}
}

// NewCollector creates a Collector over an already-attached worker
// segment. cat is used once per poll to resolve archive ids to names;
// callers with a long-lived launcher should pass the same *Catalog the
// dispatcher uses.
func NewCollector(workerSeg *shm.WorkerSegment, cat *catalog.Catalog, logger zerolog.Logger) *Collector {
	return &Collector{
		logger:      logger.With().Str("component", "monitor").Logger(),
		workerSeg:   workerSeg,
		catalog:     cat,
		subscribers: make(map[chan Snapshot]struct{}),
		done:        make(chan struct{}),
	}
}

// Snapshot takes one immediate reading of the worker segment.
func (c *Collector) Snapshot(ctx context.Context) (Snapshot, error) {
	now := time.Now()
	slots := c.workerSeg.Snapshot()

	archives, err := c.catalog.ListArchives(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	names := make(map[int64]string, len(archives))
	for _, a := range archives {
		names[a.ID] = a.Name
	}

	snap := Snapshot{Timestamp: now, SlotsMax: shm.MaxSlots}
	for _, s := range slots {
		view := SlotView{
			PID:             s.PID,
			ArchiveName:     names[s.ArchiveID],
			CmdTag:          s.CmdTag,
			Started:         s.Started,
			ElapsedSec:      now.Sub(s.Started).Seconds(),
			BasebackupInUse: s.BasebackupInUse,
		}
		for _, ch := range s.Children {
			if ch.PID == 0 {
				continue
			}
			view.Children = append(view.Children, ChildView{PID: ch.PID, BackupID: ch.BackupID})
		}
		snap.Slots = append(snap.Slots, view)
		if s.BasebackupInUse {
			snap.BasebackupsRunning++
		}
	}
	snap.SlotsInUse = len(slots)
	return snap, nil
}

// Run polls at interval and broadcasts to subscribers until ctx is done
// or Close is called.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			snap, err := c.Snapshot(ctx)
			if err != nil {
				c.logger.Err(err).Msg("poll worker segment")
				continue
			}
			c.broadcast(snap)
		}
	}
}

func (c *Collector) broadcast(snap Snapshot) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe returns a channel that receives every broadcast Snapshot.
func (c *Collector) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 4)
	c.subMu.Lock()
	c.subscribers[ch] = struct{}{}
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscription channel.
func (c *Collector) Unsubscribe(ch chan Snapshot) {
	c.subMu.Lock()
	delete(c.subscribers, ch)
	c.subMu.Unlock()
}

// Close stops Run.
func (c *Collector) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}
