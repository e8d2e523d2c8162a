// Package replication defines the replication-stream abstraction treated
// as an external collaborator, and a concrete adapter over pgx/pglogrepl
// that speaks physical (not logical) WAL streaming.
package replication

import (
	"context"

	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// Identity is the server's IDENTIFY_SYSTEM response.
type Identity struct {
	SystemID    uint64
	Timeline    uint32
	XlogposText string
	DBName      string
}

// SlotOptions controls CreatePhysicalReplicationSlot.
type SlotOptions struct {
	ReserveWAL bool
	ExistingOK bool
	NoIdentOK  bool
}

// HistoryFile is one timeline history file's contents.
type HistoryFile struct {
	Filename string
	Content  []byte
}

// WALChunk is one XLogData payload delivered by Walstreamer, carrying the
// raw bytes to be written through internal/walfs's file abstraction —
// physical streaming never decodes rows, unlike a logical decoder.
type WALChunk struct {
	StartPtr xlog.RecPtr
	Data     []byte
}

// Stream is the contractual interface this package describes: connect,
// testConnection, identify, getServerSetting, generateSlotNameUUID,
// createPhysicalReplicationSlot, timelineHistoryFileContent, walstreamer,
// basebackup.
type Stream interface {
	Connect(ctx context.Context, dsn string) error
	TestConnection(ctx context.Context) error
	Identify(ctx context.Context) (Identity, error)
	GetServerSetting(ctx context.Context, name string) (string, error)
	GenerateSlotNameUUID(prefix string) (string, error)
	CreatePhysicalReplicationSlot(ctx context.Context, name string, opts SlotOptions) error
	TimelineHistoryFileContent(ctx context.Context, tli uint32) (HistoryFile, error)
	Walstreamer(ctx context.Context, slotName string, startAt xlog.RecPtr) (<-chan WALChunk, error)
	Basebackup(ctx context.Context, profile BasebackupProfile) (<-chan TablespaceChunk, error)
	Close(ctx context.Context) error
}

// BasebackupProfile carries the subset of a catalog.BackupProfileDescr the
// stream needs to drive pg_basebackup-equivalent behavior.
type BasebackupProfile struct {
	Label          string
	MaxRate        int
	Checkpoint     string
	WaitForArchive bool
}

// TablespaceChunk is one raw tar-format chunk belonging to a tablespace
// during a basebackup, identified by OID (0 for the main data directory).
type TablespaceChunk struct {
	TablespaceOID uint32
	Data          []byte
}
