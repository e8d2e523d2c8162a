package catalog

import "time"

// BackupStatus enumerates the lifecycle states of a BaseBackup.
type BackupStatus string

const (
	StatusInProgress BackupStatus = "in progress"
	StatusReady      BackupStatus = "ready"
	StatusAborted    BackupStatus = "aborted"
)

// ConnType enumerates the two connection purposes tracked per archive.
type ConnType string

const (
	ConnBasebackup ConnType = "basebackup"
	ConnStreamer   ConnType = "streamer"
)

// CompressType enumerates BackupProfile.compress_type.
type CompressType string

const (
	CompressNone  CompressType = "none"
	CompressGzip  CompressType = "gzip"
	CompressZstd  CompressType = "zstd"
	CompressXz    CompressType = "xz"
	CompressPlain CompressType = "plain"
)

// StreamType enumerates Stream.stype.
type StreamType string

const (
	StreamBasebackup StreamType = "basebackup"
	StreamWAL        StreamType = "streamer"
)

// ProcType enumerates CatalogProc.type.
type ProcType string

const (
	ProcLauncher ProcType = "launcher"
	ProcStreamer ProcType = "streamer"
	ProcWorker   ProcType = "worker"
)

// ProcState enumerates CatalogProc.state.
type ProcState string

const (
	ProcRunning  ProcState = "running"
	ProcShutdown ProcState = "shutdown"
)

// affected is embedded by every descriptor to implement the
// affected-attributes protocol: setters append the ColumnID they touched,
// and bind/fetch dispatch tables iterate only over this vector.
type affected struct {
	cols []ColumnID
}

func (a *affected) touch(c ColumnID) {
	for _, existing := range a.cols {
		if existing == c {
			return
		}
	}
	a.cols = append(a.cols, c)
}

// Affected returns the ordered set of columns this descriptor has had set
// on it since construction (or since ResetAffected).
func (a *affected) Affected() []ColumnID { return a.cols }

func (a *affected) ResetAffected() { a.cols = nil }

// ArchiveDescr is the in-memory form of the Archive entity.
type ArchiveDescr struct {
	affected
	ID          int64
	Name        string
	Directory   string
	Compression bool
}

func (d *ArchiveDescr) SetName(v string) *ArchiveDescr {
	d.Name = v
	d.touch(ColArchiveName)
	return d
}

func (d *ArchiveDescr) SetDirectory(v string) *ArchiveDescr {
	d.Directory = v
	d.touch(ColArchiveDirectory)
	return d
}

func (d *ArchiveDescr) SetCompression(v bool) *ArchiveDescr {
	d.Compression = v
	d.touch(ColArchiveCompression)
	return d
}

// ConnectionDescr is the in-memory form of the Connection entity. Setting
// DSN invalidates the discrete fields.
type ConnectionDescr struct {
	affected
	ArchiveID int64
	Type      ConnType
	DSN       string
	Host      string
	Port      int
	User      string
	DBName    string
}

func (d *ConnectionDescr) SetDSN(v string) *ConnectionDescr {
	d.DSN = v
	d.Host, d.Port, d.User, d.DBName = "", 0, "", ""
	d.touch(ColConnDSN)
	return d
}

func (d *ConnectionDescr) SetHost(v string) *ConnectionDescr {
	d.Host = v
	d.DSN = ""
	d.touch(ColConnHost)
	return d
}

func (d *ConnectionDescr) SetPort(v int) *ConnectionDescr {
	d.Port = v
	d.DSN = ""
	d.touch(ColConnPort)
	return d
}

func (d *ConnectionDescr) SetUser(v string) *ConnectionDescr {
	d.User = v
	d.DSN = ""
	d.touch(ColConnUser)
	return d
}

func (d *ConnectionDescr) SetDBName(v string) *ConnectionDescr {
	d.DBName = v
	d.DSN = ""
	d.touch(ColConnDBName)
	return d
}

// BackupProfileDescr is the in-memory form of the BackupProfile entity.
type BackupProfileDescr struct {
	affected
	ID                 int64
	Name               string
	CompressType       CompressType
	MaxRate            int
	Label              string
	FastCheckpoint     bool
	IncludeWAL         bool
	WaitForWAL         bool
	NoverifyChecksums  bool
	Manifest           bool
	ManifestChecksums  string
}

func (d *BackupProfileDescr) SetName(v string) *BackupProfileDescr {
	d.Name = v
	d.touch(ColProfileName)
	return d
}

func (d *BackupProfileDescr) SetCompressType(v CompressType) *BackupProfileDescr {
	d.CompressType = v
	d.touch(ColProfileCompressType)
	return d
}

// BackupTablespaceDescr is the in-memory form of BackupTablespace.
type BackupTablespaceDescr struct {
	affected
	ID          int64
	BackupID    int64
	SpcOID      uint32
	SpcLocation string
	SpcSize     int64
}

// IsDefaultTablespace reports whether this row is the default
// ("spcoid=0") tablespace.
func (d *BackupTablespaceDescr) IsDefaultTablespace() bool { return d.SpcOID == 0 }

// BaseBackupDescr is the in-memory form of BaseBackup, including its
// tablespaces.
type BaseBackupDescr struct {
	affected
	ID             int64
	ArchiveID      int64
	XlogposStart   string
	XlogposEnd     string
	Timeline       uint32
	Label          string
	FSEntry        string
	Started        time.Time
	Stopped        time.Time
	Pinned         bool
	Status         BackupStatus
	SystemID       uint64
	WalSegmentSize uint64
	UsedProfile    string
	Tablespaces    []BackupTablespaceDescr

	// Computed, fetch-only fields.
	Duration             time.Duration
	ExceedsRetentionRule bool
}

func (d *BaseBackupDescr) SetXlogposEnd(v string) *BaseBackupDescr {
	d.XlogposEnd = v
	d.touch(ColBackupXlogposEnd)
	return d
}

func (d *BaseBackupDescr) SetStopped(v time.Time) *BaseBackupDescr {
	d.Stopped = v
	d.touch(ColBackupStopped)
	return d
}

func (d *BaseBackupDescr) SetStatus(v BackupStatus) *BaseBackupDescr {
	d.Status = v
	d.touch(ColBackupStatus)
	return d
}

func (d *BaseBackupDescr) SetPinned(v bool) *BaseBackupDescr {
	d.Pinned = v
	d.touch(ColBackupPinned)
	return d
}

func (d *BaseBackupDescr) SetSystemID(v uint64) *BaseBackupDescr {
	d.SystemID = v
	d.touch(ColBackupSystemID)
	return d
}

// Valid reports whether the backup's status makes it eligible for retention
// count-based selection ("in progress" and "aborted" are not
// eligible for count-based keep/drop").
func (d *BaseBackupDescr) Valid() bool {
	return d.Status == StatusReady
}

// CheckInvariants validates the lifecycle invariants of a BaseBackup row.
func (d *BaseBackupDescr) CheckInvariants() error {
	switch d.Status {
	case StatusReady:
		if d.XlogposEnd == "" || d.Stopped.IsZero() {
			return errInvariant("ready backup missing xlogpos_end/stopped")
		}
		if d.Stopped.Before(d.Started) {
			return errInvariant("ready backup stopped before started")
		}
	case StatusInProgress:
		if d.XlogposEnd != "" || !d.Stopped.IsZero() {
			return errInvariant("in-progress backup has xlogpos_end/stopped set")
		}
	}
	return nil
}

// StreamDescr is the in-memory form of the Stream entity.
type StreamDescr struct {
	affected
	ID         int64
	ArchiveID  int64
	Type       StreamType
	SlotName   string
	SystemID   uint64
	Timeline   uint32
	Xlogpos    string
	DBName     string
	Status     string
	CreateDate time.Time
}

// CatalogProcDescr is the in-memory form of CatalogProc.
type CatalogProcDescr struct {
	affected
	PID       int
	ArchiveID int64
	Type      ProcType
	Started   time.Time
	State     ProcState
	ShmKey    string
	ShmID     int64
}

// RuleType enumerates RetentionRule.type.
type RuleType string

const (
	RuleKeepWithLabel RuleType = "keep_with_label"
	RuleDropWithLabel RuleType = "drop_with_label"
	RuleKeepNum       RuleType = "keep_num"
	RuleDropNum       RuleType = "drop_num"
	RuleKeepNewerDT   RuleType = "keep_newer_dt"
	RuleKeepOlderDT   RuleType = "keep_older_dt"
	RuleDropNewerDT   RuleType = "drop_newer_dt"
	RuleDropOlderDT   RuleType = "drop_older_dt"
	RulePin           RuleType = "pin"
	RuleUnpin         RuleType = "unpin"
	RuleCleanup       RuleType = "cleanup"
)

// RetentionRuleDescr is the in-memory form of RetentionRule.
type RetentionRuleDescr struct {
	affected
	ID       int64
	PolicyID int64
	Type     RuleType
	Value    string
}

// RetentionPolicyDescr is the in-memory form of RetentionPolicy, including
// its rules.
type RetentionPolicyDescr struct {
	affected
	ID      int64
	Name    string
	Created time.Time
	Rules   []RetentionRuleDescr
}

type invariantError string

func (e invariantError) Error() string { return string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
