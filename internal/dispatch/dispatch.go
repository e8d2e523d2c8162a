// Package dispatch maps command-grammar tags onto concrete actions
// against the catalog, the archive filesystem, the runtime-variable
// registry, and a status sink. It accepts a typed Request in place of a parsed
// grammar AST — the grammar/parser itself is out of scope, matching
// internal/migration/pipeline's split between phase-sequencing logic and
// the decoder/applier/copier collaborators it orchestrates.
package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/retention"
	"github.com/jfoltran/pgbackupctl/internal/rtvars"
	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// Request bundles one command-grammar tag with the typed fields it
// operates on. Each handler reads only the fields its tag needs (often
// more than one, e.g. ArchiveName plus Connection); the rest stay zero.
type Request struct {
	Tag Tag

	Archive        *catalog.ArchiveDescr
	ArchiveName    string
	Connection     *catalog.ConnectionDescr
	Profile        *catalog.BackupProfileDescr
	ProfileName    string
	BackupSelector catalog.BackupSelector
	RetentionRule  *catalog.RetentionPolicyDescr
	PolicyName     string
	VariableName   string
	VariableValue  string
	Verbose        bool
	Force          bool
	Restart        bool
	NoDetach       bool
}

// Tag enumerates the recognized command-grammar tags.
type Tag string

const (
	TagCreateArchive             Tag = "CREATE ARCHIVE"
	TagDropArchive               Tag = "DROP ARCHIVE"
	TagAlterArchive              Tag = "ALTER ARCHIVE"
	TagVerifyArchive             Tag = "VERIFY ARCHIVE"
	TagListArchive               Tag = "LIST ARCHIVE"
	TagCreateBackupProfile       Tag = "CREATE BACKUP PROFILE"
	TagDropBackupProfile         Tag = "DROP BACKUP PROFILE"
	TagListBackupProfile         Tag = "LIST BACKUP PROFILE"
	TagCreateStreamingConnection Tag = "CREATE STREAMING CONNECTION FOR ARCHIVE"
	TagDropStreamingConnection   Tag = "DROP STREAMING CONNECTION FROM ARCHIVE"
	TagListConnection            Tag = "LIST CONNECTION FOR ARCHIVE"
	TagStartBasebackup           Tag = "START BASEBACKUP FOR ARCHIVE"
	TagDropBasebackup            Tag = "DROP BASEBACKUP FROM ARCHIVE"
	TagListBasebackups           Tag = "LIST BASEBACKUPS IN ARCHIVE"
	TagStartStreaming            Tag = "START STREAMING FOR ARCHIVE"
	TagStopStreaming             Tag = "STOP STREAMING FOR ARCHIVE"
	TagStartRecoveryStream       Tag = "START RECOVERY STREAM FOR ARCHIVE"
	TagPin                       Tag = "PIN"
	TagUnpin                     Tag = "UNPIN"
	TagCreateRetentionPolicy     Tag = "CREATE RETENTION POLICY"
	TagDropRetentionPolicy       Tag = "DROP RETENTION POLICY"
	TagApplyRetentionPolicy      Tag = "APPLY RETENTION POLICY"
	TagListRetentionPolicies     Tag = "LIST RETENTION POLICIES"
	TagShowWorkers               Tag = "SHOW WORKERS"
	TagShowVariables             Tag = "SHOW VARIABLES"
	TagShowVariable              Tag = "SHOW VARIABLE"
	TagSetVariable               Tag = "SET VARIABLE"
	TagResetVariable             Tag = "RESET VARIABLE"
	TagStartLauncher             Tag = "START LAUNCHER"
)

// Result carries the human/structured-facing payload produced by a
// handler. Rendering itself (Non-goals) is the caller's job;
// dispatch only produces the data.
type Result struct {
	Message string
	Rows    []map[string]any
}

// Dispatcher executes Requests against the catalog and its collaborators.
type Dispatcher struct {
	Catalog     *catalog.Catalog
	FS          retention.ArchiveFS
	Variables   *rtvars.Registry
	StatusQueue StatusSink
	Logger      zerolog.Logger

	// WorkerSeg backs SHOW WORKERS. It is nil for a dispatcher wired
	// without an attached worker segment, in which case showWorkers
	// reports zero running workers rather than erroring.
	WorkerSeg *shm.WorkerSegment
}

// StatusSink lets dispatch notify a running launcher of catalog changes
// that affect its worker table (e.g. a new streaming request), without
// internal/dispatch importing internal/supervisor directly — mirroring
// the forward-declared Dispatcher interface internal/supervisor itself
// defines for the opposite direction.
type StatusSink interface {
	Notify(ctx context.Context, archiveName string, tag string) error
}

// Dispatch routes req to its handler by tag.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	switch req.Tag {
	case TagCreateArchive:
		return d.createArchive(ctx, req)
	case TagDropArchive:
		return d.dropArchive(ctx, req)
	case TagAlterArchive:
		return d.alterArchive(ctx, req)
	case TagVerifyArchive:
		return d.verifyArchive(ctx, req)
	case TagListArchive:
		return d.listArchives(ctx, req)
	case TagCreateBackupProfile:
		return d.createBackupProfile(ctx, req)
	case TagDropBackupProfile:
		return d.dropBackupProfile(ctx, req)
	case TagListBackupProfile:
		return d.listBackupProfiles(ctx, req)
	case TagCreateStreamingConnection:
		return d.createConnection(ctx, req)
	case TagDropStreamingConnection:
		return d.dropConnection(ctx, req)
	case TagListConnection:
		return d.listConnections(ctx, req)
	case TagListBasebackups:
		return d.listBasebackups(ctx, req)
	case TagDropBasebackup:
		return d.dropBasebackup(ctx, req)
	case TagPin:
		return d.pin(ctx, req, true)
	case TagUnpin:
		return d.pin(ctx, req, false)
	case TagCreateRetentionPolicy:
		return d.createRetentionPolicy(ctx, req)
	case TagDropRetentionPolicy:
		return d.dropRetentionPolicy(ctx, req)
	case TagApplyRetentionPolicy:
		return d.applyRetentionPolicy(ctx, req)
	case TagListRetentionPolicies:
		return d.listRetentionPolicies(ctx, req)
	case TagShowWorkers:
		return d.showWorkers(req)
	case TagSetVariable:
		return d.setVariable(req)
	case TagResetVariable:
		return d.resetVariable(req)
	case TagShowVariable:
		return d.showVariable(req)
	case TagShowVariables:
		return d.showVariables()
	default:
		return nil, apperrors.Parser("dispatch", fmt.Errorf("tag %q not implemented by this dispatcher", req.Tag))
	}
}
