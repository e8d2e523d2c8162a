package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/retention"
	"github.com/jfoltran/pgbackupctl/internal/walfs"
)

func (d *Dispatcher) createArchive(ctx context.Context, req Request) (*Result, error) {
	id, err := d.Catalog.CreateArchive(ctx, req.Archive)
	if err != nil {
		return nil, err
	}
	layout, err := walfs.NewLayout(req.Archive.Directory)
	if err != nil {
		return nil, err
	}
	if err := layout.WriteSignature(fmt.Sprintf("%d", d.Catalog.Magic()), time.Now()); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("archive %q created with id %d", req.Archive.Name, id)}, nil
}

// verifyArchive re-stamps the archive's PG_BACKUP_CTL_INFO signature
// file with the current catalog magic and timestamp, recreating base/
// and log/ if either was removed since CREATE ARCHIVE.
func (d *Dispatcher) verifyArchive(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	layout, err := walfs.NewLayout(archive.Directory)
	if err != nil {
		return nil, err
	}
	if err := layout.WriteSignature(fmt.Sprintf("%d", d.Catalog.Magic()), time.Now()); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("archive %q verified", req.ArchiveName)}, nil
}

func (d *Dispatcher) dropArchive(ctx context.Context, req Request) (*Result, error) {
	if err := d.Catalog.DropArchive(ctx, req.ArchiveName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("archive %q dropped", req.ArchiveName)}, nil
}

func (d *Dispatcher) alterArchive(ctx context.Context, req Request) (*Result, error) {
	if err := d.Catalog.UpdateArchive(ctx, req.Archive); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("archive %q updated", req.Archive.Name)}, nil
}

func (d *Dispatcher) listArchives(ctx context.Context, req Request) (*Result, error) {
	archives, err := d.Catalog.ListArchives(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(archives))
	for i, a := range archives {
		row := map[string]any{"id": a.ID, "name": a.Name}
		if req.Verbose {
			row["directory"] = a.Directory
			row["compression"] = a.Compression
		}
		rows[i] = row
	}
	return &Result{Rows: rows}, nil
}

func (d *Dispatcher) createBackupProfile(ctx context.Context, req Request) (*Result, error) {
	id, err := d.Catalog.CreateBackupProfile(ctx, req.Profile)
	if err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("backup profile %q created with id %d", req.Profile.Name, id)}, nil
}

func (d *Dispatcher) dropBackupProfile(ctx context.Context, req Request) (*Result, error) {
	if err := d.Catalog.DropBackupProfile(ctx, req.ProfileName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("backup profile %q dropped", req.ProfileName)}, nil
}

func (d *Dispatcher) listBackupProfiles(ctx context.Context, req Request) (*Result, error) {
	profiles, err := d.Catalog.ListBackupProfiles(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(profiles))
	for i, p := range profiles {
		rows[i] = map[string]any{"id": p.ID, "name": p.Name, "compress_type": p.CompressType}
	}
	return &Result{Rows: rows}, nil
}

func (d *Dispatcher) createConnection(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	req.Connection.ArchiveID = archive.ID
	if err := d.Catalog.CreateCatalogConnection(ctx, req.Connection); err != nil {
		return nil, err
	}
	return &Result{Message: "streaming connection created"}, nil
}

func (d *Dispatcher) dropConnection(ctx context.Context, req Request) (*Result, error) {
	if err := d.Catalog.DropCatalogConnection(ctx, req.ArchiveName, req.Connection.Type); err != nil {
		return nil, err
	}
	return &Result{Message: "streaming connection dropped"}, nil
}

func (d *Dispatcher) listConnections(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	conns, err := d.Catalog.GetCatalogConnection(ctx, archive.ID, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(conns))
	for i, c := range conns {
		rows[i] = map[string]any{"type": c.Type, "host": c.Host, "port": c.Port, "dbname": c.DBName}
	}
	return &Result{Rows: rows}, nil
}

func (d *Dispatcher) listBasebackups(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	backups, err := d.Catalog.GetBackupList(ctx, archive.ID)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(backups))
	for i, b := range backups {
		row := map[string]any{"id": b.ID, "label": b.Label, "status": b.Status, "pinned": b.Pinned}
		if req.Verbose {
			row["xlogpos_start"] = b.XlogposStart
			row["xlogpos_end"] = b.XlogposEnd
			row["started"] = b.Started
			row["stopped"] = b.Stopped
		}
		rows[i] = row
	}
	return &Result{Rows: rows}, nil
}

func (d *Dispatcher) dropBasebackup(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	backup, err := d.Catalog.GetBaseBackup(ctx, req.BackupSelector, archive.ID, false)
	if err != nil {
		return nil, err
	}
	if err := d.Catalog.DeleteBaseBackup(ctx, backup.ID); err != nil {
		return nil, err
	}
	if backup.FSEntry != "" && d.FS != nil {
		if err := d.FS.RemoveBackupDir(backup.FSEntry); err != nil {
			return nil, apperrors.Archive("drop basebackup", err)
		}
	}
	return &Result{Message: fmt.Sprintf("basebackup %d dropped from archive %q", backup.ID, req.ArchiveName)}, nil
}

func (d *Dispatcher) pin(ctx context.Context, req Request, pinned bool) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	backup, err := d.Catalog.GetBaseBackup(ctx, req.BackupSelector, archive.ID, false)
	if err != nil {
		return nil, err
	}
	if err := d.Catalog.PerformPinAction(ctx, []int64{backup.ID}, pinned); err != nil {
		return nil, err
	}
	verb := "pinned"
	if !pinned {
		verb = "unpinned"
	}
	return &Result{Message: fmt.Sprintf("basebackup %d %s in archive %q", backup.ID, verb, req.ArchiveName)}, nil
}

func (d *Dispatcher) createRetentionPolicy(ctx context.Context, req Request) (*Result, error) {
	id, err := d.Catalog.CreateRetentionPolicy(ctx, req.RetentionRule)
	if err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("retention policy %q created with id %d", req.RetentionRule.Name, id)}, nil
}

func (d *Dispatcher) dropRetentionPolicy(ctx context.Context, req Request) (*Result, error) {
	if err := d.Catalog.DropRetentionPolicy(ctx, req.PolicyName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("retention policy %q dropped", req.PolicyName)}, nil
}

func (d *Dispatcher) listRetentionPolicies(ctx context.Context, req Request) (*Result, error) {
	policies, err := d.Catalog.GetRetentionPolicies(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, len(policies))
	for i, p := range policies {
		rows[i] = map[string]any{"id": p.ID, "name": p.Name, "rules": len(p.Rules)}
	}
	return &Result{Rows: rows}, nil
}

// applyRetentionPolicy evaluates req.PolicyName against req.ArchiveName's
// backup list and commits the resulting plan through an
// evaluate-then-apply-atomically contract (internal/retention.EvaluateRule
// / ApplyPlan). shmLocked is empty here: a dispatcher wired to a live
// launcher would instead populate it from the worker segment's
// basebackup_in_use bits before evaluating, since backups referenced by
// an in-progress worker are never eligible for deletion.
func (d *Dispatcher) applyRetentionPolicy(ctx context.Context, req Request) (*Result, error) {
	archive, err := d.Catalog.GetArchive(ctx, req.ArchiveName)
	if err != nil {
		return nil, err
	}
	policy, err := d.Catalog.GetRetentionPolicy(ctx, req.PolicyName)
	if err != nil {
		return nil, err
	}
	plan, err := retention.ApplyRetentionPolicy(ctx, d.Catalog, archive.ID, policy, nil, d.FS, time.Now())
	if err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("retention policy %q applied to archive %q: %d basebackups removed",
		req.PolicyName, req.ArchiveName, len(plan.Backups))}, nil
}

// showWorkers reports every occupied launcher worker slot, the same
// data source the monitor TUI's collector polls.
func (d *Dispatcher) showWorkers(req Request) (*Result, error) {
	if d.WorkerSeg == nil {
		return &Result{Rows: []map[string]any{}}, nil
	}
	rows := make([]map[string]any, 0)
	for _, is := range d.WorkerSeg.SnapshotIndexed() {
		row := map[string]any{
			"slot":              is.Index,
			"pid":               is.Slot.PID,
			"cmd_tag":           is.Slot.CmdTag,
			"archive_id":        is.Slot.ArchiveID,
			"started":           is.Slot.Started,
			"basebackup_in_use": is.Slot.BasebackupInUse,
		}
		if req.Verbose {
			var children []int64
			for _, c := range is.Slot.Children {
				if c.PID != 0 {
					children = append(children, c.PID)
				}
			}
			row["children"] = children
		}
		rows = append(rows, row)
	}
	return &Result{Rows: rows}, nil
}

func (d *Dispatcher) setVariable(req Request) (*Result, error) {
	if err := d.Variables.Set(req.VariableName, req.VariableValue); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("%s = %s", req.VariableName, req.VariableValue)}, nil
}

func (d *Dispatcher) resetVariable(req Request) (*Result, error) {
	if err := d.Variables.Reset(req.VariableName); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("%s reset to default", req.VariableName)}, nil
}

func (d *Dispatcher) showVariable(req Request) (*Result, error) {
	value, err := d.Variables.Show(req.VariableName)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: []map[string]any{{"name": req.VariableName, "value": value}}}, nil
}

func (d *Dispatcher) showVariables() (*Result, error) {
	all := d.Variables.ShowAll()
	rows := make([]map[string]any, 0, len(all))
	for _, name := range d.Variables.Names() {
		rows = append(rows, map[string]any{"name": name, "value": all[name]})
	}
	return &Result{Rows: rows}, nil
}
