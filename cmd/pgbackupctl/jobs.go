package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
	"github.com/jfoltran/pgbackupctl/internal/catalog"
	"github.com/jfoltran/pgbackupctl/internal/config"
	"github.com/jfoltran/pgbackupctl/internal/replication"
	"github.com/jfoltran/pgbackupctl/internal/supervisor"
	"github.com/jfoltran/pgbackupctl/internal/walfs"
	"github.com/jfoltran/pgbackupctl/internal/xlog"
)

// lagLogInterval bounds how often streamJob logs replication lag, so a
// busy stream doesn't log on every WAL chunk.
const lagLogInterval = 30 * time.Second

// openWorkerCatalog gives a spawned worker its own handle onto the
// catalog, separate from the CLI front end's (which never opens one for
// the __worker subtree — see root.go's skipsCatalog).
func openWorkerCatalog(path string, logger zerolog.Logger) (*catalog.Catalog, error) {
	return catalog.Open(path, catalog.Options{Logger: logger})
}

// basebackupJob drives a single START BASEBACKUP request: it resolves
// the archive's basebackup connection, registers the backup with the
// profile id recorded as its used profile, opens a stream, and hands off
// to Stream.Basebackup — currently a stub, so the registered backup is
// marked aborted rather than left dangling "in progress". The profile row
// itself is not looked up; Stream.Basebackup receives an empty profile.
func basebackupJob(catalogPath string, archiveID, profileID int64, logger zerolog.Logger) supervisor.Job {
	return func(ctx context.Context, registerChild func(pid, backupID int64) error) error {
		cat, err := openWorkerCatalog(catalogPath, logger)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		conns, err := cat.GetCatalogConnection(ctx, archiveID, connTypePtr(catalog.ConnBasebackup))
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			return apperrors.Connection("basebackup", fmt.Errorf("archive %d has no basebackup connection", archiveID))
		}
		conn := conns[0]

		backupID, err := cat.RegisterBasebackup(ctx, &catalog.BaseBackupDescr{
			ArchiveID:      archiveID,
			Label:          fmt.Sprintf("backup-%d", time.Now().Unix()),
			Started:        time.Now(),
			Status:         catalog.StatusInProgress,
			WalSegmentSize: 16 * 1024 * 1024,
			UsedProfile:    fmt.Sprintf("%d", profileID),
		})
		if err != nil {
			return err
		}

		stream := replication.NewPGStream(logger)
		if err := stream.Connect(ctx, connDSNOf(conn)); err != nil {
			cat.AbortBasebackup(ctx, backupID) //nolint:errcheck
			return err
		}
		defer stream.Close(ctx) //nolint:errcheck

		_, err = stream.Basebackup(ctx, replication.BasebackupProfile{})
		if err != nil {
			cat.AbortBasebackup(ctx, backupID) //nolint:errcheck
			return err
		}
		return nil
	}
}

// streamJob drives START STREAMING / START RECOVERY STREAM: connect,
// ensure a physical replication slot exists, register the stream row,
// and relay WALChunks into the archive's log/ directory until ctx is
// canceled or the stream errors.
func streamJob(catalogPath string, archiveID int64, logger zerolog.Logger) supervisor.Job {
	return func(ctx context.Context, registerChild func(pid, backupID int64) error) error {
		cat, err := openWorkerCatalog(catalogPath, logger)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		archive, err := archiveByID(ctx, cat, archiveID)
		if err != nil {
			return err
		}
		layout, err := walfs.NewLayout(archive.Directory)
		if err != nil {
			return err
		}

		conns, err := cat.GetCatalogConnection(ctx, archiveID, connTypePtr(catalog.ConnStreamer))
		if err != nil {
			return err
		}
		if len(conns) == 0 {
			return apperrors.Streaming("stream", fmt.Errorf("archive %d has no streaming connection", archiveID))
		}

		stream := replication.NewPGStream(logger)
		if err := stream.Connect(ctx, connDSNOf(conns[0])); err != nil {
			return err
		}
		defer stream.Close(ctx) //nolint:errcheck

		identity, err := stream.Identify(ctx)
		if err != nil {
			return err
		}
		slotName, err := stream.GenerateSlotNameUUID("pgbackupctl")
		if err != nil {
			return err
		}
		if err := stream.CreatePhysicalReplicationSlot(ctx, slotName, replication.SlotOptions{ReserveWAL: true, ExistingOK: true}); err != nil {
			return err
		}

		startAt, _, err := walfs.StartPosition(layout.LogDir(), 16*1024*1024)
		if err != nil {
			return err
		}

		streamID, err := cat.RegisterStream(ctx, &catalog.StreamDescr{
			ArchiveID:  archiveID,
			Type:       catalog.StreamWAL,
			SlotName:   slotName,
			SystemID:   identity.SystemID,
			Timeline:   identity.Timeline,
			Xlogpos:    startAt.String(),
			Status:     "streaming",
			CreateDate: time.Now(),
		})
		if err != nil {
			return err
		}
		defer cat.SetStreamStatus(ctx, streamID, "stopped") //nolint:errcheck

		chunks, err := stream.Walstreamer(ctx, slotName, startAt)
		if err != nil {
			return err
		}
		lastLagLog := time.Now()
		for chunk := range chunks {
			segName := xlog.SegmentFileName(identity.Timeline, chunk.StartPtr.SegmentNumber(16*1024*1024), 16*1024*1024)
			f := walfs.NewPlainFile(layout.LogDir() + "/" + segName)
			f.SetOpenMode(walfs.ModeWrite)
			if err := f.Open(); err != nil {
				return err
			}
			if _, err := f.Write(chunk.Data); err != nil {
				f.Close() //nolint:errcheck
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			stream.ConfirmFlush(chunk.StartPtr + xlog.RecPtr(len(chunk.Data)))

			if time.Since(lastLagLog) >= lagLogInterval {
				bytes, human := stream.Lag()
				logger.Info().Uint64("lag_bytes", bytes).Str("lag", human).Msg("streaming lag")
				lastLagLog = time.Now()
			}
		}
		return stream.Err()
	}
}

func connTypePtr(t catalog.ConnType) *catalog.ConnType { return &t }

func connDSNOf(c *catalog.ConnectionDescr) string {
	if c.DSN != "" {
		return c.DSN
	}
	db := config.DatabaseConfig{Host: c.Host, Port: uint16(c.Port), User: c.User, DBName: c.DBName}
	return db.ReplicationDSN()
}

// archiveByID scans ListArchives for archiveID: internal/catalog only
// exposes lookup by name (the grammar always addresses archives by
// name), but workers are handed an id over the queue to keep queueMsg
// fixed-width.
func archiveByID(ctx context.Context, cat *catalog.Catalog, archiveID int64) (*catalog.ArchiveDescr, error) {
	archives, err := cat.ListArchives(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		if a.ID == archiveID {
			return a, nil
		}
	}
	return nil, apperrors.Archive("lookup archive", fmt.Errorf("no archive with id %d", archiveID))
}
