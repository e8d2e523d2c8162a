package catalog

// ColumnID names a bindable or fetchable column of a catalog entity. The
// affected-attributes protocol  uses a ColumnID slice to
// drive both UPDATE/INSERT parameter binding and SELECT scanning from one
// per-entity dispatch table, so partial updates never require one method
// per column.
type ColumnID int

const (
	// Archive columns.
	ColArchiveID ColumnID = iota
	ColArchiveName
	ColArchiveDirectory
	ColArchiveCompression

	// Connection columns.
	ColConnArchiveID
	ColConnType
	ColConnDSN
	ColConnHost
	ColConnPort
	ColConnUser
	ColConnDBName

	// BackupProfile columns.
	ColProfileID
	ColProfileName
	ColProfileCompressType
	ColProfileMaxRate
	ColProfileLabel
	ColProfileFastCheckpoint
	ColProfileIncludeWAL
	ColProfileWaitForWAL
	ColProfileNoverifyChecksums
	ColProfileManifest
	ColProfileManifestChecksums

	// BaseBackup columns.
	ColBackupID
	ColBackupArchiveID
	ColBackupXlogposStart
	ColBackupXlogposEnd
	ColBackupTimeline
	ColBackupLabel
	ColBackupFSEntry
	ColBackupStarted
	ColBackupStopped
	ColBackupPinned
	ColBackupStatus
	ColBackupSystemID
	ColBackupWalSegmentSize
	ColBackupUsedProfile
	// Computed, fetch-only. Binding these is a programmer error.
	ColBackupDuration
	ColBackupExceedsRetentionRule

	// BackupTablespace columns.
	ColTSID
	ColTSBackupID
	ColTSSpcOID
	ColTSSpcLocation
	ColTSSpcSize

	// Stream columns.
	ColStreamID
	ColStreamArchiveID
	ColStreamType
	ColStreamSlotName
	ColStreamSystemID
	ColStreamTimeline
	ColStreamXlogpos
	ColStreamDBName
	ColStreamStatus
	ColStreamCreateDate

	// CatalogProc columns.
	ColProcPID
	ColProcArchiveID
	ColProcType
	ColProcStarted
	ColProcState
	ColProcShmKey
	ColProcShmID

	// RetentionPolicy / RetentionRule columns.
	ColPolicyID
	ColPolicyName
	ColPolicyCreated
	ColRuleID
	ColRulePolicyID
	ColRuleType
	ColRuleValue
)

// computedColumns marks columns that are derived by a SELECT (duration,
// exceeds_retention_rule) and must never be bound back into an INSERT or
// UPDATE statement.
var computedColumns = map[ColumnID]bool{
	ColBackupDuration:             true,
	ColBackupExceedsRetentionRule: true,
}

// IsComputed reports whether col is a fetch-only derived column.
func IsComputed(col ColumnID) bool {
	return computedColumns[col]
}
