package catalog

// catalogMagic is the compiled-in schema magic number. On open, the
// stored version.number must be >= catalogMagic.
const catalogMagic = 1

// requiredTables lists the tables the schema check in Open verifies exist.
var requiredTables = []string{
	"version", "archive", "connections", "backup", "backup_tablespaces",
	"backup_profiles", "stream", "procs", "retention", "retention_rules",
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS version (
	number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archive (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	directory   TEXT NOT NULL,
	compression INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS connections (
	archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	dsn        TEXT,
	host       TEXT,
	port       INTEGER,
	user       TEXT,
	dbname     TEXT,
	PRIMARY KEY (archive_id, type)
);

CREATE TABLE IF NOT EXISTS backup_profiles (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	name                 TEXT NOT NULL UNIQUE,
	compress_type        TEXT NOT NULL DEFAULT 'none',
	max_rate             INTEGER NOT NULL DEFAULT 0,
	label                TEXT NOT NULL DEFAULT '',
	fast_checkpoint      INTEGER NOT NULL DEFAULT 0,
	include_wal          INTEGER NOT NULL DEFAULT 1,
	wait_for_wal         INTEGER NOT NULL DEFAULT 1,
	noverify_checksums   INTEGER NOT NULL DEFAULT 0,
	manifest             INTEGER NOT NULL DEFAULT 1,
	manifest_checksums   TEXT NOT NULL DEFAULT 'CRC32C'
);

CREATE TABLE IF NOT EXISTS backup (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_id       INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
	xlogpos_start    TEXT NOT NULL,
	xlogpos_end      TEXT,
	timeline         INTEGER NOT NULL,
	label            TEXT NOT NULL,
	fsentry          TEXT NOT NULL,
	started          DATETIME NOT NULL,
	stopped          DATETIME,
	pinned           INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL,
	systemid         INTEGER NOT NULL,
	wal_segment_size INTEGER NOT NULL,
	used_profile     TEXT
);

CREATE TABLE IF NOT EXISTS backup_tablespaces (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	backup_id    INTEGER NOT NULL REFERENCES backup(id) ON DELETE CASCADE,
	spcoid       INTEGER NOT NULL,
	spclocation  TEXT NOT NULL,
	spcsize      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stream (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_id  INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
	stype       TEXT NOT NULL,
	slot_name   TEXT NOT NULL,
	systemid    INTEGER NOT NULL,
	timeline    INTEGER NOT NULL,
	xlogpos     TEXT NOT NULL,
	dbname      TEXT,
	status      TEXT NOT NULL,
	create_date DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS procs (
	pid        INTEGER NOT NULL,
	archive_id INTEGER REFERENCES archive(id) ON DELETE CASCADE,
	type       TEXT NOT NULL,
	started    DATETIME NOT NULL,
	state      TEXT NOT NULL,
	shm_key    TEXT,
	shm_id     INTEGER,
	PRIMARY KEY (pid, type)
);

CREATE TABLE IF NOT EXISTS retention (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL UNIQUE,
	created DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS retention_rules (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	policy_id INTEGER NOT NULL REFERENCES retention(id) ON DELETE CASCADE,
	type      TEXT NOT NULL,
	value     TEXT NOT NULL
);
`
