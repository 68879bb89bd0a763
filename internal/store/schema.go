package store

// schemaVersion is written into metadata under schemaVersionKey on first
// open and checked on every subsequent open. A mismatch is a CompatError,
// never a silent migration.
const schemaVersion = "4"

const schemaVersionKey = "version"

// uniqueIDKey stores the per-show random identifier minted on first open,
// used by the replication client to detect that a remote show's database
// was recreated from scratch (a MismatchError on source_unique_id, see
// replication/client).
const uniqueIDKey = "unique_id"

// sqliteDDL creates the recorder-side per-show schema: metadata, sections,
// segments, and their supporting indexes. Mirrors the shape of
// original_source's schema.rs/queries/ddl.rs, translated to plain SQL
// since Go has no sea_query-equivalent query builder in the corpus.
const sqliteDDL = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
	id INTEGER PRIMARY KEY,
	start_timestamp_ms INTEGER NOT NULL,
	is_exported_to_remote INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp_ms INTEGER NOT NULL,
	is_timestamp_from_source INTEGER NOT NULL DEFAULT 0,
	audio_data BLOB NOT NULL,
	section_id INTEGER NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	duration_samples INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_segments_boundary ON segments(is_timestamp_from_source, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_segments_section_id ON segments(section_id);
CREATE INDEX IF NOT EXISTS idx_sections_start_timestamp ON sections(start_timestamp_ms);
`

// postgresShowDDL creates the same logical schema inside a show's own
// Postgres database on the central receiver. The leases table (C8) is not
// part of it; see leasesDDL.
const postgresShowDDL = `
CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
	id BIGINT PRIMARY KEY,
	start_timestamp_ms BIGINT NOT NULL,
	is_exported_to_remote BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS segments (
	id BIGINT PRIMARY KEY,
	timestamp_ms BIGINT NOT NULL,
	is_timestamp_from_source BOOLEAN NOT NULL DEFAULT false,
	audio_data BYTEA NOT NULL,
	section_id BIGINT NOT NULL REFERENCES sections(id) ON DELETE CASCADE,
	duration_samples BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_segments_boundary ON segments(is_timestamp_from_source, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_segments_section_id ON segments(section_id);
CREATE INDEX IF NOT EXISTS idx_sections_start_timestamp ON sections(start_timestamp_ms);
`

// leasesDDL creates the single cross-show leases table used by C8 to
// serialize sync and source-replacement runs across receiver processes.
const leasesDDL = `
CREATE TABLE IF NOT EXISTS leases (
	name TEXT PRIMARY KEY,
	holder_id TEXT NOT NULL,
	expires_at_ms BIGINT NOT NULL
);
`

// EnsureLeasesSchema creates the leases table on conn if it does not
// already exist. Production wiring calls this implicitly via
// OpenPostgresLeases; tests that exercise internal/lease against a
// SQLite-backed Conn call it directly.
func EnsureLeasesSchema(conn *Conn) error {
	_, err := conn.Exec(leasesDDL)
	return err
}
