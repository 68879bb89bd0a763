package store

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"
)

// OpenMode selects how a per-show SQLite database is opened.
type OpenMode int

const (
	// OpenReadWrite creates the file if missing and opens it for a single
	// recorder process to append to. Used by the record subcommand.
	OpenReadWrite OpenMode = iota
	// OpenReadOnly opens an existing file without creating it, for the
	// inspect subcommand and the replication server. Safe to use against
	// a file that a recorder process is concurrently writing in WAL mode.
	OpenReadOnly
	// OpenReadOnlyImmutable additionally asserts the file will not change
	// for the lifetime of the connection, enabling SQLite to skip all
	// locking. Only valid when the caller can guarantee the underlying
	// file is not open for writes elsewhere (e.g. a one-shot export of a
	// finished show).
	OpenReadOnlyImmutable
)

// maxSQLiteConns bounds the connection pool for a per-show database. A
// single recorder process rarely needs more than a handful of concurrent
// readers (inspect queries, replication server chunk reads) alongside its
// one writer goroutine.
const maxSQLiteConns = 5

// OpenSQLite opens (and for OpenReadWrite, creates if missing) the
// per-show SQLite database at path, applies the WAL journal mode and
// foreign key enforcement pragmas, and verifies the schema version
// recorded in metadata matches this build's expectation.
//
// For OpenReadWrite on a fresh file, the schema is created and the
// version and a freshly generated unique id are stamped before the
// version check runs (so the check trivially passes on first open).
func OpenSQLite(path string, mode OpenMode) (*Conn, error) {
	dsn, err := sqliteDSN(path, mode)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxSQLiteConns)
	conn := &Conn{DB: db, Dialect: DialectSQLite}

	if mode == OpenReadWrite {
		if _, err := conn.Exec(`PRAGMA journal_mode = WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set WAL mode: %w", err)
		}
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	if mode == OpenReadWrite {
		if _, err := conn.Exec(sqliteDDL); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: create schema: %w", err)
		}
		if err := ensureStamped(conn); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := checkSchemaVersion(conn, path); err != nil {
		db.Close()
		return nil, err
	}

	return conn, nil
}

func sqliteDSN(path string, mode OpenMode) (string, error) {
	switch mode {
	case OpenReadWrite:
		return path, nil
	case OpenReadOnly:
		return fmt.Sprintf("file:%s?mode=ro", url.PathEscape(path)), nil
	case OpenReadOnlyImmutable:
		// Only safe when the caller guarantees no writer holds the file
		// open; SQLite trusts this flag and stops checking the WAL/lock
		// state entirely.
		return fmt.Sprintf("file:%s?mode=ro&immutable=1", url.PathEscape(path)), nil
	default:
		return "", fmt.Errorf("store: unknown open mode %d", mode)
	}
}

func ensureStamped(conn *Conn) error {
	var exists int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM metadata WHERE key = ?`, schemaVersionKey).Scan(&exists); err != nil {
		return fmt.Errorf("store: check stamp: %w", err)
	}
	if exists > 0 {
		return nil
	}
	id, err := generateUniqueID()
	if err != nil {
		return fmt.Errorf("store: generate unique id: %w", err)
	}
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin stamp tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)`, schemaVersionKey, schemaVersion); err != nil {
		return fmt.Errorf("store: stamp version: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)`, uniqueIDKey, id); err != nil {
		return fmt.Errorf("store: stamp unique id: %w", err)
	}
	return tx.Commit()
}

func checkSchemaVersion(conn *Conn, path string) error {
	var got string
	err := conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, schemaVersionKey).Scan(&got)
	if err != nil {
		return fmt.Errorf("store: read schema version from %s: %w", path, err)
	}
	if got != schemaVersion {
		return &CompatError{Path: path, Wanted: schemaVersion, Got: got}
	}
	return nil
}
