package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgDuplicateDatabase is the Postgres error code raised when two receiver
// processes race to create the same show database; it is not a failure,
// just a signal the database already exists.
const pgDuplicateDatabase = "42P04"

// ShowDatabaseName returns the per-show Postgres database name, combining
// the configured prefix with the show name so a single Postgres cluster
// can host every show's segments and sections in isolated databases while
// sharing one leases table at the cluster (admin) level.
func ShowDatabaseName(prefix, showName string) string {
	if prefix == "" {
		return showName
	}
	return prefix + "_" + showName
}

// OpenPostgresAdmin opens a connection to baseURL (pointed at the
// cluster's default "postgres" maintenance database) for issuing CREATE
// DATABASE statements ahead of opening a show's own database.
func OpenPostgresAdmin(baseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", baseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres admin connection: %w", err)
	}
	return db, nil
}

// EnsurePostgresDatabase creates name on the cluster reached via admin if
// it does not already exist, tolerating the race where a concurrent
// receiver process creates it first.
func EnsurePostgresDatabase(admin *sql.DB, name string) error {
	_, err := admin.Exec(fmt.Sprintf(`CREATE DATABASE %q`, name))
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateDatabase {
		return nil
	}
	// Older/alternate drivers surface "already exists" without a typed
	// pgconn.PgError; fall back to a string check rather than fail a
	// perfectly normal race.
	if err != nil && alreadyExistsMessage(err.Error()) {
		return nil
	}
	return fmt.Errorf("store: create database %s: %w", name, err)
}

func alreadyExistsMessage(msg string) bool {
	return len(msg) > 0 && contains(msg, "already exists")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// OpenPostgresShow opens the named show database on the cluster reached
// via baseURL (with the database name substituted in), creates the show
// schema if missing, and verifies the schema version the same way
// OpenSQLite does for the recorder side.
func OpenPostgresShow(baseURL, dbName string) (*Conn, error) {
	dsn, err := buildPostgresURL(baseURL, dbName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres show db %s: %w", dbName, err)
	}
	conn := &Conn{DB: db, Dialect: DialectPostgres}

	if _, err := conn.Exec(postgresShowDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create show schema: %w", err)
	}
	if err := ensureStamped(conn); err != nil {
		db.Close()
		return nil, err
	}
	if err := checkSchemaVersion(conn, dbName); err != nil {
		db.Close()
		return nil, err
	}
	return conn, nil
}

// OpenPostgresLeases opens (or creates) the cluster-wide leases table used
// by C8. It lives alongside the admin "postgres" maintenance database
// rather than inside any individual show's database, since a lease (e.g.
// the sync lease) is not scoped to one show.
func OpenPostgresLeases(baseURL string) (*Conn, error) {
	db, err := sql.Open("pgx", baseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open leases db: %w", err)
	}
	conn := &Conn{DB: db, Dialect: DialectPostgres}
	if _, err := conn.Exec(leasesDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create leases table: %w", err)
	}
	return conn, nil
}

// buildPostgresURL substitutes dbName as the path component of a
// postgres:// base URL, following original_source's build_postgres_url
// (db_postgres.rs), which performs the same substitution to turn one
// configured cluster URL into a per-show connection string.
func buildPostgresURL(baseURL, dbName string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("store: parse postgres url: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}
