package store

import (
	"database/sql"
	"strconv"
	"strings"
)

// Dialect distinguishes the two backends sharing this package's query
// functions: the recorder's embedded SQLite file and the receiver's
// central Postgres cluster.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Conn pairs a *sql.DB with the placeholder dialect it expects. Every
// query function in this package takes a *Conn instead of a raw *sql.DB
// so the same SQL text (written once, with "?" placeholders) can target
// either backend: rebind translates "?" to "$1", "$2", ... for Postgres,
// the same role sqlx's Rebind plays in the ecosystem.
type Conn struct {
	DB      *sql.DB
	Dialect Dialect
}

func (c *Conn) rebind(query string) string {
	if c.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *Conn) Exec(query string, args ...any) (sql.Result, error) {
	return c.DB.Exec(c.rebind(query), args...)
}

func (c *Conn) Query(query string, args ...any) (*sql.Rows, error) {
	return c.DB.Query(c.rebind(query), args...)
}

func (c *Conn) QueryRow(query string, args ...any) *sql.Row {
	return c.DB.QueryRow(c.rebind(query), args...)
}

// Begin starts a transaction and wraps it so callers can use the same
// rebind-aware Exec/Query/QueryRow methods within it.
func (c *Conn) Begin() (*Tx, error) {
	tx, err := c.DB.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, conn: c}, nil
}

// Tx wraps a *sql.Tx with the same rebind behavior as Conn.
type Tx struct {
	tx   *sql.Tx
	conn *Conn
}

func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	return t.tx.Exec(t.conn.rebind(query), args...)
}

func (t *Tx) QueryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRow(t.conn.rebind(query), args...)
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
