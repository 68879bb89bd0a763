// Package lease implements the cluster-wide mutual exclusion leases (C8)
// that keep replication sync and source replacement from running twice
// at once across receiver processes.
package lease

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/relaywave/segcast/internal/store"
)

// DefaultName is the lease name used when no config override is set.
// Mirrors original_source's sync.rs SYNC_LEASE_NAME.
const DefaultName = "sync"

// DefaultDurationMs is how long a freshly acquired or renewed lease is
// valid for before another holder may claim it. Mirrors
// original_source's db_postgres::DEFAULT_LEASE_DURATION_MS.
const DefaultDurationMs = 60_000

// RenewalInterval returns how often a held lease should be renewed, given
// its duration: duration/4, clamped to [10s, 30s]. Mirrors sync.rs's
// renewal-thread interval calculation.
func RenewalInterval(durationMs int64) time.Duration {
	interval := durationMs / 4
	if interval < 10_000 {
		interval = 10_000
	}
	if interval > 30_000 {
		interval = 30_000
	}
	return time.Duration(interval) * time.Millisecond
}

// ErrNotHeld is returned by Renew and Release when the caller no longer
// (or never did) hold the named lease.
var ErrNotHeld = errors.New("lease: not held by this holder")

// NewHolderID returns a process-unique identifier combining hostname, PID,
// and a random suffix, so two receiver processes launched on the same
// host in the same second never collide. See DESIGN.md ("Lease holder id"
// supplemented feature).
func NewHolderID() (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	suffix, err := randomSuffix(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), suffix), nil
}

// TryAcquire attempts to claim name for holderID, succeeding if the lease
// row is absent, expired, or already held by holderID (renew-on-acquire).
// Returns false, nil if another holder currently owns an unexpired lease.
func TryAcquire(conn *store.Conn, name, holderID string, durationMs int64, now time.Time) (bool, error) {
	nowMs := now.UnixMilli()
	expiresAt := nowMs + durationMs

	tx, err := conn.Begin()
	if err != nil {
		return false, fmt.Errorf("lease: begin: %w", err)
	}
	defer tx.Rollback()

	var holder string
	var expires int64
	err = tx.QueryRow(`SELECT holder_id, expires_at_ms FROM leases WHERE name = ?`, name).Scan(&holder, &expires)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO leases (name, holder_id, expires_at_ms) VALUES (?, ?, ?)`, name, holderID, expiresAt); err != nil {
			return false, fmt.Errorf("lease: insert: %w", err)
		}
		return true, tx.Commit()
	case err != nil:
		return false, fmt.Errorf("lease: select: %w", err)
	}

	if holder != holderID && expires > nowMs {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE leases SET holder_id = ?, expires_at_ms = ? WHERE name = ?`, holderID, expiresAt, name); err != nil {
		return false, fmt.Errorf("lease: update: %w", err)
	}
	return true, tx.Commit()
}

// Renew extends an already-held lease's expiry, failing with ErrNotHeld if
// holderID is not (or no longer) the current holder.
func Renew(conn *store.Conn, name, holderID string, durationMs int64, now time.Time) error {
	expiresAt := now.UnixMilli() + durationMs
	res, err := conn.Exec(`UPDATE leases SET expires_at_ms = ? WHERE name = ? AND holder_id = ?`, expiresAt, name, holderID)
	if err != nil {
		return fmt.Errorf("lease: renew: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lease: renew: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Release gives up a held lease immediately rather than waiting for it to
// expire, so the next holder doesn't idle out the remaining duration.
func Release(conn *store.Conn, name, holderID string) error {
	res, err := conn.Exec(`DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID)
	if err != nil {
		return fmt.Errorf("lease: release: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("lease: release: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
