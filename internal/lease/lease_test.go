package lease

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaywave/segcast/internal/store"
)

func testConn(t *testing.T) *store.Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leases.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	conn := &store.Conn{DB: db, Dialect: store.DialectSQLite}
	if err := store.EnsureLeasesSchema(conn); err != nil {
		t.Fatalf("create leases schema: %v", err)
	}
	return conn
}

func TestTryAcquireFreshLease(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)

	ok, err := TryAcquire(conn, "sync", "holder-a", DefaultDurationMs, now)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected fresh lease to be acquired")
	}
}

func TestTryAcquireRejectsWhileHeldByOther(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)

	if ok, err := TryAcquire(conn, "sync", "holder-a", DefaultDurationMs, now); err != nil || !ok {
		t.Fatalf("initial acquire: ok=%v err=%v", ok, err)
	}

	later := now.Add(1 * time.Second)
	ok, err := TryAcquire(conn, "sync", "holder-b", DefaultDurationMs, later)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("expected second holder to be rejected while lease unexpired")
	}
}

func TestTryAcquireSucceedsAfterExpiry(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)

	if ok, err := TryAcquire(conn, "sync", "holder-a", 1000, now); err != nil || !ok {
		t.Fatalf("initial acquire: ok=%v err=%v", ok, err)
	}

	afterExpiry := now.Add(2 * time.Second)
	ok, err := TryAcquire(conn, "sync", "holder-b", DefaultDurationMs, afterExpiry)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !ok {
		t.Fatal("expected second holder to acquire an expired lease")
	}
}

func TestRenewExtendsExpiryAndRejectsWrongHolder(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)

	if ok, err := TryAcquire(conn, "sync", "holder-a", 1000, now); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	if err := Renew(conn, "sync", "holder-a", DefaultDurationMs, now.Add(500*time.Millisecond)); err != nil {
		t.Fatalf("renew by holder: %v", err)
	}

	// Now that holder-a renewed with a long duration, holder-b must not
	// be able to steal the lease even well past the original short expiry.
	ok, err := TryAcquire(conn, "sync", "holder-b", DefaultDurationMs, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("acquire after renew: %v", err)
	}
	if ok {
		t.Fatal("renewed lease should not be stealable")
	}

	if err := Renew(conn, "sync", "holder-b", DefaultDurationMs, now); err != ErrNotHeld {
		t.Fatalf("expected ErrNotHeld renewing as wrong holder, got %v", err)
	}
}

func TestReleaseAllowsImmediateReacquire(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)

	if ok, _ := TryAcquire(conn, "sync", "holder-a", DefaultDurationMs, now); !ok {
		t.Fatal("initial acquire failed")
	}
	if err := Release(conn, "sync", "holder-a"); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err := TryAcquire(conn, "sync", "holder-b", DefaultDurationMs, now)
	if err != nil || !ok {
		t.Fatalf("reacquire after release: ok=%v err=%v", ok, err)
	}
}

func TestReleaseWrongHolderFails(t *testing.T) {
	conn := testConn(t)
	now := time.UnixMilli(1_000_000)
	if ok, _ := TryAcquire(conn, "sync", "holder-a", DefaultDurationMs, now); !ok {
		t.Fatal("initial acquire failed")
	}
	if err := Release(conn, "sync", "holder-b"); err != ErrNotHeld {
		t.Fatalf("expected ErrNotHeld, got %v", err)
	}
}

func TestRenewalIntervalClamped(t *testing.T) {
	cases := []struct {
		durationMs int64
		want       time.Duration
	}{
		{durationMs: 1000, want: 10 * time.Second},
		{durationMs: 200_000, want: 30 * time.Second},
		{durationMs: 60_000, want: 15 * time.Second},
	}
	for _, c := range cases {
		if got := RenewalInterval(c.durationMs); got != c.want {
			t.Errorf("RenewalInterval(%d) = %v, want %v", c.durationMs, got, c.want)
		}
	}
}

func TestNewHolderIDIsUnique(t *testing.T) {
	a, err := NewHolderID()
	if err != nil {
		t.Fatalf("holder id: %v", err)
	}
	b, err := NewHolderID()
	if err != nil {
		t.Fatalf("holder id: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct holder ids, got %q twice", a)
	}
}
