package recorder

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/relaywave/segcast/internal/store"
)

func testConn(t *testing.T) *store.Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "show.db")
	conn, err := store.OpenSQLite(path, store.OpenReadWrite)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.DB.Close() })
	return conn
}

func TestEnsurePreconditionsStampsFreshDB(t *testing.T) {
	conn := testConn(t)
	p := Params{Name: "kexp", AudioFormat: "opus", Bitrate: 128, SplitInterval: 3600}
	if err := EnsurePreconditions(conn, p); err != nil {
		t.Fatalf("ensure preconditions: %v", err)
	}
	got, ok, err := store.GetMetadata(conn, "name")
	if err != nil || !ok {
		t.Fatalf("name not stamped: ok=%v err=%v", ok, err)
	}
	if got != "kexp" {
		t.Errorf("name = %q, want kexp", got)
	}
}

func TestEnsurePreconditionsAcceptsMatchingReopen(t *testing.T) {
	conn := testConn(t)
	p := Params{Name: "kexp", AudioFormat: "opus", Bitrate: 128, SplitInterval: 3600}
	if err := EnsurePreconditions(conn, p); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := EnsurePreconditions(conn, p); err != nil {
		t.Fatalf("reopen with matching params: %v", err)
	}
}

func TestEnsurePreconditionsRejectsMismatch(t *testing.T) {
	conn := testConn(t)
	p := Params{Name: "kexp", AudioFormat: "opus", Bitrate: 128, SplitInterval: 3600}
	if err := EnsurePreconditions(conn, p); err != nil {
		t.Fatalf("first open: %v", err)
	}
	p2 := p
	p2.Bitrate = 256
	err := EnsurePreconditions(conn, p2)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MismatchError, got %v", err)
	}
}

func TestEnsurePreconditionsRejectsRecipientDB(t *testing.T) {
	conn := testConn(t)
	if err := store.SetMetadata(conn, "is_recipient", "true"); err != nil {
		t.Fatalf("stamp is_recipient: %v", err)
	}
	err := EnsurePreconditions(conn, Params{Name: "kexp", AudioFormat: "opus", Bitrate: 128})
	var recipientErr *RecipientError
	if !errors.As(err, &recipientErr) {
		t.Fatalf("expected *RecipientError, got %v", err)
	}
}

func TestEnsureAACEncoderParamsStampsAndValidates(t *testing.T) {
	conn := testConn(t)
	if err := EnsureAACEncoderParams(conn, 2112, 1024); err != nil {
		t.Fatalf("first stamp: %v", err)
	}
	if err := EnsureAACEncoderParams(conn, 2112, 1024); err != nil {
		t.Fatalf("matching reopen: %v", err)
	}
	err := EnsureAACEncoderParams(conn, 999, 1024)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MismatchError, got %v", err)
	}
}
