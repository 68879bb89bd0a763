package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaywave/segcast/internal/lease"
	"github.com/relaywave/segcast/internal/store"
)

func TestReplaceSourceResumesAfterMatchedSection(t *testing.T) {
	sourceDir := t.TempDir()
	newSourceDB(t, sourceDir, "drivetime", 3) // section 1, segments 1-3

	receiver := newReceiverDB(t)
	defer receiver.DB.Close()

	oldSourceDir := t.TempDir()
	newSourceDB(t, oldSourceDir, "drivetime", 3)
	oldTS := startTestServer(t, oldSourceDir)
	c := New(oldTS.URL)
	if _, err := c.Sync(context.Background(), receiver, "drivetime", 10, 0); err != nil {
		t.Fatalf("initial sync from old source: %v", err)
	}

	// New source: rebuilt, new unique_id, section 2 starts after the
	// receiver's latest known timestamp and contains segments 1-3 (the
	// rebuilt database numbers its segments from 1 again).
	newDir := t.TempDir()
	newPath := filepath.Join(newDir, "drivetime.sqlite")
	newConn, err := store.OpenSQLite(newPath, store.OpenReadWrite)
	if err != nil {
		t.Fatalf("open new source db: %v", err)
	}
	defer newConn.DB.Close()
	if err := store.SetMetadata(newConn, "audio_format", "opus"); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := store.SetMetadata(newConn, "bitrate", "128"); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if err := store.InsertSection(newConn, 1, 500_000); err != nil {
		t.Fatalf("insert old section: %v", err)
	}
	if err := store.InsertSection(newConn, 2, 2_000_000); err != nil {
		t.Fatalf("insert new section: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.InsertSegment(newConn, 2_000_000+int64(i)*20, i == 0, 2, []byte{byte(i)}, 960); err != nil {
			t.Fatalf("insert segment: %v", err)
		}
	}

	newTS := startTestServer(t, newDir)
	newClient := New(newTS.URL)

	leasePath := filepath.Join(t.TempDir(), "leases.sqlite")
	leaseConn, err := store.OpenSQLite(leasePath, store.OpenReadWrite)
	if err != nil {
		t.Fatalf("open lease db: %v", err)
	}
	defer leaseConn.DB.Close()
	if err := store.EnsureLeasesSchema(leaseConn); err != nil {
		t.Fatalf("ensure leases schema: %v", err)
	}

	result, err := Replace(context.Background(), leaseConn, newClient, receiver, "drivetime", "sync", "test-holder", 60_000)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if result.Skipped {
		t.Fatal("replace unexpectedly skipped")
	}
	if result.FreshStart {
		t.Fatal("replace unexpectedly treated as fresh start")
	}

	newUniqueID, _, _ := store.GetMetadata(newConn, "unique_id")
	if result.NewUniqueID != newUniqueID {
		t.Errorf("new unique id = %q, want %q", result.NewUniqueID, newUniqueID)
	}
	if result.LastSyncedID != 0 {
		t.Errorf("last synced id after replace = %d, want 0 (resume from the new source's segment 1)", result.LastSyncedID)
	}

	storedSourceID, _, _ := store.GetMetadata(receiver, "source_unique_id")
	if storedSourceID != newUniqueID {
		t.Errorf("receiver source_unique_id = %q, want %q", storedSourceID, newUniqueID)
	}
}

func TestReplaceSourceSkipsWhenLeaseHeld(t *testing.T) {
	sourceDir := t.TempDir()
	newSourceDB(t, sourceDir, "drivetime", 3)
	ts := startTestServer(t, sourceDir)
	c := New(ts.URL)

	receiver := newReceiverDB(t)
	defer receiver.DB.Close()

	leasePath := filepath.Join(t.TempDir(), "leases.sqlite")
	leaseConn, err := store.OpenSQLite(leasePath, store.OpenReadWrite)
	if err != nil {
		t.Fatalf("open lease db: %v", err)
	}
	defer leaseConn.DB.Close()
	if err := store.EnsureLeasesSchema(leaseConn); err != nil {
		t.Fatalf("ensure leases schema: %v", err)
	}

	held, err := lease.TryAcquire(leaseConn, "sync", "other-holder", 60_000, time.Now())
	if err != nil || !held {
		t.Fatalf("prime lease: held=%v err=%v", held, err)
	}

	result, err := Replace(context.Background(), leaseConn, c, receiver, "drivetime", "sync", "test-holder", 60_000)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !result.Skipped {
		t.Error("expected replace to be skipped while another holder owns the lease")
	}
}
