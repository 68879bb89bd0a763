package retention

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/relaywave/segcast/internal/store"
)

func openTestDB(t *testing.T) *store.Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "show.db")
	conn, err := store.OpenSQLite(path, store.OpenReadWrite)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.DB.Close() })
	return conn
}

// TestSweepKeeperSemantics mirrors spec.md §8 scenario 3: sections at
// 300h, 175h, and 50h ago, each with a boundary segment plus two more
// segments. Running Sweep with retention_hours=168 should keep the 175h
// and 50h sections (6 segments total) and delete the 300h section and
// its segments.
func TestSweepKeeperSemantics(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ago := func(hours int64) int64 {
		return now.Add(-time.Duration(hours) * time.Hour).UnixMilli()
	}

	sections := []struct {
		id               int64
		startTimestampMs int64
	}{
		{1, ago(300)},
		{2, ago(175)},
		{3, ago(50)},
	}
	for _, s := range sections {
		if err := store.InsertSection(conn, s.id, s.startTimestampMs); err != nil {
			t.Fatalf("insert section %d: %v", s.id, err)
		}
		if _, err := store.InsertSegment(conn, s.startTimestampMs, true, s.id, []byte{0x01}, 960); err != nil {
			t.Fatalf("insert boundary segment for section %d: %v", s.id, err)
		}
		if _, err := store.InsertSegment(conn, s.startTimestampMs+1000, false, s.id, []byte{0x02}, 960); err != nil {
			t.Fatalf("insert second segment for section %d: %v", s.id, err)
		}
		if _, err := store.InsertSegment(conn, s.startTimestampMs+2000, false, s.id, []byte{0x03}, 960); err != nil {
			t.Fatalf("insert third segment for section %d: %v", s.id, err)
		}
	}

	deleted, err := Sweep(conn, 168, 0, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted %d sections, want 1", deleted)
	}

	all, err := store.SelectAllSections(conn)
	if err != nil {
		t.Fatalf("select all sections: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d remaining sections, want 2", len(all))
	}
	for _, s := range all {
		if s.ID == 1 {
			t.Fatalf("section 1 (300h ago) should have been deleted")
		}
	}

	var totalSegments int
	for _, s := range all {
		segs, err := store.SelectSegmentsBySectionID(conn, s.ID)
		if err != nil {
			t.Fatalf("select segments for section %d: %v", s.ID, err)
		}
		totalSegments += len(segs)
	}
	if totalSegments != 6 {
		t.Fatalf("total remaining segments = %d, want 6", totalSegments)
	}
}

func TestSweepPendingSectionAlwaysKept(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	veryOld := now.Add(-400 * time.Hour).UnixMilli()
	if err := store.InsertSection(conn, 1, veryOld); err != nil {
		t.Fatalf("insert pending section: %v", err)
	}
	if _, err := store.InsertSegment(conn, veryOld, true, 1, []byte{0x01}, 960); err != nil {
		t.Fatalf("insert segment: %v", err)
	}

	deleted, err := Sweep(conn, 168, 1, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted %d sections, want 0 (pending section must survive)", deleted)
	}
	if _, err := store.SelectSectionByID(conn, 1); err != nil {
		t.Fatalf("pending section should still exist: %v", err)
	}
}

func TestSweepNoSectionsIsNoop(t *testing.T) {
	conn := openTestDB(t)
	deleted, err := Sweep(conn, 168, 0, time.Now())
	if err != nil {
		t.Fatalf("sweep on empty db: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("deleted %d sections, want 0", deleted)
	}
}
