package store

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *Conn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "show.db")
	conn, err := OpenSQLite(path, OpenReadWrite)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { conn.DB.Close() })
	return conn
}

func TestOpenSQLiteStampsVersionAndUniqueID(t *testing.T) {
	conn := openTestDB(t)

	version, ok, err := GetMetadata(conn, schemaVersionKey)
	if err != nil || !ok {
		t.Fatalf("get version metadata: ok=%v err=%v", ok, err)
	}
	if version != schemaVersion {
		t.Fatalf("version = %q, want %q", version, schemaVersion)
	}

	id, ok, err := GetMetadata(conn, uniqueIDKey)
	if err != nil || !ok {
		t.Fatalf("get unique id metadata: ok=%v err=%v", ok, err)
	}
	if len(id) != uniqueIDLength {
		t.Fatalf("unique id length = %d, want %d", len(id), uniqueIDLength)
	}
}

func TestOpenSQLiteRejectsIncompatibleVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.db")
	conn, err := OpenSQLite(path, OpenReadWrite)
	if err != nil {
		t.Fatalf("initial open: %v", err)
	}
	if err := UpdateMetadata(conn, schemaVersionKey, "99"); err != nil {
		t.Fatalf("force version mismatch: %v", err)
	}
	conn.DB.Close()

	_, err = OpenSQLite(path, OpenReadWrite)
	var compat *CompatError
	if err == nil {
		t.Fatal("expected CompatError reopening a mismatched-version db")
	}
	if ce, ok := err.(*CompatError); ok {
		compat = ce
	}
	if compat == nil {
		t.Fatalf("expected *CompatError, got %T (%v)", err, err)
	}
	if compat.Got != "99" {
		t.Fatalf("compat error Got = %q, want 99", compat.Got)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	conn := openTestDB(t)

	if err := SetMetadata(conn, "source_url", "https://example.test/stream"); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	got, ok, err := GetMetadata(conn, "source_url")
	if err != nil || !ok {
		t.Fatalf("get metadata: ok=%v err=%v", ok, err)
	}
	if got != "https://example.test/stream" {
		t.Fatalf("got %q", got)
	}

	if err := UpdateMetadata(conn, "source_url", "https://example.test/stream2"); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	got, _, _ = GetMetadata(conn, "source_url")
	if got != "https://example.test/stream2" {
		t.Fatalf("after update got %q", got)
	}

	if err := UpdateMetadata(conn, "missing_key", "x"); err == nil {
		t.Fatal("expected error updating missing key")
	}

	if err := UpsertMetadata(conn, "brand_new", "v1"); err != nil {
		t.Fatalf("upsert insert: %v", err)
	}
	if err := UpsertMetadata(conn, "brand_new", "v2"); err != nil {
		t.Fatalf("upsert overwrite: %v", err)
	}
	got, _, _ = GetMetadata(conn, "brand_new")
	if got != "v2" {
		t.Fatalf("upsert got %q, want v2", got)
	}
}

func TestSectionsAndRetentionQueries(t *testing.T) {
	conn := openTestDB(t)

	if err := InsertSection(conn, 1, 1000); err != nil {
		t.Fatalf("insert section 1: %v", err)
	}
	if err := InsertSection(conn, 2, 2000); err != nil {
		t.Fatalf("insert section 2: %v", err)
	}
	if err := InsertSectionOrIgnore(conn, 1, 9999); err != nil {
		t.Fatalf("insert-or-ignore duplicate: %v", err)
	}

	sections, err := SelectAllSections(conn)
	if err != nil {
		t.Fatalf("select all sections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections[0].StartTimestampMs != 1000 {
		t.Fatalf("insert-or-ignore overwrote existing row: got start_timestamp_ms=%d", sections[0].StartTimestampMs)
	}

	id, ok, err := SelectLatestBeforeCutoff(conn, 3000)
	if err != nil || !ok || id != 2 {
		t.Fatalf("select latest before cutoff: id=%d ok=%v err=%v", id, ok, err)
	}

	n, err := DeleteOldSections(conn, 3000, 2)
	if err != nil {
		t.Fatalf("delete old sections: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d sections, want 1", n)
	}

	if _, err := SelectSectionByID(conn, 1); err == nil {
		t.Fatal("expected section 1 to be gone")
	}
	if _, err := SelectSectionByID(conn, 2); err != nil {
		t.Fatalf("section 2 (keeper) should survive: %v", err)
	}
}

func TestSegmentsInsertAndQuery(t *testing.T) {
	conn := openTestDB(t)
	if err := InsertSection(conn, 1, 1000); err != nil {
		t.Fatalf("insert section: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := InsertSegment(conn, int64(1000+i), i == 0, 1, []byte{byte(i)}, 960); err != nil {
			t.Fatalf("insert segment %d: %v", i, err)
		}
	}

	maxID, ok, err := SelectMaxSegmentID(conn)
	if err != nil || !ok || maxID != 5 {
		t.Fatalf("max segment id: got=%d ok=%v err=%v", maxID, ok, err)
	}

	segs, err := SelectSegmentRangeWithLimit(conn, 1, 5, 3)
	if err != nil {
		t.Fatalf("select range: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3", len(segs))
	}
	if !segs[0].IsTimestampFromSource {
		t.Fatal("first segment should be is_timestamp_from_source")
	}

	bySection, err := SelectSegmentsBySectionID(conn, 1)
	if err != nil || len(bySection) != 5 {
		t.Fatalf("select by section: got %d err=%v", len(bySection), err)
	}

	exists, err := SegmentsExistForSection(conn, 1)
	if err != nil || !exists {
		t.Fatalf("segments exist for section: %v %v", exists, err)
	}

	maxForSection, count, err := SelectMaxAndCountForSection(conn, 1)
	if err != nil || maxForSection != 5 || count != 5 {
		t.Fatalf("max/count for section: max=%d count=%d err=%v", maxForSection, count, err)
	}
}
