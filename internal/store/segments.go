package store

import (
	"database/sql"
	"fmt"
)

// Segment is one stored audio chunk row (C1 data model, spec.md §3).
type Segment struct {
	ID                    int64
	TimestampMs           int64
	IsTimestampFromSource bool
	AudioData             []byte
	SectionID             int64
	DurationSamples       int64
}

// InsertSegment appends a new segment, letting SQLite assign the id.
// Mirrors segments.rs insert (C4 recorder write path).
func InsertSegment(db *Conn, timestampMs int64, isTimestampFromSource bool, sectionID int64, audioData []byte, durationSamples int64) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO segments (timestamp_ms, is_timestamp_from_source, section_id, audio_data, duration_samples) VALUES (?, ?, ?, ?, ?)`,
		timestampMs, boolToInt(isTimestampFromSource), sectionID, audioData, durationSamples,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert segment: %w", err)
	}
	return res.LastInsertId()
}

// InsertSegmentWithID appends a segment preserving its original id, so a
// copied row's id matches its source exactly. The replication client does
// not call it; it inserts each batch with its own statement inside a
// transaction. Mirrors segments.rs insert_with_id.
func InsertSegmentWithID(db *Conn, id, timestampMs int64, isTimestampFromSource bool, sectionID int64, audioData []byte, durationSamples int64) error {
	_, err := db.Exec(
		`INSERT INTO segments (id, timestamp_ms, is_timestamp_from_source, audio_data, section_id, duration_samples) VALUES (?, ?, ?, ?, ?, ?)`,
		id, timestampMs, boolToInt(isTimestampFromSource), audioData, sectionID, durationSamples,
	)
	if err != nil {
		return fmt.Errorf("store: insert segment with id %d: %w", id, err)
	}
	return nil
}

// SegmentsExistForSection reports whether any segment references
// sectionID. Mirrors segments.rs exists_for_section.
func SegmentsExistForSection(db *Conn, sectionID int64) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS(SELECT 1 FROM segments WHERE section_id = ?)`, sectionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: segments exist for section %d: %w", sectionID, err)
	}
	return exists, nil
}

// SelectMaxSegmentID returns the highest segment id, and false if the
// table is empty. Mirrors segments.rs select_max_id (used by the
// replication server to report a show's id range).
func SelectMaxSegmentID(db *Conn) (int64, bool, error) {
	var id sql.NullInt64
	err := db.QueryRow(`SELECT MAX(id) FROM segments`).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("store: select max segment id: %w", err)
	}
	if !id.Valid {
		return 0, false, nil
	}
	return id.Int64, true, nil
}

// SelectSegmentRangeWithLimit returns up to limit segments with
// startID <= id <= endID, ordered by id. Mirrors segments.rs
// select_range_with_limit (C6 chunked replication reads).
func SelectSegmentRangeWithLimit(db *Conn, startID, endID int64, limit int64) ([]Segment, error) {
	rows, err := db.Query(
		`SELECT id, timestamp_ms, is_timestamp_from_source, audio_data, section_id, duration_samples
		 FROM segments WHERE id >= ? AND id <= ? ORDER BY id LIMIT ?`,
		startID, endID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: select segment range: %w", err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// SelectSegmentsBySectionID returns every segment in a section, ordered by
// id. Mirrors segments.rs select_by_section_id (C9 export).
func SelectSegmentsBySectionID(db *Conn, sectionID int64) ([]Segment, error) {
	rows, err := db.Query(
		`SELECT id, timestamp_ms, is_timestamp_from_source, audio_data, section_id, duration_samples
		 FROM segments WHERE section_id = ? ORDER BY id`,
		sectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: select segments by section %d: %w", sectionID, err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// SelectMaxAndCountForSection returns the highest segment id and the row
// count within sectionID. No caller in this module uses it outside its
// tests; the recorder opens a new section for every connection. Mirrors
// segments.rs select_max_and_count_for_section.
func SelectMaxAndCountForSection(db *Conn, sectionID int64) (maxID int64, count int64, err error) {
	var max sql.NullInt64
	err = db.QueryRow(`SELECT MAX(id), COUNT(id) FROM segments WHERE section_id = ?`, sectionID).Scan(&max, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("store: select max/count for section %d: %w", sectionID, err)
	}
	if max.Valid {
		maxID = max.Int64
	}
	return maxID, count, nil
}

// SelectMinMaxForSection returns the lowest and highest segment id within
// sectionID, found=false if the section has no segments. Used by the
// replication server's segment_range endpoint; queries MIN(id) directly
// rather than assuming ids within a section are contiguous.
func SelectMinMaxForSection(db *Conn, sectionID int64) (minID, maxID int64, found bool, err error) {
	var min, max sql.NullInt64
	err = db.QueryRow(`SELECT MIN(id), MAX(id) FROM segments WHERE section_id = ?`, sectionID).Scan(&min, &max)
	if err != nil {
		return 0, 0, false, fmt.Errorf("store: select min/max for section %d: %w", sectionID, err)
	}
	if !min.Valid {
		return 0, 0, false, nil
	}
	return min.Int64, max.Int64, true, nil
}

func scanSegments(rows *sql.Rows) ([]Segment, error) {
	var out []Segment
	for rows.Next() {
		var s Segment
		var isBoundary int
		if err := rows.Scan(&s.ID, &s.TimestampMs, &isBoundary, &s.AudioData, &s.SectionID, &s.DurationSamples); err != nil {
			return nil, fmt.Errorf("store: scan segment: %w", err)
		}
		s.IsTimestampFromSource = isBoundary != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
