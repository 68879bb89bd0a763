package store

import (
	"database/sql"
	"fmt"
)

// Section is one contiguous recording span (C1 data model, spec.md §3).
type Section struct {
	ID                 int64
	StartTimestampMs   int64
	IsExportedToRemote bool
}

// InsertSection creates a new section with an explicit id, failing if one
// already exists with that id. Mirrors sections.rs insert.
func InsertSection(db *Conn, id, startTimestampMs int64) error {
	_, err := db.Exec(`INSERT INTO sections (id, start_timestamp_ms) VALUES (?, ?)`, id, startTimestampMs)
	if err != nil {
		return fmt.Errorf("store: insert section %d: %w", id, err)
	}
	return nil
}

// InsertSectionOrIgnore creates a section, silently doing nothing if the
// id already exists. Used by the replication client when replaying
// sections that may have already been synced. Mirrors sections.rs
// insert_or_ignore.
func InsertSectionOrIgnore(db *Conn, id, startTimestampMs int64) error {
	_, err := db.Exec(`INSERT INTO sections (id, start_timestamp_ms) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, id, startTimestampMs)
	if err != nil {
		return fmt.Errorf("store: insert-or-ignore section %d: %w", id, err)
	}
	return nil
}

// DeleteOldSections removes every section whose start_timestamp_ms is
// strictly before cutoffMs, except keeperSectionID, relying on the
// segments(section_id) foreign key's ON DELETE CASCADE to remove their
// segments too. Mirrors sections.rs delete_old_sections (C5 retention).
func DeleteOldSections(db *Conn, cutoffMs, keeperSectionID int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM sections WHERE start_timestamp_ms < ? AND id != ?`, cutoffMs, keeperSectionID)
	if err != nil {
		return 0, fmt.Errorf("store: delete old sections: %w", err)
	}
	return res.RowsAffected()
}

// SelectLatestBeforeCutoff returns the id of the most recent section whose
// start_timestamp_ms is before cutoffMs, and false if none exists. Used to
// pick the retention keeper when no section is pending. Mirrors
// sections.rs select_latest_before_cutoff.
func SelectLatestBeforeCutoff(db *Conn, cutoffMs int64) (int64, bool, error) {
	var id int64
	err := db.QueryRow(`SELECT id FROM sections WHERE start_timestamp_ms < ? ORDER BY start_timestamp_ms DESC LIMIT 1`, cutoffMs).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: select latest section before cutoff: %w", err)
	}
	return id, true, nil
}

// SelectAllSections returns every section ordered by id. Mirrors
// sections.rs select_all.
func SelectAllSections(db *Conn) ([]Section, error) {
	rows, err := db.Query(`SELECT id, start_timestamp_ms FROM sections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: select all sections: %w", err)
	}
	defer rows.Close()
	var out []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.StartTimestampMs); err != nil {
			return nil, fmt.Errorf("store: scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SelectSectionByID returns a single section, or a *NotFoundError if
// absent. Mirrors sections.rs select_by_id.
func SelectSectionByID(db *Conn, id int64) (Section, error) {
	var s Section
	var exported int
	err := db.QueryRow(`SELECT id, start_timestamp_ms, is_exported_to_remote FROM sections WHERE id = ?`, id).
		Scan(&s.ID, &s.StartTimestampMs, &exported)
	if err == sql.ErrNoRows {
		return Section{}, &NotFoundError{Kind: "section", ID: id}
	}
	if err != nil {
		return Section{}, fmt.Errorf("store: select section %d: %w", id, err)
	}
	s.IsExportedToRemote = exported != 0
	return s, nil
}

// MarkSectionExported sets is_exported_to_remote on a section. Mirrors
// sections.rs mark_exported; idempotent by construction (C9 re-export).
func MarkSectionExported(db *Conn, id int64) error {
	_, err := db.Exec(`UPDATE sections SET is_exported_to_remote = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: mark section %d exported: %w", id, err)
	}
	return nil
}

// SelectUnexportedSections returns every section not yet marked exported.
// Mirrors sections.rs select_unexported.
func SelectUnexportedSections(db *Conn) ([]Section, error) {
	rows, err := db.Query(`SELECT id, start_timestamp_ms FROM sections WHERE is_exported_to_remote IS NULL OR is_exported_to_remote = 0`)
	if err != nil {
		return nil, fmt.Errorf("store: select unexported sections: %w", err)
	}
	defer rows.Close()
	var out []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.StartTimestampMs); err != nil {
			return nil, fmt.Errorf("store: scan section: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SelectUnexportedSectionIDsExcluding returns the ids of unexported
// sections other than excludeID, used to avoid exporting the section
// still being actively written. Mirrors sections.rs
// select_unexported_excluding.
func SelectUnexportedSectionIDsExcluding(db *Conn, excludeID int64) ([]int64, error) {
	rows, err := db.Query(`SELECT id FROM sections WHERE (is_exported_to_remote IS NULL OR is_exported_to_remote = 0) AND id != ?`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("store: select unexported section ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan section id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
