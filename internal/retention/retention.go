// Package retention implements the periodic section cleanup (C5) that
// keeps a show's database bounded to its configured retention window.
package retention

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/relaywave/segcast/internal/store"
)

// Sweep deletes every section whose start_timestamp_ms falls before
// now - retentionHours, preserving one "keeper" section so playback
// continuity across the retention boundary is never broken.
//
// If pendingSectionID is non-zero, it names the section currently being
// written by the recorder; when that section already has segments it is
// the keeper, even if its own start timestamp falls before the cutoff (a
// short first section right after the retention horizon, for example).
// A pending section with no segments yet is not protected. Otherwise the
// keeper is the
// most recent section that started before the cutoff, matching
// original_source's record.rs cleanup_old_sections_with_params (which
// selects MAX(id) WHERE start_timestamp_ms < cutoff).
//
// Returns the number of sections deleted (segments cascade via the
// foreign key); 0 when no keeper exists and nothing is deleted.
func Sweep(conn *store.Conn, retentionHours int64, pendingSectionID int64, now time.Time) (int64, error) {
	cutoffMs := now.Add(-time.Duration(retentionHours) * time.Hour).UnixMilli()

	var keeperID int64
	var ok bool
	var err error
	if pendingSectionID != 0 {
		hasSegments, err := store.SegmentsExistForSection(conn, pendingSectionID)
		if err != nil {
			return 0, fmt.Errorf("retention: check pending section: %w", err)
		}
		if hasSegments {
			keeperID, ok = pendingSectionID, true
		}
	}
	if !ok {
		keeperID, ok, err = store.SelectLatestBeforeCutoff(conn, cutoffMs)
		if err != nil {
			return 0, fmt.Errorf("retention: find keeper section: %w", err)
		}
	}
	if !ok {
		slog.Debug("no old sections to clean up", "retention_hours", retentionHours)
		return 0, nil
	}

	n, err := store.DeleteOldSections(conn, cutoffMs, keeperID)
	if err != nil {
		return 0, fmt.Errorf("retention: delete old sections: %w", err)
	}
	if n > 0 {
		slog.Info("cleaned up old sections", "deleted", n, "keeper_section_id", keeperID)
	} else {
		slog.Debug("no old sections to clean up")
	}
	return n, nil
}
