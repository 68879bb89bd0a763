package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/store"
)

// MismatchError reports that a resumed receiver database's stamped
// parameters disagree with the remote source, per spec.md §7
// "Compatibility errors": fatal for the affected show, never silently
// rewritten. The receiver's sync pass logs it and skips the show; a
// rebuilt source is re-stamped only by Replace.
type MismatchError struct {
	Show     string
	Field    string
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("replication client: %s: %s mismatch: receiver has %q, source has %q", e.Show, e.Field, e.Expected, e.Got)
}

// ErrRecipientSource is returned when the remote show is itself a
// recipient database (is_recipient=true) and therefore cannot be synced
// from — replication only ever reads from an originating recorder.
var ErrRecipientSource = errors.New("replication client: remote show is a recipient database")

// Result reports what one Sync call accomplished.
type Result struct {
	Show           string
	SegmentsPulled int64
	RequestCount   int
	LastSyncedID   int64
}

// Sync runs the normal incremental sync algorithm against one show,
// per spec.md §4.7.a: on a fresh receiver database it copies metadata
// and starts from the source's minimum surviving id; on a resumed
// database it validates source_unique_id/audio_format/bitrate still
// match before continuing from last_synced_id+1, then pulls sections
// and chunked segment ranges until caught up. retentionHours, when
// positive, is converted to a cutoff_ts threaded into every sections and
// segments request so the source never has to serve data the receiver
// would immediately expire.
func (c *Client) Sync(ctx context.Context, conn *store.Conn, show string, chunkSize, retentionHours int64) (*Result, error) {
	var cutoffMs int64 = -1
	if retentionHours > 0 {
		cutoffMs = time.Now().Add(-time.Duration(retentionHours) * time.Hour).UnixMilli()
	}

	meta, err := c.fetchMetadata(ctx, show)
	if err != nil {
		metrics.SyncRequests.WithLabelValues(show, "error").Inc()
		return nil, err
	}
	if meta.IsRecipient == "true" {
		return nil, ErrRecipientSource
	}

	sourceUniqueID, haveSource, err := store.GetMetadata(conn, "source_unique_id")
	if err != nil {
		return nil, fmt.Errorf("replication client: %s: read source_unique_id: %w", show, err)
	}

	var startID int64
	if !haveSource {
		if err := stampFreshReceiver(conn, meta); err != nil {
			return nil, err
		}
		startID = meta.MinID
		slog.Info("receiver database initialized from source", "show", show, "source_unique_id", meta.UniqueID, "start_id", startID)
	} else {
		if sourceUniqueID != meta.UniqueID {
			return nil, &MismatchError{Show: show, Field: "source_unique_id", Expected: sourceUniqueID, Got: meta.UniqueID}
		}
		if err := checkResumeCompat(conn, show, meta); err != nil {
			return nil, err
		}
		lastSynced, _, err := store.GetMetadata(conn, "last_synced_id")
		if err != nil {
			return nil, fmt.Errorf("replication client: %s: read last_synced_id: %w", show, err)
		}
		var lastID int64
		fmt.Sscanf(lastSynced, "%d", &lastID)
		startID = lastID + 1
	}

	if err := syncSections(ctx, c, conn, show, cutoffMs); err != nil {
		return nil, err
	}

	result := &Result{Show: show}
	currentID := startID
	for currentID <= meta.MaxID {
		endID := currentID + chunkSize - 1
		if endID > meta.MaxID {
			endID = meta.MaxID
		}

		segments, err := c.fetchSegments(ctx, show, currentID, endID, chunkSize, cutoffMs)
		if err != nil {
			return result, err
		}
		result.RequestCount++
		if len(segments) == 0 {
			if cutoffMs >= 0 {
				// Every segment in this range was already past the
				// receiver's retention cutoff on the source side; there is
				// nothing to insert, but the range itself is still caught
				// up with. Advance past it rather than erroring.
				currentID = endID + 1
				continue
			}
			return result, fmt.Errorf("replication client: %s: no segments returned for range %d-%d", show, currentID, endID)
		}

		tx, err := conn.Begin()
		if err != nil {
			return result, fmt.Errorf("replication client: %s: begin batch: %w", show, err)
		}

		var maxInBatch int64
		for _, seg := range segments {
			if _, err := tx.Exec(
				`INSERT INTO segments (id, timestamp_ms, is_timestamp_from_source, section_id, audio_data, duration_samples) VALUES (?, ?, ?, ?, ?, ?)`,
				seg.ID, seg.TimestampMs, seg.IsTimestampFromSource != 0, seg.SectionID, seg.AudioData, seg.DurationSamples,
			); err != nil {
				tx.Rollback()
				return result, fmt.Errorf("replication client: %s: insert segment %d: %w", show, seg.ID, err)
			}
			if seg.ID > maxInBatch {
				maxInBatch = seg.ID
			}
		}

		if err := store.UpsertMetadataTx(tx, "last_synced_id", fmt.Sprintf("%d", maxInBatch)); err != nil {
			tx.Rollback()
			return result, fmt.Errorf("replication client: %s: update last_synced_id: %w", show, err)
		}
		if err := tx.Commit(); err != nil {
			return result, fmt.Errorf("replication client: %s: commit batch: %w", show, err)
		}

		result.SegmentsPulled += int64(len(segments))
		result.LastSyncedID = maxInBatch
		currentID = maxInBatch + 1
	}

	metrics.SyncRequests.WithLabelValues(show, "ok").Add(float64(result.RequestCount))
	metrics.SyncLagSegments.WithLabelValues(show).Set(float64(meta.MaxID - result.LastSyncedID))

	slog.Info("sync complete", "show", show, "segments_pulled", result.SegmentsPulled, "requests", result.RequestCount, "last_synced_id", result.LastSyncedID)
	return result, nil
}

func stampFreshReceiver(conn *store.Conn, meta *metadataResponse) error {
	fields := map[string]string{
		"is_recipient":     "true",
		"source_unique_id": meta.UniqueID,
		"last_synced_id":   "0",
		"name":             meta.Name,
		"audio_format":     meta.AudioFormat,
		"bitrate":          meta.Bitrate,
		"sample_rate":      meta.SampleRate,
	}
	for key, value := range fields {
		if err := store.UpsertMetadata(conn, key, value); err != nil {
			return fmt.Errorf("replication client: stamp %s: %w", key, err)
		}
	}
	return nil
}

func checkResumeCompat(conn *store.Conn, show string, meta *metadataResponse) error {
	checks := []struct{ field, remote string }{
		{"audio_format", meta.AudioFormat},
		{"bitrate", meta.Bitrate},
	}
	for _, c := range checks {
		local, ok, err := store.GetMetadata(conn, c.field)
		if err != nil {
			return fmt.Errorf("replication client: %s: read %s: %w", show, c.field, err)
		}
		if ok && local != c.remote {
			return &MismatchError{Show: show, Field: c.field, Expected: local, Got: c.remote}
		}
	}
	return nil
}

func syncSections(ctx context.Context, c *Client, conn *store.Conn, show string, cutoffMs int64) error {
	sections, err := c.fetchSections(ctx, show, cutoffMs)
	if err != nil {
		return err
	}
	for _, sec := range sections {
		if err := store.InsertSectionOrIgnore(conn, sec.ID, sec.StartTimestampMs); err != nil {
			return fmt.Errorf("replication client: %s: insert section %d: %w", show, sec.ID, err)
		}
	}
	return nil
}
