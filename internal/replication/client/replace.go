package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaywave/segcast/internal/lease"
	"github.com/relaywave/segcast/internal/store"
)

// errSourceEmpty describes a new source with no sections at all. It is
// never returned: replaceLocked treats that case as a fresh start.
var errSourceEmpty = errors.New("replication client: new source has no sections")

// ErrNoMatchingSection is a fatal error: the new source's section
// history does not overlap the receiver's existing data at all (neither
// an after_section nor a before_or_equal_section was returned), per
// spec.md §4.7.b step 4's final fallback.
var ErrNoMatchingSection = errors.New("replication client: no matching section in replacement source")

// ReplaceResult reports what one Replace call accomplished.
type ReplaceResult struct {
	Show         string
	FreshStart   bool
	NewUniqueID  string
	LastSyncedID int64
	Skipped      bool
}

// Replace runs the source replacement algorithm against one show, per
// spec.md §4.7.b: used when the upstream database has been rebuilt and
// the receiver's stamped source_unique_id no longer matches it. Acquires
// the named lease for the duration of the operation; if already held,
// returns a Skipped result rather than blocking or erroring.
func Replace(ctx context.Context, leaseConn *store.Conn, c *Client, conn *store.Conn, show, leaseName, holderID string, leaseDurationMs int64) (*ReplaceResult, error) {
	acquired, err := lease.TryAcquire(leaseConn, leaseName, holderID, leaseDurationMs, time.Now())
	if err != nil {
		return nil, fmt.Errorf("replication client: %s: acquire lease: %w", show, err)
	}
	if !acquired {
		return &ReplaceResult{Show: show, Skipped: true}, nil
	}
	defer func() {
		if err := lease.Release(leaseConn, leaseName, holderID); err != nil {
			slog.Warn("failed to release replace-source lease", "show", show, "error", err)
		}
	}()

	result, err := replaceLocked(ctx, c, conn, show)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func replaceLocked(ctx context.Context, c *Client, conn *store.Conn, show string) (*ReplaceResult, error) {
	receiverMaxTs, haveAny, err := maxSectionStartTimestamp(conn)
	if err != nil {
		return nil, fmt.Errorf("replication client: %s: query receiver max section timestamp: %w", show, err)
	}

	meta, err := c.fetchMetadata(ctx, show)
	if err != nil {
		return nil, err
	}
	if meta.IsRecipient == "true" {
		return nil, ErrRecipientSource
	}

	if !haveAny {
		if err := setFreshSourceUniqueID(conn, meta.UniqueID); err != nil {
			return nil, err
		}
		return &ReplaceResult{Show: show, FreshStart: true, NewUniqueID: meta.UniqueID}, nil
	}

	sections, err := c.fetchSections(ctx, show, -1)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		if err := setFreshSourceUniqueID(conn, meta.UniqueID); err != nil {
			return nil, err
		}
		return &ReplaceResult{Show: show, FreshStart: true, NewUniqueID: meta.UniqueID}, nil
	}

	matched, err := c.fetchFindByTimestamp(ctx, show, receiverMaxTs)
	if err != nil {
		return nil, err
	}

	var sectionID int64
	switch {
	case matched.AfterSection != nil:
		sectionID = *matched.AfterSection
	case matched.BeforeOrEqualSection != nil:
		sectionID = *matched.BeforeOrEqualSection
	default:
		return nil, ErrNoMatchingSection
	}

	rng, err := c.fetchSegmentRange(ctx, show, sectionID)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("replication client: %s: begin replace: %w", show, err)
	}
	if err := store.UpsertMetadataTx(tx, "source_unique_id", meta.UniqueID); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replication client: %s: stamp source_unique_id: %w", show, err)
	}
	lastSynced := rng.MinID - 1
	if err := store.UpsertMetadataTx(tx, "last_synced_id", fmt.Sprintf("%d", lastSynced)); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("replication client: %s: stamp last_synced_id: %w", show, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("replication client: %s: commit replace: %w", show, err)
	}

	slog.Info("source replaced", "show", show, "new_source_unique_id", meta.UniqueID, "resume_from_id", rng.MinID)
	return &ReplaceResult{Show: show, NewUniqueID: meta.UniqueID, LastSyncedID: lastSynced}, nil
}

func maxSectionStartTimestamp(conn *store.Conn) (int64, bool, error) {
	sections, err := store.SelectAllSections(conn)
	if err != nil {
		return 0, false, err
	}
	if len(sections) == 0 {
		return 0, false, nil
	}
	var max int64
	for _, sec := range sections {
		if sec.StartTimestampMs > max {
			max = sec.StartTimestampMs
		}
	}
	return max, true, nil
}

func setFreshSourceUniqueID(conn *store.Conn, uniqueID string) error {
	if err := store.UpsertMetadata(conn, "source_unique_id", uniqueID); err != nil {
		return fmt.Errorf("replication client: stamp source_unique_id: %w", err)
	}
	return nil
}
