package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/relaywave/segcast/internal/config"
	"github.com/relaywave/segcast/internal/credentials"
	"github.com/relaywave/segcast/internal/lease"
	"github.com/relaywave/segcast/internal/replication/client"
	"github.com/relaywave/segcast/internal/retention"
	"github.com/relaywave/segcast/internal/store"
)

// syncPollInterval is how often the receiver runs a sync pass across its
// configured shows when not invoked with --sync-only.
const syncPollInterval = 30 * time.Second

func runReceiver(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("receiver", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to receiver TOML config")
	syncOnly := fs.Bool("sync-only", false, "run one sync pass and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("receiver: --config is required")
	}

	cfg, err := config.LoadReceiverConfig(*configPath)
	if err != nil {
		return err
	}

	baseURL, err := postgresURLWithCredentials(cfg.Database)
	if err != nil {
		return err
	}

	leaseConn, err := store.OpenPostgresLeases(baseURL)
	if err != nil {
		return fmt.Errorf("receiver: open leases db: %w", err)
	}
	defer leaseConn.DB.Close()

	holderID, err := lease.NewHolderID()
	if err != nil {
		return fmt.Errorf("receiver: %w", err)
	}

	replClient := client.New(cfg.RemoteURL)

	if err := checkShowsWhitelisted(ctx, replClient, cfg.Shows); err != nil {
		return err
	}

	admin, err := store.OpenPostgresAdmin(baseURL)
	if err != nil {
		return fmt.Errorf("receiver: open postgres admin connection: %w", err)
	}
	defer admin.Close()

	showConns := make(map[string]*store.Conn, len(cfg.Shows))
	for _, sh := range cfg.Shows {
		dbName := store.ShowDatabaseName(cfg.Database.Prefix, sh.Name)
		if err := store.EnsurePostgresDatabase(admin, dbName); err != nil {
			return fmt.Errorf("receiver: %w", err)
		}
		conn, err := store.OpenPostgresShow(baseURL, dbName)
		if err != nil {
			return fmt.Errorf("receiver: open show db %s: %w", dbName, err)
		}
		showConns[sh.Name] = conn
	}
	defer func() {
		for _, conn := range showConns {
			conn.DB.Close()
		}
	}()

	leaseName := cfg.LeaseName
	if leaseName == "" {
		leaseName = lease.DefaultName
	}

	runOnce := func() error {
		return syncAllShows(ctx, leaseConn, replClient, cfg, showConns, leaseName, holderID)
	}

	if *syncOnly {
		return runOnce()
	}

	ticker := time.NewTicker(syncPollInterval)
	defer ticker.Stop()
	for {
		if err := runOnce(); err != nil {
			slog.Error("sync pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// syncAllShows acquires the cluster-wide sync lease, syncs every
// configured show, and releases the lease, per spec.md §5 ("The sync and
// replace-source commands acquire lease 'sync' ... spawn a renewal task
// ... run the work, then release"). A show whose sync fails (a
// compatibility mismatch, a transient network error) is logged and
// skipped; it does not abort the other shows' sync for this pass.
func syncAllShows(ctx context.Context, leaseConn *store.Conn, replClient *client.Client, cfg *config.ReceiverConfig, showConns map[string]*store.Conn, leaseName, holderID string) error {
	acquired, err := lease.TryAcquire(leaseConn, leaseName, holderID, lease.DefaultDurationMs, time.Now())
	if err != nil {
		return fmt.Errorf("receiver: acquire lease %s: %w", leaseName, err)
	}
	if !acquired {
		slog.Info("sync lease held by another receiver, skipping this pass", "lease", leaseName)
		return nil
	}

	renewCtx, cancelRenew := context.WithCancel(ctx)
	go renewLeaseLoop(renewCtx, leaseConn, leaseName, holderID)
	defer cancelRenew()
	defer func() {
		if err := lease.Release(leaseConn, leaseName, holderID); err != nil {
			slog.Warn("lease release failed", "lease", leaseName, "error", err)
		}
	}()

	for _, sh := range cfg.Shows {
		conn := showConns[sh.Name]
		result, err := replClient.Sync(ctx, conn, sh.Name, int64(cfg.ChunkSize), sh.RetentionHours)
		if err != nil {
			var mismatch *client.MismatchError
			if errors.As(err, &mismatch) {
				slog.Error("show sync aborted: compatibility mismatch", "show", sh.Name, "error", err)
			} else {
				slog.Warn("show sync failed, will retry next pass", "show", sh.Name, "error", err)
			}
			continue
		}
		slog.Info("show sync complete", "show", sh.Name, "segments_pulled", result.SegmentsPulled, "last_synced_id", result.LastSyncedID)

		if sh.RetentionHours > 0 {
			deleted, err := retention.Sweep(conn, sh.RetentionHours, 0, time.Now())
			if err != nil {
				slog.Error("receiver retention sweep failed", "show", sh.Name, "error", err)
			} else if deleted > 0 {
				slog.Info("receiver retention sweep complete", "show", sh.Name, "sections_deleted", deleted)
			}
		}
	}
	return nil
}

func renewLeaseLoop(ctx context.Context, leaseConn *store.Conn, name, holderID string) {
	interval := lease.RenewalInterval(lease.DefaultDurationMs)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Renew(leaseConn, name, holderID, lease.DefaultDurationMs, time.Now()); err != nil {
				slog.Warn("lease renewal failed", "lease", name, "error", err)
			}
		}
	}
}

func checkShowsWhitelisted(ctx context.Context, replClient *client.Client, shows []config.ShowSync) error {
	if len(shows) == 0 {
		return nil
	}
	remote, err := replClient.ListShows(ctx)
	if err != nil {
		return fmt.Errorf("receiver: list remote shows: %w", err)
	}
	remoteSet := make(map[string]bool, len(remote))
	for _, name := range remote {
		remoteSet[name] = true
	}
	for _, sh := range shows {
		if !remoteSet[sh.Name] {
			return fmt.Errorf("receiver: configured show %q is not present on the remote", sh.Name)
		}
	}
	return nil
}

// postgresURLWithCredentials resolves db.CredentialProfile's password and
// returns db.URL with it set as the connection URL's userinfo password.
func postgresURLWithCredentials(db config.DatabaseConfig) (string, error) {
	creds, err := credentials.Load()
	if err != nil {
		return "", fmt.Errorf("receiver: load credentials: %w", err)
	}
	password, err := creds.Password(credentials.KindPostgres, db.CredentialProfile)
	if err != nil {
		return "", fmt.Errorf("receiver: postgres credential profile %q: %w", db.CredentialProfile, err)
	}
	u, err := url.Parse(db.URL)
	if err != nil {
		return "", fmt.Errorf("receiver: parse database.url: %w", err)
	}
	user := ""
	if u.User != nil {
		user = u.User.Username()
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}
