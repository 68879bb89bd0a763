package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/relaywave/segcast/internal/config"
	"github.com/relaywave/segcast/internal/lease"
	"github.com/relaywave/segcast/internal/replication/client"
	"github.com/relaywave/segcast/internal/store"
)

// runReplaceSource invokes the matched-section replace-source algorithm
// (spec.md §4.7.b) once against one configured show, then exits.
func runReplaceSource(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("replace-source", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to receiver TOML config")
	show := fs.String("show", "", "show name to replace the source of")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("replace-source: --config is required")
	}
	if *show == "" {
		return fmt.Errorf("replace-source: --show is required")
	}

	cfg, err := config.LoadReceiverConfig(*configPath)
	if err != nil {
		return err
	}

	var showCfg *config.ShowSync
	for i := range cfg.Shows {
		if cfg.Shows[i].Name == *show {
			showCfg = &cfg.Shows[i]
			break
		}
	}
	if showCfg == nil {
		return fmt.Errorf("replace-source: show %q is not present in config", *show)
	}

	baseURL, err := postgresURLWithCredentials(cfg.Database)
	if err != nil {
		return err
	}

	leaseConn, err := store.OpenPostgresLeases(baseURL)
	if err != nil {
		return fmt.Errorf("replace-source: open leases db: %w", err)
	}
	defer leaseConn.DB.Close()

	admin, err := store.OpenPostgresAdmin(baseURL)
	if err != nil {
		return fmt.Errorf("replace-source: open postgres admin connection: %w", err)
	}
	defer admin.Close()

	dbName := store.ShowDatabaseName(cfg.Database.Prefix, showCfg.Name)
	if err := store.EnsurePostgresDatabase(admin, dbName); err != nil {
		return fmt.Errorf("replace-source: %w", err)
	}
	conn, err := store.OpenPostgresShow(baseURL, dbName)
	if err != nil {
		return fmt.Errorf("replace-source: open show db %s: %w", dbName, err)
	}
	defer conn.DB.Close()

	holderID, err := lease.NewHolderID()
	if err != nil {
		return fmt.Errorf("replace-source: %w", err)
	}
	leaseName := cfg.LeaseName
	if leaseName == "" {
		leaseName = lease.DefaultName
	}

	replClient := client.New(cfg.RemoteURL)
	result, err := client.Replace(ctx, leaseConn, replClient, conn, showCfg.Name, leaseName, holderID, lease.DefaultDurationMs)
	if err != nil {
		return fmt.Errorf("replace-source: %w", err)
	}
	if result.Skipped {
		slog.Info("replace-source skipped: lease held by another process", "show", showCfg.Name, "lease", leaseName)
		return nil
	}

	slog.Info("replace-source complete", "show", showCfg.Name, "fresh_start", result.FreshStart, "new_unique_id", result.NewUniqueID, "last_synced_id", result.LastSyncedID)
	return nil
}
