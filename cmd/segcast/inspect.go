package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/relaywave/segcast/internal/health"
	"github.com/relaywave/segcast/internal/store"
)

// runInspect serves a single show database's sections and audio over
// plain HTTP for local playback/debugging, per spec.md §6. Container
// muxing for Ogg/DASH/WebM playback is explicitly out of core (spec.md
// §1 "Out of scope"); this exposes the same raw segment bytes the
// replication API transports, concatenated per section, and lets an
// external player or script assemble them.
func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	port := fs.Int("port", 8090, "HTTP listen port")
	immutable := fs.Bool("immutable", false, "open the database with SQLite's immutable=1 (for files on read-only media)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("inspect: exactly one sqlite_file argument is required")
	}
	dbPath := fs.Arg(0)

	mode := store.OpenReadOnly
	if *immutable {
		mode = store.OpenReadOnlyImmutable
	}
	conn, err := store.OpenSQLite(dbPath, mode)
	if err != nil {
		return fmt.Errorf("inspect: open %s: %w", dbPath, err)
	}
	defer conn.DB.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Handler())
	mux.HandleFunc("GET /metadata", inspectMetadataHandler(conn))
	mux.HandleFunc("GET /sections", inspectSectionsHandler(conn))
	mux.HandleFunc("GET /sections/{id}/audio", inspectAudioHandler(conn))

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{Addr: addr, Handler: mux}
	slog.Info("inspect server listening", "addr", addr, "db", dbPath)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func inspectMetadataHandler(conn *store.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := map[string]string{}
		for _, key := range []string{"name", "audio_format", "bitrate", "split_interval", "unique_id", "version", "is_recipient"} {
			if v, ok, _ := store.GetMetadata(conn, key); ok {
				out[key] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func inspectSectionsHandler(conn *store.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sections, err := store.SelectAllSections(conn)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sections)
	}
}

func inspectAudioHandler(conn *store.Conn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid section id", http.StatusBadRequest)
			return
		}
		segments, err := store.SelectSegmentsBySectionID(conn, id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(segments) == 0 {
			http.Error(w, "section has no segments", http.StatusNotFound)
			return
		}

		audioFormat, _, _ := store.GetMetadata(conn, "audio_format")
		w.Header().Set("Content-Type", contentTypeFor(audioFormat))
		for _, seg := range segments {
			w.Write(seg.AudioData)
		}
	}
}

func contentTypeFor(audioFormat string) string {
	switch audioFormat {
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	default:
		return "audio/wav"
	}
}
