// Package server implements the read-only replication HTTP API (C6),
// per spec.md §4.6. A single server instance hosts every show database
// in one output directory, serving JSON listing endpoints and the
// binary wire-codec segment stream to replication clients (C7).
//
// Grounded on denpa-radio's net/http ServeMux + slog request logging
// style; h2c and brotli wiring are new domain additions the teacher
// declares in go.mod but never calls (see DESIGN.md).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/store"
	"github.com/relaywave/segcast/internal/wire"
)

// Server serves the replication API against a pre-initialized
// name -> path map of show databases. Never trusts a path derived from
// a request: only names present in shows are ever opened.
type Server struct {
	mux   *http.ServeMux
	shows map[string]string // name -> sqlite file path
}

// New scans dir for show databases matching *.sqlite and builds the
// name -> path map the server will ever serve from. Every *.sqlite file
// is added without being opened; the /shows listing skips databases that
// fail to open, have is_recipient=true, or hold no segments, and the
// metadata endpoint answers 403 for a recipient database.
func New(dir string) (*Server, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("replication/server: read dir %s: %w", dir, err)
	}
	shows := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sqlite") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".sqlite")
		shows[name] = filepath.Join(dir, entry.Name())
	}

	s := &Server{mux: http.NewServeMux(), shows: shows}
	s.routes()
	return s, nil
}

// Handler returns the server's http.Handler, wrapped for h2c (plaintext
// HTTP/2) so a receiver pulling many shows can multiplex requests over a
// single connection.
func (s *Server) Handler() http.Handler {
	h2s := &http2.Server{}
	return h2c.NewHandler(s.mux, h2s)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.mux.HandleFunc("GET /api/sync/shows", brotliJSON(s.handleShows))
	s.mux.HandleFunc("GET /api/sync/shows/{name}/metadata", brotliJSON(s.handleMetadata))
	s.mux.HandleFunc("GET /api/sync/shows/{name}/sections", brotliJSON(s.handleSections))
	s.mux.HandleFunc("GET /api/sync/shows/{name}/segments", s.handleSegments)
	s.mux.HandleFunc("GET /api/sync/shows/{name}/sections/find_by_timestamp", brotliJSON(s.handleFindByTimestamp))
	s.mux.HandleFunc("GET /api/sync/shows/{name}/sections/{sid}/segment_range", brotliJSON(s.handleSegmentRange))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type showSummary struct {
	Name         string `json:"name"`
	DatabaseFile string `json:"database_file"`
	MinID        int64  `json:"min_id"`
	MaxID        int64  `json:"max_id"`
}

func (s *Server) handleShows(w http.ResponseWriter, r *http.Request) (any, int) {
	var out []showSummary
	for name, path := range s.shows {
		conn, err := s.openReadOnly(path)
		if err != nil {
			slog.Warn("skipping show with unopenable db", "show", name, "error", err)
			continue
		}
		recipient, _, _ := store.GetMetadata(conn, "is_recipient")
		if recipient == "true" {
			conn.DB.Close()
			continue
		}
		minID, maxID, ok := segmentIDRange(conn)
		conn.DB.Close()
		if !ok {
			continue
		}
		out = append(out, showSummary{Name: name, DatabaseFile: filepath.Base(path), MinID: minID, MaxID: maxID})
	}
	return map[string]any{"shows": out}, http.StatusOK
}

type metadataResponse struct {
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	AudioFormat string `json:"audio_format"`
	Bitrate     string `json:"bitrate"`
	SampleRate  string `json:"sample_rate"`
	Version     string `json:"version"`
	IsRecipient string `json:"is_recipient"`
	MinID       int64  `json:"min_id"`
	MaxID       int64  `json:"max_id"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) (any, int) {
	conn, status, errResp := s.openShow(r)
	if conn == nil {
		return errResp, status
	}
	defer conn.DB.Close()

	recipient, _, _ := store.GetMetadata(conn, "is_recipient")
	if recipient == "true" {
		return map[string]string{"error": "forbidden: recipient database"}, http.StatusForbidden
	}

	resp := metadataResponse{IsRecipient: recipient}
	resp.UniqueID, _, _ = store.GetMetadata(conn, "unique_id")
	resp.Name, _, _ = store.GetMetadata(conn, "name")
	resp.AudioFormat, _, _ = store.GetMetadata(conn, "audio_format")
	resp.Bitrate, _, _ = store.GetMetadata(conn, "bitrate")
	resp.SampleRate, _, _ = store.GetMetadata(conn, "sample_rate")
	resp.Version, _, _ = store.GetMetadata(conn, "version")
	resp.MinID, resp.MaxID, _ = segmentIDRange(conn)
	return resp, http.StatusOK
}

type sectionJSON struct {
	ID               int64 `json:"id"`
	StartTimestampMs int64 `json:"start_timestamp_ms"`
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) (any, int) {
	conn, status, errResp := s.openShow(r)
	if conn == nil {
		return errResp, status
	}
	defer conn.DB.Close()

	all, err := store.SelectAllSections(conn)
	if err != nil {
		return map[string]string{"error": err.Error()}, http.StatusInternalServerError
	}

	var cutoff int64 = -1
	if v := r.URL.Query().Get("cutoff_ts"); v != "" {
		cutoff, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return map[string]string{"error": "invalid cutoff_ts"}, http.StatusBadRequest
		}
	}

	out := make([]sectionJSON, 0, len(all))
	for _, sec := range all {
		if cutoff >= 0 && sec.StartTimestampMs < cutoff {
			continue
		}
		out = append(out, sectionJSON{ID: sec.ID, StartTimestampMs: sec.StartTimestampMs})
	}
	return out, http.StatusOK
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, ok := s.shows[name]
	if !ok {
		http.Error(w, "show not found", http.StatusNotFound)
		return
	}
	conn, err := s.openReadOnly(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer conn.DB.Close()

	q := r.URL.Query()
	startID, _ := strconv.ParseInt(q.Get("start_id"), 10, 64)
	endID, err := strconv.ParseInt(q.Get("end_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid end_id", http.StatusBadRequest)
		return
	}
	limit := int64(100)
	if v := q.Get("limit"); v != "" {
		limit, _ = strconv.ParseInt(v, 10, 64)
	}

	segments, err := store.SelectSegmentRangeWithLimit(conn, startID, endID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if cutoffStr := q.Get("cutoff_ts"); cutoffStr != "" {
		cutoff, err := strconv.ParseInt(cutoffStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid cutoff_ts", http.StatusBadRequest)
			return
		}
		filtered := segments[:0]
		for _, seg := range segments {
			if seg.TimestampMs >= cutoff {
				filtered = append(filtered, seg)
			}
		}
		segments = filtered
	}

	wireSegments := make([]wire.Segment, len(segments))
	for i, seg := range segments {
		isBoundary := int32(0)
		if seg.IsTimestampFromSource {
			isBoundary = 1
		}
		wireSegments[i] = wire.Segment{
			ID:                    seg.ID,
			TimestampMs:           seg.TimestampMs,
			IsTimestampFromSource: isBoundary,
			SectionID:             seg.SectionID,
			DurationSamples:       seg.DurationSamples,
			AudioData:             seg.AudioData,
		}
	}

	w.Header().Set("Content-Type", wire.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(wire.Encode(wireSegments))
}

type findByTimestampResponse struct {
	SourceUniqueID       string `json:"source_unique_id"`
	MinID                int64  `json:"min_id"`
	MaxID                int64  `json:"max_id"`
	AfterSection         *int64 `json:"after_section,omitempty"`
	BeforeOrEqualSection *int64 `json:"before_or_equal_section,omitempty"`
}

func (s *Server) handleFindByTimestamp(w http.ResponseWriter, r *http.Request) (any, int) {
	conn, status, errResp := s.openShow(r)
	if conn == nil {
		return errResp, status
	}
	defer conn.DB.Close()

	tsStr := r.URL.Query().Get("timestamp_ms")
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return map[string]string{"error": "invalid timestamp_ms"}, http.StatusBadRequest
	}

	all, err := store.SelectAllSections(conn)
	if err != nil {
		return map[string]string{"error": err.Error()}, http.StatusInternalServerError
	}

	var after, beforeOrEqual *int64
	for _, sec := range all {
		id := sec.ID
		if sec.StartTimestampMs > ts && after == nil {
			after = &id
		}
		if sec.StartTimestampMs <= ts {
			beforeOrEqual = &id
		}
	}

	uniqueID, _, _ := store.GetMetadata(conn, "unique_id")
	minID, maxID, _ := segmentIDRange(conn)
	return findByTimestampResponse{
		SourceUniqueID:       uniqueID,
		MinID:                minID,
		MaxID:                maxID,
		AfterSection:         after,
		BeforeOrEqualSection: beforeOrEqual,
	}, http.StatusOK
}

type segmentRangeResponse struct {
	MinID int64 `json:"min_id"`
	MaxID int64 `json:"max_id"`
}

func (s *Server) handleSegmentRange(w http.ResponseWriter, r *http.Request) (any, int) {
	conn, status, errResp := s.openShow(r)
	if conn == nil {
		return errResp, status
	}
	defer conn.DB.Close()

	sid, err := strconv.ParseInt(r.PathValue("sid"), 10, 64)
	if err != nil {
		return map[string]string{"error": "invalid section id"}, http.StatusBadRequest
	}

	minID, maxID, found, err := store.SelectMinMaxForSection(conn, sid)
	if err != nil {
		return map[string]string{"error": err.Error()}, http.StatusInternalServerError
	}
	if !found {
		return map[string]string{"error": "section has no segments"}, http.StatusNotFound
	}
	return segmentRangeResponse{MinID: minID, MaxID: maxID}, http.StatusOK
}

// openShow resolves the {name} path value through the pre-initialized
// map and opens it read-only, returning a JSON error body + status if
// the name is unknown. Never opens a path not present in s.shows.
func (s *Server) openShow(r *http.Request) (*store.Conn, int, map[string]string) {
	name := r.PathValue("name")
	path, ok := s.shows[name]
	if !ok {
		return nil, http.StatusNotFound, map[string]string{"error": "show not found"}
	}
	conn, err := s.openReadOnly(path)
	if err != nil {
		return nil, http.StatusInternalServerError, map[string]string{"error": err.Error()}
	}
	return conn, http.StatusOK, nil
}

func (s *Server) openReadOnly(path string) (*store.Conn, error) {
	return store.OpenSQLite(path, store.OpenReadOnly)
}

func segmentIDRange(conn *store.Conn) (minID, maxID int64, ok bool) {
	maxID, found, err := store.SelectMaxSegmentID(conn)
	if err != nil || !found {
		return 0, 0, false
	}
	// The store package does not expose a dedicated "min id" query since
	// the recorder side never deletes individual segments (only whole
	// sections via retention); the lowest surviving id is exactly the
	// smallest id still present, found via the same range query with a
	// wide-open bound.
	segs, err := store.SelectSegmentRangeWithLimit(conn, 0, maxID, 1)
	if err != nil || len(segs) == 0 {
		return 0, 0, false
	}
	return segs[0].ID, maxID, true
}

func brotliJSON(handler func(w http.ResponseWriter, r *http.Request) (any, int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, status := handler(w, r)
		data, err := json.Marshal(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.Header.Get("Accept-Encoding"), "br") {
			w.Header().Set("Content-Encoding", "br")
			w.WriteHeader(status)
			bw := brotli.NewWriter(w)
			bw.Write(data)
			bw.Close()
			return
		}
		w.WriteHeader(status)
		w.Write(data)
	}
}

// Serve runs the replication server until ctx is canceled.
func Serve(ctx context.Context, addr string, srv *Server) error {
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
