// Package recorder implements the per-session recording pipeline (C4):
// schedule-gated connection loop, decode/downmix/resample/encode, and
// segment persistence, per spec.md §4.4.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/relaywave/segcast/internal/httpclient"
	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/processlock"
	"github.com/relaywave/segcast/internal/retention"
	"github.com/relaywave/segcast/internal/source"
	"github.com/relaywave/segcast/internal/store"
)

// FatalError wraps an error that should end the whole recorder process
// for this session rather than being retried, per spec.md §7.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// Session runs one configured stream's daily record loop forever.
type Session struct {
	cfg       Config
	conn      *store.Conn
	client    *http.Client
	logger    *slog.Logger
	logCloser io.Closer
}

// NewSession opens (or creates) the session's database and returns a
// Session ready to Run. Logs go to both stderr and a "<name>.log" sibling
// file in cfg.OutputDir, per spec.md §6.
func NewSession(cfg Config) (*Session, error) {
	dbPath := filepath.Join(cfg.OutputDir, cfg.Name+".sqlite")
	conn, err := store.OpenSQLite(dbPath, store.OpenReadWrite)
	if err != nil {
		return nil, fmt.Errorf("recorder: open db for %s: %w", cfg.Name, err)
	}

	params := Params{
		Name:          cfg.Name,
		AudioFormat:   cfg.AudioFormat,
		Bitrate:       cfg.Bitrate,
		SplitInterval: cfg.SplitInterval,
	}
	if err := EnsurePreconditions(conn, params); err != nil {
		conn.DB.Close()
		return nil, err
	}

	logger, logCloser, err := NewSessionLogger(cfg.Name, cfg.OutputDir)
	if err != nil {
		conn.DB.Close()
		return nil, err
	}

	return &Session{cfg: cfg, conn: conn, client: httpclient.ForRecording(), logger: logger, logCloser: logCloser}, nil
}

// Close releases the session's database handle and log file.
func (s *Session) Close() error {
	s.logCloser.Close()
	return s.conn.DB.Close()
}

// DB returns the session's underlying database connection, so callers
// (the periodic SFTP export sweep, in particular) can query it
// alongside the session's own record loop.
func (s *Session) DB() *store.Conn {
	return s.conn
}

// Run loops forever: wait for the scheduled window, record for its
// duration, run retention cleanup, repeat. Returns only on a *FatalError
// or context cancellation.
func (s *Session) Run(ctx context.Context) error {
	lockPath := filepath.Join(s.cfg.OutputDir, s.cfg.Name+".lock")
	lock, err := processlock.Acquire(lockPath)
	if err != nil {
		return &FatalError{Err: fmt.Errorf("recorder: %s: %w", s.cfg.Name, err)}
	}
	defer lock.Release()

	for {
		if err := WaitForActiveWindow(ctx, s.cfg.WindowStart, s.cfg.WindowEnd, s.cfg.Name); err != nil {
			return err
		}

		windowSecs := secondsUntilEnd(nowHM(time.Now()), s.cfg.WindowEnd)
		windowCtx, cancel := context.WithTimeout(ctx, time.Duration(windowSecs)*time.Second)
		err := s.runWindow(windowCtx)
		cancel()

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return fatal
		}
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("recording window ended with error", "error", err)
		}

		if _, err := retention.Sweep(s.conn, s.cfg.RetentionHours, 0, time.Now()); err != nil {
			s.logger.Error("retention sweep failed", "error", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// runWindow attempts connections with the staircase backoff until the
// window's context expires or a fatal error occurs; a connection that
// ends is always followed by another attempt. Mirrors spec.md §4.4's
// "Connection loop" and "Per successful connection" sections.
func (s *Session) runWindow(ctx context.Context) error {
	var failureStart time.Time

	for {
		if ctx.Err() != nil {
			return nil
		}

		resp, err := s.connect(ctx)
		if err != nil {
			if failureStart.IsZero() {
				failureStart = time.Now()
			}
			elapsed := time.Since(failureStart)
			if elapsed > MaxRetryDuration {
				return &FatalError{Err: fmt.Errorf("recorder: %s: connect retry budget exceeded: %w", s.cfg.Name, err)}
			}
			s.logger.Warn("connect failed, retrying", "error", err, "elapsed", elapsed)
			select {
			case <-time.After(BackoffDelay(elapsed)):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		failureStart = time.Time{}

		err = s.runConnection(ctx, resp)
		resp.Body.Close()
		if err != nil {
			var fatal *FatalError
			if errors.As(err, &fatal) {
				return fatal
			}
			s.logger.Warn("connection ended, will retry", "error", err)
		}
	}
}

func (s *Session) connect(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ConnectAttempts.WithLabelValues(s.cfg.Name, "error").Inc()
		return nil, fmt.Errorf("http get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		metrics.ConnectAttempts.WithLabelValues(s.cfg.Name, "error").Inc()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	metrics.ConnectAttempts.WithLabelValues(s.cfg.Name, "ok").Inc()
	return resp, nil
}

// runConnection validates headers, opens a new section, and runs the
// decode/encode/segment pipeline until the body ends or ctx is done.
func (s *Session) runConnection(ctx context.Context, resp *http.Response) error {
	info, err := source.Connect(resp)
	if err != nil {
		return fmt.Errorf("recorder: %s: %w", s.cfg.Name, err)
	}

	sectionID := newSectionID(time.Now())
	baseTimestampMs := info.StartedAt.UnixMilli()
	if err := store.InsertSection(s.conn, sectionID, baseTimestampMs); err != nil {
		return &FatalError{Err: fmt.Errorf("recorder: %s: %w", s.cfg.Name, err)}
	}
	s.logger.Info("recording section opened", "section_id", sectionID, "codec", info.Codec)

	src := source.New()
	var stop atomic.Bool
	go source.Download(resp.Body, src, &stop, s.cfg.Name)
	go func() {
		<-ctx.Done()
		stop.Store(true)
	}()

	return runConnectionPipeline(ctx, s.conn, s.cfg, info.Codec, sectionID, baseTimestampMs, src)
}
