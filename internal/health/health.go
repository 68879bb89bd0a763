// Package health implements startup pre-flight checks: reachability of a
// session's configured stream URL before the recorder commits to its
// schedule loop, and a liveness probe the record/inspect subcommands
// expose over HTTP.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CheckStreamReachable issues a GET against streamURL and discards the
// body, returning an error if the connection or status fails. Used at
// startup so a misconfigured session URL fails fast with a clear message
// instead of looping silently through the schedule-wait/backoff cycle.
func CheckStreamReachable(ctx context.Context, streamURL string) error {
	if streamURL == "" {
		return fmt.Errorf("no stream url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("stream unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Handler returns a minimal liveness endpoint: 200 OK once the process
// has started serving, regardless of individual session connection
// state (a session's own retry loop already handles transient upstream
// failures without needing the whole process restarted).
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
