package recorder

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// NewSessionLogger returns a logger for one recording session that writes
// to both stderr and a "<name>.log" sibling file in outputDir, per
// spec.md §6 ("Persisted state layout"). The file is opened in append mode
// and is never rotated. The returned closer flushes and
// closes the log file; callers should close it when the session exits.
func NewSessionLogger(name, outputDir string) (*slog.Logger, io.Closer, error) {
	logPath := filepath.Join(outputDir, name+".log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("recorder: open log file %s: %w", logPath, err)
	}
	handler := slog.NewJSONHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("show", name), f, nil
}
