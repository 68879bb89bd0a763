package source

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// downloadChunkSize matches original_source's record.rs 8 KiB read buffer.
const downloadChunkSize = 8192

// CodecHint identifies the upstream audio bitstream format, derived from
// the response Content-Type.
type CodecHint string

const (
	CodecMP3 CodecHint = "mp3"
	CodecAAC CodecHint = "aac"
)

// ConnectInfo is what a successful connection attempt yields before the
// downloader goroutine is started: the decoded codec hint and the
// upstream's reported start time, both read from response headers.
type ConnectInfo struct {
	Codec       CodecHint
	ContentType string
	StartedAt   time.Time
}

// ResolveCodec maps a Content-Type header value to a CodecHint, returning
// an error for anything else. Mirrors record.rs's content_type match arm.
func ResolveCodec(contentType string) (CodecHint, error) {
	switch contentType {
	case "audio/mpeg", "audio/mp3":
		return CodecMP3, nil
	case "audio/aac", "audio/aacp", "audio/x-aac":
		return CodecAAC, nil
	default:
		return "", fmt.Errorf(
			"source: unsupported Content-Type %q (supported: audio/mpeg, audio/mp3, audio/aac, audio/aacp, audio/x-aac)",
			contentType,
		)
	}
}

// Connect validates a successful HTTP response's headers and returns the
// derived ConnectInfo. Mirrors record.rs's header-extraction block:
// Content-Type and Date are both required, and Date is parsed as an
// RFC 7231 HTTP-date (always GMT/UTC).
func Connect(resp *http.Response) (ConnectInfo, error) {
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return ConnectInfo{}, fmt.Errorf("source: missing Content-Type header")
	}
	codec, err := ResolveCodec(contentType)
	if err != nil {
		return ConnectInfo{}, err
	}

	dateHeader := resp.Header.Get("Date")
	if dateHeader == "" {
		return ConnectInfo{}, fmt.Errorf("source: missing Date header")
	}
	startedAt, err := http.ParseTime(dateHeader)
	if err != nil {
		return ConnectInfo{}, fmt.Errorf("source: failed to parse Date header %q: %w", dateHeader, err)
	}

	return ConnectInfo{Codec: codec, ContentType: contentType, StartedAt: startedAt.UTC()}, nil
}

// Download reads body in downloadChunkSize chunks, feeding each to src
// until EOF, an error, or stop reports true. Runs in its own goroutine;
// the caller is responsible for starting it and for eventually setting
// stop once the recorder session is winding down.
func Download(body io.Reader, src *Source, stop *atomic.Bool, showName string) {
	buf := make([]byte, downloadChunkSize)
	slog.Info("downloading audio data", "show", showName)
	for !stop.Load() {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			src.Feed(chunk)
		}
		if err == io.EOF {
			slog.Info("stream ended", "show", showName)
			break
		}
		if err != nil {
			slog.Warn("read error", "show", showName, "error", err)
			break
		}
		if n == 0 {
			break
		}
	}
	src.Close()
}
