// Package ffmpeg wraps the ffmpeg binary as the decode and AAC-LC encode
// subprocesses in the recorder's pipeline, the same exec.CommandContext +
// stdio-pipe pattern arung-agamani-denpa-radio's internal/ffmpeg/encoder.go
// uses, adapted to pipe live stdin rather than a named input file.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
)

// PCMSampleRate and PCMChannels define the canonical decode target: 48kHz
// stereo signed 16-bit little-endian PCM, matching spec.md §4.4 step 4.
const (
	PCMSampleRate = 48000
	PCMChannels   = 2
)

// Decoder runs ffmpeg to decode an arbitrary input bitstream (read from
// in) to raw S16LE PCM at PCMSampleRate/PCMChannels, written to out as it
// becomes available.
type Decoder struct{}

// NewDecoder returns a Decoder. It takes no configuration: the output
// format is always the canonical PCM target every recorder session
// decodes to before resampling/encoding.
func NewDecoder() *Decoder { return &Decoder{} }

// Run starts ffmpeg, streams in to its stdin and its stdout to out, and
// blocks until the subprocess exits or ctx is canceled. codecHint names
// the input format explicitly ("mp3" or "aac") since the stream has no
// file extension to infer it from.
func (d *Decoder) Run(ctx context.Context, codecHint string, in io.Reader, out io.Writer) error {
	args := []string{
		"-f", codecHint,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", itoa(PCMSampleRate),
		"-ac", itoa(PCMChannels),
		"-vn",
		"pipe:1",
	}
	return run(ctx, "ffmpeg-decode", args, in, out)
}

// AACEncoder runs a long-running ffmpeg subprocess that encodes raw
// S16LE PCM into an ADTS AAC-LC byte stream.
type AACEncoder struct {
	sampleRate  int
	channels    int
	bitrateKbps int
}

// NewAACEncoder returns an AACEncoder targeting the given PCM shape and
// output bitrate.
func NewAACEncoder(sampleRate, channels, bitrateKbps int) *AACEncoder {
	return &AACEncoder{sampleRate: sampleRate, channels: channels, bitrateKbps: bitrateKbps}
}

// Run starts ffmpeg, streams in (raw PCM) to its stdin and its stdout
// (a continuous ADTS byte stream, to be split by internal/containers/adts)
// to out, and blocks until the subprocess exits or ctx is canceled.
// Grounded on original_source/src/config.rs's doc comment flagging its
// fdk-aac binding as experimental and noting ffmpeg as its likely
// eventual replacement.
func (e *AACEncoder) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	args := []string{
		"-f", "s16le",
		"-ar", itoa(e.sampleRate),
		"-ac", itoa(e.channels),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", itoa(e.bitrateKbps) + "k",
		"-f", "adts",
		"pipe:1",
	}
	return run(ctx, "ffmpeg-aac-encode", args, in, out)
}

func run(ctx context.Context, label string, args []string, in io.Reader, out io.Writer) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = in

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: stdout pipe: %w", label, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%s: stderr pipe: %w", label, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: start: %w", label, err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := stderr.Read(buf)
			if n > 0 {
				slog.Debug(label, "output", string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	_, copyErr := io.Copy(out, stdout)
	waitErr := cmd.Wait()

	if copyErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%s: stream copy: %w", label, copyErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		return fmt.Errorf("%s: process: %w", label, waitErr)
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
