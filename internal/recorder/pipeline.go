package recorder

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/relaywave/segcast/internal/audio/ffmpeg"
	"github.com/relaywave/segcast/internal/audio/opus"
	"github.com/relaywave/segcast/internal/audio/resample"
	"github.com/relaywave/segcast/internal/containers/adts"
	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/source"
	"github.com/relaywave/segcast/internal/store"
)

// pcmChunkSamples is how many stereo PCM sample-pairs the pipeline reads
// from ffmpeg's decode output at a time before downmixing/resampling.
// Small enough to keep segment timing responsive, large enough to avoid
// a syscall per sample.
const pcmChunkSamples = 4800 // 100ms at 48kHz

// segmentAccumulator tracks one connection's worth of segmentation
// state, implementing spec.md §4.4 steps 6-9.
type segmentAccumulator struct {
	conn           *store.Conn
	sectionID      int64
	baseTimestamp  int64
	outputRate     int
	splitInterval  int64 // seconds; 0 disables splitting
	segmentNumber  int64
	buf            []byte
	segmentSamples int64
	segmentStart   int64
	totalSamples   int64
	show           string
	audioFormat    string
}

func newSegmentAccumulator(conn *store.Conn, sectionID, baseTimestampMs int64, outputRate int, splitInterval int64) *segmentAccumulator {
	return &segmentAccumulator{
		conn:          conn,
		sectionID:     sectionID,
		baseTimestamp: baseTimestampMs,
		outputRate:    outputRate,
		splitInterval: splitInterval,
	}
}

// withMetricsLabels attaches the show/audio_format labels flush() reports
// segment counts under. Optional: tests that don't care about metrics can
// skip calling this and flush() simply reports under empty labels.
func (a *segmentAccumulator) withMetricsLabels(show, audioFormat string) *segmentAccumulator {
	a.show = show
	a.audioFormat = audioFormat
	return a
}

// appendUnit adds one encoded unit (an Opus packet, an ADTS frame, or a
// raw WAV PCM chunk) spanning sampleCount output samples, flushing a
// segment if the split threshold is reached.
func (a *segmentAccumulator) appendUnit(unit []byte, sampleCount int64) error {
	a.buf = append(a.buf, unit...)
	a.segmentSamples += sampleCount
	a.totalSamples += sampleCount

	if a.splitInterval > 0 && a.segmentSamples >= a.splitInterval*int64(a.outputRate) {
		return a.flush()
	}
	return nil
}

func (a *segmentAccumulator) flush() error {
	if len(a.buf) == 0 {
		return nil
	}
	timestampMs := a.baseTimestamp + a.segmentStart*1000/int64(a.outputRate)
	isFromSource := a.segmentNumber == 0
	_, err := store.InsertSegment(a.conn, timestampMs, isFromSource, a.sectionID, a.buf, a.segmentSamples)
	if err != nil {
		return fmt.Errorf("recorder: insert segment: %w", err)
	}
	metrics.SegmentsWritten.WithLabelValues(a.show, a.audioFormat).Inc()
	a.segmentNumber++
	a.segmentStart += a.segmentSamples
	a.segmentSamples = 0
	a.buf = nil
	return nil
}

// runConnectionPipeline decodes body (the upstream bitstream) via
// ffmpeg, downmixes to mono, resamples to the session's target rate,
// encodes per the session's audio_format, and inserts segments as they
// fill, until ctx is canceled or the stream ends. Mirrors spec.md §4.4
// steps 5-9.
func runConnectionPipeline(ctx context.Context, conn *store.Conn, cfg Config, codecHint source.CodecHint, sectionID, baseTimestampMs int64, body io.Reader) error {
	decoded, decodeErr := decodeToPCM(ctx, codecHint, body)

	mono := make(chan []int16, 4)
	go downmixLoop(decoded, mono)

	outputRate := cfg.OutputSampleRate(ffmpeg.PCMSampleRate)
	resampled := make(chan []int16, 4)
	go resampleLoop(mono, ffmpeg.PCMSampleRate, outputRate, resampled)

	acc := newSegmentAccumulator(conn, sectionID, baseTimestampMs, outputRate, cfg.SplitInterval).
		withMetricsLabels(cfg.Name, cfg.AudioFormat)

	var encodeErr error
	switch cfg.AudioFormat {
	case "opus":
		encodeErr = encodeOpusLoop(resampled, acc, int(cfg.Bitrate)*1000)
	case "aac":
		encodeErr = encodeAACLoop(ctx, resampled, outputRate, int(cfg.Bitrate), acc)
	default:
		encodeErr = encodeWAVLoop(resampled, acc)
	}
	if err := acc.flush(); err != nil && encodeErr == nil {
		encodeErr = err
	}

	if encodeErr != nil {
		return fmt.Errorf("recorder: encode pipeline: %w", encodeErr)
	}
	return <-decodeErr
}

func decodeToPCM(ctx context.Context, codecHint source.CodecHint, body io.Reader) (<-chan []int16, <-chan error) {
	out := make(chan []int16, 4)
	errCh := make(chan error, 1)

	pr, pw := io.Pipe()
	dec := ffmpeg.NewDecoder()

	go func() {
		err := dec.Run(ctx, string(codecHint), body, pw)
		pw.CloseWithError(err)
	}()

	go func() {
		defer close(out)
		buf := make([]byte, pcmChunkSamples*ffmpeg.PCMChannels*2)
		for {
			n, err := io.ReadFull(pr, buf)
			if n > 0 {
				out <- bytesToInt16(buf[:n-n%4])
			}
			if err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					errCh <- nil
				} else {
					errCh <- fmt.Errorf("recorder: read decoded pcm: %w", err)
				}
				return
			}
		}
	}()

	return out, errCh
}

func downmixLoop(in <-chan []int16, out chan<- []int16) {
	defer close(out)
	for stereo := range in {
		out <- resample.ToMono(stereo)
	}
}

func resampleLoop(in <-chan []int16, inRate, outRate int, out chan<- []int16) {
	defer close(out)
	for mono := range in {
		resampled, err := resample.Linear(mono, inRate, outRate)
		if err != nil {
			slog.Error("resample failed, dropping chunk", "error", err)
			continue
		}
		out <- resampled
	}
}

func encodeOpusLoop(in <-chan []int16, acc *segmentAccumulator, bitrateBps int) error {
	enc, err := opus.NewEncoder(bitrateBps)
	if err != nil {
		return fmt.Errorf("opus encoder: %w", err)
	}

	var pending []int16
	for chunk := range in {
		pending = append(pending, chunk...)
		for len(pending) >= opus.FrameSamples {
			frame := pending[:opus.FrameSamples]
			pending = pending[opus.FrameSamples:]
			packet, err := enc.EncodeFrame(frame)
			if err != nil {
				return err
			}
			if err := acc.appendUnit(packet, opus.FrameSamples); err != nil {
				return err
			}
		}
	}
	if len(pending) > 0 {
		frame := opus.PadToFrame(pending)
		packet, err := enc.EncodeFrame(frame)
		if err != nil {
			return err
		}
		if err := acc.appendUnit(packet, int64(len(pending))); err != nil {
			return err
		}
	}
	return nil
}

func encodeAACLoop(ctx context.Context, in <-chan []int16, rate, bitrateKbps int, acc *segmentAccumulator) error {
	aacEnc := ffmpeg.NewAACEncoder(rate, 1, bitrateKbps)
	pr, pw := io.Pipe()

	runErr := make(chan error, 1)
	go func() {
		err := aacEnc.Run(ctx, pr, &adtsWriter{acc: acc, reader: adts.NewReader()})
		runErr <- err
	}()

	for chunk := range in {
		if err := binary.Write(pw, binary.LittleEndian, chunk); err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("recorder: write pcm to aac encoder: %w", err)
		}
	}
	pw.Close()
	return <-runErr
}

// adtsWriter adapts the ffmpeg AAC encoder's continuous ADTS byte stream
// into discrete frames appended to the segment accumulator.
type adtsWriter struct {
	acc    *segmentAccumulator
	reader *adts.Reader
}

func (w *adtsWriter) Write(p []byte) (int, error) {
	frames, err := w.reader.Feed(p)
	if err != nil {
		return 0, err
	}
	for _, frame := range frames {
		if err := w.acc.appendUnit(frame, aacFrameSamples); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// aacFrameSamples is the fixed AAC-LC frame size spec.md §4.4 step 6
// specifies.
const aacFrameSamples = 1024

func encodeWAVLoop(in <-chan []int16, acc *segmentAccumulator) error {
	for chunk := range in {
		raw := make([]byte, len(chunk)*2)
		for i, s := range chunk {
			binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
		}
		if err := acc.appendUnit(raw, int64(len(chunk))); err != nil {
			return err
		}
	}
	return nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// newSectionID returns a new section id, a current-time-in-microseconds
// value per spec.md §4.4 step 3.
func newSectionID(now time.Time) int64 {
	return now.UnixMicro()
}
