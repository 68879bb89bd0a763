// Package opus wraps github.com/hraban/opus to encode mono 48 kHz PCM
// into fixed 960-sample Opus frames, one packet per frame, each prefixed
// with its own length as spec.md §4.2's audio_data layout requires for
// the opus audio_format ("(u16 LE length, bytes)" concatenation) — not an
// Ogg container, since the store persists raw segments rather than a
// self-describing stream.
package opus

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"
)

// FrameSamples is the fixed Opus frame size the recorder always uses:
// 960 samples at 48 kHz (20ms), matching spec.md §4.4 step 6.
const FrameSamples = 960

// SampleRate is the Opus encoder's required input rate.
const SampleRate = 48000

// maxPacketBytes bounds a single encoded Opus packet; comfortably above
// anything a 960-sample mono frame at reasonable bitrates produces.
const maxPacketBytes = 4000

// Encoder wraps an hraban/opus encoder configured for mono audio at
// SampleRate, producing one packet per FrameSamples input.
type Encoder struct {
	enc *opus.Encoder
}

// NewEncoder returns an Encoder targeting bitrateBps.
func NewEncoder(bitrateBps int) (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, 1, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("opus: new encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrateBps); err != nil {
		return nil, fmt.Errorf("opus: set bitrate: %w", err)
	}
	return &Encoder{enc: enc}, nil
}

// EncodeFrame encodes exactly FrameSamples of mono PCM into a single
// length-prefixed packet: a 2-byte little-endian length followed by the
// encoded bytes, matching spec.md §4.2's on-disk Opus layout.
func (e *Encoder) EncodeFrame(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, fmt.Errorf("opus: EncodeFrame requires exactly %d samples, got %d", FrameSamples, len(pcm))
	}
	buf := make([]byte, maxPacketBytes)
	n, err := e.enc.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}

	out := make([]byte, 2+n)
	binary.LittleEndian.PutUint16(out, uint16(n))
	copy(out[2:], buf[:n])
	return out, nil
}

// PadToFrame zero-pads pcm up to FrameSamples, for the final partial
// frame at end of stream (spec.md §4.4 step 9).
func PadToFrame(pcm []int16) []int16 {
	if len(pcm) >= FrameSamples {
		return pcm[:FrameSamples]
	}
	padded := make([]int16, FrameSamples)
	copy(padded, pcm)
	return padded
}
