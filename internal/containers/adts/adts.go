// Package adts splits a continuous ADTS (Audio Data Transport Stream)
// byte stream, as produced by ffmpeg's "-f adts" AAC-LC output, into
// discrete frames so the recorder can store each frame as one segment's
// audio_data, per spec.md §4.4 step 6 ("AAC-LC: 16 kHz, 1024-sample
// frames → one ADTS frame appended as-is").
package adts

import "fmt"

// headerSize is the ADTS fixed + variable header length ffmpeg emits
// without CRC protection (protection_absent = 1, the default).
const headerSize = 7

// FrameLength returns the total length in bytes (header + payload) of
// the ADTS frame starting at the beginning of data, derived from the
// 13-bit frame_length field spanning header bytes 3-5. Returns an error
// if data is too short to contain a full header or doesn't start with
// the ADTS sync word (0xFFF, 12 bits, with MPEG version/layer bits
// immediately following).
func FrameLength(data []byte) (int, error) {
	if len(data) < headerSize {
		return 0, fmt.Errorf("adts: need at least %d header bytes, got %d", headerSize, len(data))
	}
	if data[0] != 0xFF || data[1]&0xF0 != 0xF0 {
		return 0, fmt.Errorf("adts: invalid sync word at offset 0")
	}
	length := (int(data[3]&0x03) << 11) | (int(data[4]) << 3) | (int(data[5]) >> 5)
	if length < headerSize {
		return 0, fmt.Errorf("adts: invalid frame_length %d (smaller than header)", length)
	}
	return length, nil
}

// Split extracts every complete ADTS frame present in data, returning
// the frames (each a fresh byte slice including its header) and any
// trailing incomplete bytes that should be prepended to the next call's
// input once more data arrives.
func Split(data []byte) (frames [][]byte, remainder []byte, err error) {
	pos := 0
	for pos < len(data) {
		remaining := data[pos:]
		if len(remaining) < headerSize {
			return frames, remaining, nil
		}
		length, ferr := FrameLength(remaining)
		if ferr != nil {
			return nil, nil, fmt.Errorf("adts: split at offset %d: %w", pos, ferr)
		}
		if length > len(remaining) {
			return frames, remaining, nil
		}
		frame := make([]byte, length)
		copy(frame, remaining[:length])
		frames = append(frames, frame)
		pos += length
	}
	return frames, nil, nil
}

// Reader incrementally splits ADTS frames from a byte stream fed in
// arbitrary-sized chunks, buffering any trailing partial frame between
// calls.
type Reader struct {
	buf []byte
}

// NewReader returns an empty Reader.
func NewReader() *Reader { return &Reader{} }

// Feed appends chunk to the internal buffer and returns every complete
// frame now available.
func (r *Reader) Feed(chunk []byte) ([][]byte, error) {
	r.buf = append(r.buf, chunk...)
	frames, remainder, err := Split(r.buf)
	if err != nil {
		return nil, err
	}
	r.buf = remainder
	return frames, nil
}

// Pending returns any buffered bytes that never formed a complete frame.
func (r *Reader) Pending() []byte {
	return r.buf
}
