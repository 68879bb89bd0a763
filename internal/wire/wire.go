// Package wire implements the fixed-layout binary transport format used to
// move batches of segments between the replication server (C6) and the
// replication client (C7). See SPEC_FULL.md C2.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Magic is "SEGS" read as a big-endian u32; written little-endian like
// every other header field, its wire bytes are 53 47 45 53.
const Magic uint32 = 0x53454753

// Version is the only wire version this package understands.
const Version uint32 = 1

// HeaderSize is the fixed batch header length in bytes.
const HeaderSize = 16

// SegmentHeaderSize is the fixed per-segment header length, before audio_data.
const SegmentHeaderSize = 40

// ContentType is the HTTP Content-Type for this wire format.
const ContentType = "application/x-segment-stream"

// Segment is one audio chunk as carried over the wire.
type Segment struct {
	ID                    int64
	TimestampMs           int64
	IsTimestampFromSource int32
	SectionID             int64
	DurationSamples       int64
	AudioData             []byte
}

// DecodeErrorKind is a closed set of wire decode failure modes.
type DecodeErrorKind int

const (
	InvalidMagic DecodeErrorKind = iota
	UnsupportedVersion
	TruncatedHeader
	TruncatedSegment
	InvalidAudioDataLen
	ChecksumMismatch
)

// DecodeError reports why decoding a batch failed.
type DecodeError struct {
	Kind         DecodeErrorKind
	Expected     uint64
	Got          uint64
	SegmentIndex int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case InvalidMagic:
		return fmt.Sprintf("wire: invalid magic: expected 0x%08X, got 0x%08X", e.Expected, e.Got)
	case UnsupportedVersion:
		return fmt.Sprintf("wire: unsupported version: expected %d, got %d", e.Expected, e.Got)
	case TruncatedHeader:
		return fmt.Sprintf("wire: truncated header: expected %d bytes, got %d", e.Expected, e.Got)
	case TruncatedSegment:
		return fmt.Sprintf("wire: truncated segment %d: expected %d bytes, got %d", e.SegmentIndex, e.Expected, e.Got)
	case InvalidAudioDataLen:
		return fmt.Sprintf("wire: segment %d claims %d bytes of audio data, only %d available", e.SegmentIndex, e.Expected, e.Got)
	case ChecksumMismatch:
		return fmt.Sprintf("wire: checksum mismatch: expected 0x%08X, computed 0x%08X", e.Expected, e.Got)
	default:
		return "wire: decode error"
	}
}

// Encode serializes segments into the wire batch format.
func Encode(segments []Segment) []byte {
	size := HeaderSize
	for _, s := range segments {
		size += SegmentHeaderSize + len(s.AudioData)
	}

	buf := make([]byte, HeaderSize, size)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(segments)))
	binary.LittleEndian.PutUint32(buf[12:16], 0) // CRC placeholder

	for _, s := range segments {
		var hdr [SegmentHeaderSize]byte
		binary.LittleEndian.PutUint64(hdr[0:8], uint64(s.ID))
		binary.LittleEndian.PutUint64(hdr[8:16], uint64(s.TimestampMs))
		binary.LittleEndian.PutUint32(hdr[16:20], uint32(s.IsTimestampFromSource))
		binary.LittleEndian.PutUint64(hdr[20:28], uint64(s.SectionID))
		binary.LittleEndian.PutUint64(hdr[28:36], uint64(s.DurationSamples))
		binary.LittleEndian.PutUint32(hdr[36:40], uint32(len(s.AudioData)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, s.AudioData...)
	}

	crc := crc32.ChecksumIEEE(buf[HeaderSize:])
	binary.LittleEndian.PutUint32(buf[12:16], crc)
	return buf
}

// Decode parses a wire batch, validating magic, version, and CRC before
// returning any segment. Truncation or invalid embedded lengths always
// produce a typed *DecodeError rather than a silently short batch.
func Decode(data []byte) ([]Segment, error) {
	if len(data) < HeaderSize {
		return nil, &DecodeError{Kind: TruncatedHeader, Expected: HeaderSize, Got: uint64(len(data))}
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return nil, &DecodeError{Kind: InvalidMagic, Expected: uint64(Magic), Got: uint64(magic)}
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	if version != Version {
		return nil, &DecodeError{Kind: UnsupportedVersion, Expected: uint64(Version), Got: uint64(version)}
	}

	count := binary.LittleEndian.Uint32(data[8:12])
	expectedCRC := binary.LittleEndian.Uint32(data[12:16])

	computedCRC := crc32.ChecksumIEEE(data[HeaderSize:])
	if computedCRC != expectedCRC {
		return nil, &DecodeError{Kind: ChecksumMismatch, Expected: uint64(expectedCRC), Got: uint64(computedCRC)}
	}

	segments := make([]Segment, 0, count)
	pos := HeaderSize
	for i := 0; i < int(count); i++ {
		if pos+SegmentHeaderSize > len(data) {
			return nil, &DecodeError{Kind: TruncatedSegment, SegmentIndex: i, Expected: SegmentHeaderSize, Got: uint64(len(data) - pos)}
		}

		hdr := data[pos : pos+SegmentHeaderSize]
		id := int64(binary.LittleEndian.Uint64(hdr[0:8]))
		ts := int64(binary.LittleEndian.Uint64(hdr[8:16]))
		isBoundary := int32(binary.LittleEndian.Uint32(hdr[16:20]))
		sectionID := int64(binary.LittleEndian.Uint64(hdr[20:28]))
		duration := int64(binary.LittleEndian.Uint64(hdr[28:36]))
		audioLen := binary.LittleEndian.Uint32(hdr[36:40])

		pos += SegmentHeaderSize

		if pos+int(audioLen) > len(data) {
			return nil, &DecodeError{Kind: InvalidAudioDataLen, SegmentIndex: i, Expected: uint64(audioLen), Got: uint64(len(data) - pos)}
		}

		audio := make([]byte, audioLen)
		copy(audio, data[pos:pos+int(audioLen)])
		pos += int(audioLen)

		segments = append(segments, Segment{
			ID:                    id,
			TimestampMs:           ts,
			IsTimestampFromSource: isBoundary,
			SectionID:             sectionID,
			DurationSamples:       duration,
			AudioData:             audio,
		})
	}

	return segments, nil
}
