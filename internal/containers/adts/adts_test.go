package adts

import "testing"

// makeFrame builds a minimal synthetic ADTS frame with the given total
// length (header + payload), filling the payload with a repeated byte so
// tests can distinguish frames.
func makeFrame(length int, fill byte) []byte {
	frame := make([]byte, length)
	frame[0] = 0xFF
	frame[1] = 0xF1
	frame[3] = byte((length >> 11) & 0x03)
	frame[4] = byte((length >> 3) & 0xFF)
	frame[5] = byte((length & 0x07) << 5)
	for i := headerSize; i < length; i++ {
		frame[i] = fill
	}
	return frame
}

func TestFrameLengthRoundTrip(t *testing.T) {
	frame := makeFrame(50, 0xAB)
	got, err := FrameLength(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 50 {
		t.Fatalf("FrameLength = %d, want 50", got)
	}
}

func TestFrameLengthRejectsBadSync(t *testing.T) {
	frame := makeFrame(50, 0xAB)
	frame[0] = 0x00
	if _, err := FrameLength(frame); err == nil {
		t.Fatal("expected error for bad sync word")
	}
}

func TestFrameLengthRejectsShortInput(t *testing.T) {
	if _, err := FrameLength([]byte{0xFF, 0xF1}); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestSplitMultipleFrames(t *testing.T) {
	a := makeFrame(40, 0x01)
	b := makeFrame(60, 0x02)
	stream := append(append([]byte{}, a...), b...)

	frames, remainder, err := Split(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remainder) != 0 {
		t.Fatalf("remainder = %d bytes, want 0", len(remainder))
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(frames[0]) != 40 || len(frames[1]) != 60 {
		t.Fatalf("frame lengths = %d, %d; want 40, 60", len(frames[0]), len(frames[1]))
	}
}

func TestSplitLeavesTrailingPartialFrame(t *testing.T) {
	a := makeFrame(40, 0x01)
	b := makeFrame(60, 0x02)
	stream := append(append([]byte{}, a...), b[:30]...)

	frames, remainder, err := Split(stream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(remainder) != 30 {
		t.Fatalf("remainder = %d bytes, want 30", len(remainder))
	}
}

func TestReaderAccumulatesAcrossFeeds(t *testing.T) {
	a := makeFrame(40, 0x01)
	b := makeFrame(60, 0x02)

	r := NewReader()
	frames, err := r.Feed(a[:20])
	if err != nil {
		t.Fatalf("feed 1: %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("expected no complete frames yet, got %d", len(frames))
	}

	frames, err = r.Feed(append(a[20:], b...))
	if err != nil {
		t.Fatalf("feed 2: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(r.Pending()) != 0 {
		t.Fatalf("pending = %d bytes, want 0", len(r.Pending()))
	}
}
