package opus

import "testing"

func TestPadToFrameShortInput(t *testing.T) {
	in := make([]int16, 100)
	for i := range in {
		in[i] = int16(i + 1)
	}
	out := PadToFrame(in)
	if len(out) != FrameSamples {
		t.Fatalf("got %d samples, want %d", len(out), FrameSamples)
	}
	for i := 0; i < 100; i++ {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], in[i])
		}
	}
	for i := 100; i < FrameSamples; i++ {
		if out[i] != 0 {
			t.Errorf("out[%d] = %d, want 0 padding", i, out[i])
		}
	}
}

func TestPadToFrameExactLength(t *testing.T) {
	in := make([]int16, FrameSamples)
	out := PadToFrame(in)
	if len(out) != FrameSamples {
		t.Fatalf("got %d samples, want %d", len(out), FrameSamples)
	}
}

func TestPadToFrameTruncatesOverlong(t *testing.T) {
	in := make([]int16, FrameSamples+50)
	out := PadToFrame(in)
	if len(out) != FrameSamples {
		t.Fatalf("got %d samples, want %d", len(out), FrameSamples)
	}
}
