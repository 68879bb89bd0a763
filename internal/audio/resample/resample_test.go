package resample

import "testing"

func TestToMonoAverages(t *testing.T) {
	stereo := []int16{10, 20, -10, -20, 100, 0}
	mono := ToMono(stereo)
	want := []int16{15, -15, 50}
	if len(mono) != len(want) {
		t.Fatalf("got %d samples, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("mono[%d] = %d, want %d", i, mono[i], want[i])
		}
	}
}

func TestLinearSameRateCopies(t *testing.T) {
	in := []int16{1, 2, 3, 4}
	out, err := Linear(in, 48000, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d samples, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestLinearUpsampleDoublesLength(t *testing.T) {
	in := []int16{0, 100}
	out, err := Linear(in, 24000, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d samples, want 4", len(out))
	}
	if out[0] != 0 {
		t.Errorf("out[0] = %d, want 0", out[0])
	}
}

func TestLinearDownsampleHalvesLength(t *testing.T) {
	in := []int16{0, 10, 20, 30}
	out, err := Linear(in, 48000, 24000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d samples, want 2", len(out))
	}
}

func TestLinearEmptyInput(t *testing.T) {
	out, err := Linear(nil, 44100, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d samples, want 0", len(out))
	}
}

func TestLinearRejectsNonPositiveRates(t *testing.T) {
	if _, err := Linear([]int16{1, 2}, 0, 48000); err == nil {
		t.Fatal("expected error for zero inRate")
	}
	if _, err := Linear([]int16{1, 2}, 44100, -1); err == nil {
		t.Fatal("expected error for negative outRate")
	}
}
