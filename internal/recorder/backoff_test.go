package recorder

import (
	"testing"
	"time"
)

func TestBackoffDelayStaircase(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{29 * time.Second, 500 * time.Millisecond},
		{30 * time.Second, 1 * time.Second},
		{59 * time.Second, 1 * time.Second},
		{60 * time.Second, 2 * time.Second},
		{119 * time.Second, 2 * time.Second},
		{120 * time.Second, 4 * time.Second},
		{179 * time.Second, 4 * time.Second},
		{180 * time.Second, 5 * time.Second},
		{10 * time.Minute, 5 * time.Second},
	}
	for _, c := range cases {
		if got := BackoffDelay(c.elapsed); got != c.want {
			t.Errorf("BackoffDelay(%v) = %v, want %v", c.elapsed, got, c.want)
		}
	}
}

func TestMaxRetryDurationIsFiveMinutes(t *testing.T) {
	if MaxRetryDuration != 5*time.Minute {
		t.Fatalf("MaxRetryDuration = %v, want 5m", MaxRetryDuration)
	}
}
