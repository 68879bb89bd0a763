package sftpexport

import "testing"

func TestExtensionForKnownFormats(t *testing.T) {
	cases := map[string]string{
		"opus": "opus",
		"aac":  "aac",
		"wav":  "wav",
		"":     "wav",
	}
	for format, want := range cases {
		if got := extensionFor(format); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", format, got, want)
		}
	}
}

func TestSplitPathComponents(t *testing.T) {
	cases := []struct {
		path string
		want []string
	}{
		{"/exports/drivetime/1.opus", []string{"exports", "drivetime", "1.opus"}},
		{"exports/drivetime", []string{"exports", "drivetime"}},
		{"/", nil},
		{".", nil},
	}
	for _, tc := range cases {
		got := splitPath(tc.path)
		if len(got) != len(tc.want) {
			t.Fatalf("splitPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitPath(%q)[%d] = %q, want %q", tc.path, i, got[i], tc.want[i])
			}
		}
	}
}

func TestSizeMismatchError(t *testing.T) {
	err := &SizeMismatch{RemotePath: "/exports/drivetime/1.opus", Expected: 100, Actual: 50}
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error message")
	}
}
