package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadRecordConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
config_type = "record"

[[sessions]]
name = "kexp"
url = "http://example.com/stream"
[sessions.schedule]
record_start = "00:00"
record_end = "23:59"
`)

	cfg, err := LoadRecordConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != defaultAPIPort {
		t.Errorf("APIPort = %d, want %d", cfg.APIPort, defaultAPIPort)
	}
	if cfg.Sessions[0].AudioFormat != "opus" {
		t.Errorf("AudioFormat = %q, want opus", cfg.Sessions[0].AudioFormat)
	}
	if cfg.Sessions[0].Bitrate != 128 {
		t.Errorf("Bitrate = %d, want 128", cfg.Sessions[0].Bitrate)
	}
	if cfg.Sessions[0].RetentionHours != 168 {
		t.Errorf("RetentionHours = %d, want 168", cfg.Sessions[0].RetentionHours)
	}
}

func TestLoadRecordConfigRejectsWrongType(t *testing.T) {
	path := writeTemp(t, `config_type = "receiver"`)
	if _, err := LoadRecordConfig(path); err == nil {
		t.Fatal("expected error for wrong config_type")
	}
}

func TestLoadRecordConfigRejectsEmptySessions(t *testing.T) {
	path := writeTemp(t, `config_type = "record"`)
	if _, err := LoadRecordConfig(path); err == nil {
		t.Fatal("expected error for empty sessions")
	}
}

func TestLoadRecordConfigRejectsInvalidAudioFormat(t *testing.T) {
	path := writeTemp(t, `
config_type = "record"
[[sessions]]
name = "kexp"
url = "http://example.com/stream"
audio_format = "flac"
[sessions.schedule]
record_start = "00:00"
record_end = "23:59"
`)
	if _, err := LoadRecordConfig(path); err == nil {
		t.Fatal("expected error for invalid audio_format")
	}
}

func TestLoadRecordConfigRequiresSFTPBlockWhenEnabled(t *testing.T) {
	path := writeTemp(t, `
config_type = "record"
export_to_sftp = true
[[sessions]]
name = "kexp"
url = "http://example.com/stream"
[sessions.schedule]
record_start = "00:00"
record_end = "23:59"
`)
	if _, err := LoadRecordConfig(path); err == nil {
		t.Fatal("expected error for missing sftp block")
	}
}

func TestLoadReceiverConfigAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
config_type = "receiver"
remote_url = "http://source.example.com"
[database]
url = "postgres://localhost/segcast"
`)
	cfg, err := LoadReceiverConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != defaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, defaultChunkSize)
	}
	if cfg.LeaseName != "sync" {
		t.Errorf("LeaseName = %q, want sync", cfg.LeaseName)
	}
}

func TestLoadReceiverConfigRejectsMissingRemoteURL(t *testing.T) {
	path := writeTemp(t, `
config_type = "receiver"
[database]
url = "postgres://localhost/segcast"
`)
	if _, err := LoadReceiverConfig(path); err == nil {
		t.Fatal("expected error for missing remote_url")
	}
}
