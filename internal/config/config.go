// Package config loads the TOML configuration files that drive each of
// segcast's subcommands (record, receiver, replace-source), per
// spec.md §6. Struct shape follows original_source/src/config.rs; the
// parsing itself uses github.com/pelletier/go-toml/v2, the struct-tag
// driven library that plays the same role as the original's serde-based
// toml crate (see DESIGN.md — no example repo parses TOML, so this is a
// new domain dependency introduced specifically for this concern).
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Schedule is a recording session's active window, HH:MM UTC.
type Schedule struct {
	RecordStart string `toml:"record_start"`
	RecordEnd   string `toml:"record_end"`
}

// Session describes one upstream stream to record.
type Session struct {
	Name           string   `toml:"name"`
	URL            string   `toml:"url"`
	Schedule       Schedule `toml:"schedule"`
	AudioFormat    string   `toml:"audio_format"`
	Bitrate        int      `toml:"bitrate"`
	SplitInterval  int64    `toml:"split_interval"`
	RetentionHours int64    `toml:"retention_hours"`
}

// SFTPConfig names the remote SFTP target and credential profile to
// export completed sections to.
type SFTPConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	Username          string `toml:"username"`
	CredentialProfile string `toml:"credential_profile"`
	RemoteDir         string `toml:"remote_dir"`
}

// RecordConfig is the top-level document for the `record` subcommand.
type RecordConfig struct {
	ConfigType                 string      `toml:"config_type"`
	OutputDir                  string      `toml:"output_dir"`
	APIPort                    int         `toml:"api_port"`
	Sessions                   []Session   `toml:"sessions"`
	SFTP                       *SFTPConfig `toml:"sftp"`
	ExportToSFTP               bool        `toml:"export_to_sftp"`
	ExportToRemotePeriodically bool        `toml:"export_to_remote_periodically"`
}

// ShowSync names one show a receiver should replicate, with an optional
// show-specific retention override.
type ShowSync struct {
	Name           string `toml:"name"`
	RetentionHours int64  `toml:"retention_hours"`
}

// DatabaseConfig names the receiver's central Postgres store.
type DatabaseConfig struct {
	URL               string `toml:"url"`
	CredentialProfile string `toml:"credential_profile"`
	Prefix            string `toml:"prefix"`
}

// ReceiverConfig is the top-level document for the `receiver` subcommand.
type ReceiverConfig struct {
	ConfigType string         `toml:"config_type"`
	RemoteURL  string         `toml:"remote_url"`
	Database   DatabaseConfig `toml:"database"`
	Shows      []ShowSync     `toml:"shows"`
	ChunkSize  int            `toml:"chunk_size"`
	LeaseName  string         `toml:"lease_name"`
}

const (
	defaultAPIPort   = 3000
	defaultChunkSize = 100
)

// LoadRecordConfig reads and validates a record-mode config file.
func LoadRecordConfig(path string) (*RecordConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg RecordConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.ConfigType != "record" {
		return nil, fmt.Errorf("config: %s: config_type must be \"record\", got %q", path, cfg.ConfigType)
	}
	if len(cfg.Sessions) == 0 {
		return nil, fmt.Errorf("config: %s: sessions must be non-empty", path)
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = defaultAPIPort
	}
	for i, s := range cfg.Sessions {
		if s.Name == "" {
			return nil, fmt.Errorf("config: %s: sessions[%d] missing name", path, i)
		}
		if s.URL == "" {
			return nil, fmt.Errorf("config: %s: session %q missing url", path, s.Name)
		}
		if s.AudioFormat == "" {
			cfg.Sessions[i].AudioFormat = "opus"
		}
		switch cfg.Sessions[i].AudioFormat {
		case "opus", "aac", "wav":
		default:
			return nil, fmt.Errorf("config: %s: session %q has invalid audio_format %q", path, s.Name, s.AudioFormat)
		}
		if s.Bitrate == 0 {
			cfg.Sessions[i].Bitrate = 128
		}
		if s.RetentionHours == 0 {
			cfg.Sessions[i].RetentionHours = 168
		}
	}
	if cfg.ExportToSFTP {
		if err := validateSFTP(path, cfg.SFTP); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func validateSFTP(path string, sftp *SFTPConfig) error {
	if sftp == nil {
		return fmt.Errorf("config: %s: export_to_sftp is set but no [sftp] block is present", path)
	}
	if sftp.Host == "" {
		return fmt.Errorf("config: %s: sftp.host is required", path)
	}
	if sftp.Username == "" {
		return fmt.Errorf("config: %s: sftp.username is required", path)
	}
	if sftp.CredentialProfile == "" {
		return fmt.Errorf("config: %s: sftp.credential_profile is required", path)
	}
	if sftp.RemoteDir == "" {
		return fmt.Errorf("config: %s: sftp.remote_dir is required", path)
	}
	if sftp.Port == 0 {
		sftp.Port = 22
	}
	return nil
}

// LoadReceiverConfig reads and validates a receiver-mode config file.
func LoadReceiverConfig(path string) (*ReceiverConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg ReceiverConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.ConfigType != "receiver" {
		return nil, fmt.Errorf("config: %s: config_type must be \"receiver\", got %q", path, cfg.ConfigType)
	}
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("config: %s: remote_url is required", path)
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("config: %s: database.url is required", path)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.LeaseName == "" {
		cfg.LeaseName = "sync"
	}
	return &cfg, nil
}
