// Package credentials loads the TOML credentials file at
// $HOME/.config/segcast/credentials.toml, holding SFTP and Postgres
// passwords by profile name. Grounded directly on
// original_source/src/credentials.rs: same two-section shape
// ([sftp.PROFILE], [postgres.PROFILE]), same "missing file" / "missing
// profile" typed error split.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Profile holds a single credential profile's password.
type Profile struct {
	Password string `toml:"password"`
}

// Credentials is the parsed shape of credentials.toml.
type Credentials struct {
	SFTP     map[string]Profile `toml:"sftp"`
	Postgres map[string]Profile `toml:"postgres"`
}

// Kind selects which top-level section a profile lookup targets.
type Kind int

const (
	KindSFTP Kind = iota
	KindPostgres
)

func (k Kind) sectionName() string {
	if k == KindPostgres {
		return "postgres"
	}
	return "sftp"
}

// Path returns the default credentials file path under the user's HOME.
func Path() (string, error) {
	home, ok := os.LookupEnv("HOME")
	if !ok || home == "" {
		return "", fmt.Errorf("credentials: HOME environment variable not set")
	}
	return filepath.Join(home, ".config", "segcast", "credentials.toml"), nil
}

// MissingFileError is returned when the credentials file does not exist.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("credentials: file not found at %s", e.Path)
}

// MissingProfileError is returned when a requested profile is absent
// from an otherwise successfully loaded credentials file.
type MissingProfileError struct {
	Section string
	Profile string
}

func (e *MissingProfileError) Error() string {
	return fmt.Sprintf("credentials: profile [%s.%s] not found in credentials file", e.Section, e.Profile)
}

// Load reads and parses the credentials file at the default path.
// Returns a *MissingFileError (wrapped) if the file does not exist.
func Load() (*Credentials, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads and parses the credentials file at path.
func LoadFrom(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w", &MissingFileError{Path: path})
		}
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	var creds Credentials
	if err := toml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}
	return &creds, nil
}

// Password returns the password for the given profile and credential
// kind, or a *MissingProfileError if absent.
func (c *Credentials) Password(kind Kind, profile string) (string, error) {
	section := c.SFTP
	if kind == KindPostgres {
		section = c.Postgres
	}
	p, ok := section[profile]
	if !ok {
		return "", fmt.Errorf("%w", &MissingProfileError{Section: kind.sectionName(), Profile: profile})
	}
	return p.Password, nil
}
