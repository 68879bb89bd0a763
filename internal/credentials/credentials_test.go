package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	_, err := LoadFrom(path)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	var missing *MissingFileError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingFileError, got %v", err)
	}
}

func TestLoadFromParsesBothSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	content := `
[sftp.backup]
password = "sftp-secret"

[postgres.central]
password = "pg-secret"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	creds, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	pw, err := creds.Password(KindSFTP, "backup")
	if err != nil {
		t.Fatalf("sftp password: %v", err)
	}
	if pw != "sftp-secret" {
		t.Errorf("sftp password = %q, want sftp-secret", pw)
	}

	pw, err = creds.Password(KindPostgres, "central")
	if err != nil {
		t.Fatalf("postgres password: %v", err)
	}
	if pw != "pg-secret" {
		t.Errorf("postgres password = %q, want pg-secret", pw)
	}
}

func TestPasswordMissingProfile(t *testing.T) {
	creds := &Credentials{}
	_, err := creds.Password(KindSFTP, "nope")
	var missing *MissingProfileError
	if !errors.As(err, &missing) {
		t.Fatalf("expected *MissingProfileError, got %v", err)
	}
}

func TestPathRequiresHome(t *testing.T) {
	old, hadOld := os.LookupEnv("HOME")
	os.Unsetenv("HOME")
	defer func() {
		if hadOld {
			os.Setenv("HOME", old)
		}
	}()

	if _, err := Path(); err == nil {
		t.Fatal("expected error when HOME is unset")
	}
}
