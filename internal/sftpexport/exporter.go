// Package sftpexport implements the SFTP section exporter (C9): atomic
// upload of a completed section's concatenated audio to a remote path,
// idempotent re-upload, per-(show,section) mutual exclusion. Per
// spec.md §4.9.
package sftpexport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/processlock"
	"github.com/relaywave/segcast/internal/showmutex"
	"github.com/relaywave/segcast/internal/store"
)

// Config names the remote SFTP target. Password is resolved ahead of
// time by the caller via internal/credentials.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	RemoteDir string
}

// SizeMismatch reports that the remote file's size after upload didn't
// match the local source size, per spec.md §4.9. The temp file is
// unlinked before this is returned.
type SizeMismatch struct {
	RemotePath string
	Expected   int64
	Actual     int64
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("sftpexport: %s: size mismatch: expected %d bytes, got %d", e.RemotePath, e.Expected, e.Actual)
}

// Exporter uploads completed sections to one configured SFTP target. One
// Exporter is shared by every show's export calls in a process; showMu
// and a local per-(show,section) lock file keep concurrent exports from
// touching the same section at once. Retention sweeps take neither lock.
type Exporter struct {
	cfg     Config
	showMu  *showmutex.Map
	lockDir string
}

// New returns an Exporter uploading to cfg, using showMu as the
// process-wide show-level exclusion map and lockDir for per-(show,
// section) lock files (typically alongside the recorder's own .lock
// files in OutputDir).
func New(cfg Config, showMu *showmutex.Map, lockDir string) *Exporter {
	return &Exporter{cfg: cfg, showMu: showMu, lockDir: lockDir}
}

func extensionFor(audioFormat string) string {
	switch audioFormat {
	case "opus":
		return "opus"
	case "aac":
		return "aac"
	default:
		return "wav"
	}
}

// ExportSection concatenates every segment of sectionID (in id order)
// and uploads it as a single remote file named
// "<RemoteDir>/<show>/<sectionID>.<ext>", per spec.md §4.9. Idempotent:
// a repeat call after a successful prior export re-uploads and
// re-stamps, but never errors because the section was already exported.
func (e *Exporter) ExportSection(ctx context.Context, conn *store.Conn, show string, sectionID int64, audioFormat string) error {
	e.showMu.Lock(show)
	defer e.showMu.Unlock(show)

	lockPath := filepath.Join(e.lockDir, fmt.Sprintf("%s-section-%d.lock", show, sectionID))
	lock, err := processlock.Acquire(lockPath)
	if err != nil {
		return fmt.Errorf("sftpexport: %s: section %d: %w", show, sectionID, err)
	}
	defer lock.Release()

	segments, err := store.SelectSegmentsBySectionID(conn, sectionID)
	if err != nil {
		return fmt.Errorf("sftpexport: %s: section %d: read segments: %w", show, sectionID, err)
	}

	var data []byte
	for _, seg := range segments {
		data = append(data, seg.AudioData...)
	}

	remotePath := path.Join(e.cfg.RemoteDir, show, fmt.Sprintf("%d.%s", sectionID, extensionFor(audioFormat)))

	client, err := e.connect()
	if err != nil {
		metrics.ExportUploads.WithLabelValues(show, "error").Inc()
		return fmt.Errorf("sftpexport: %s: section %d: %w", show, sectionID, err)
	}
	defer client.Close()

	if err := uploadAtomic(client, remotePath, data); err != nil {
		var mismatch *SizeMismatch
		if errors.As(err, &mismatch) {
			metrics.ExportUploads.WithLabelValues(show, "size_mismatch").Inc()
		} else {
			metrics.ExportUploads.WithLabelValues(show, "error").Inc()
		}
		return fmt.Errorf("sftpexport: %s: section %d: %w", show, sectionID, err)
	}
	metrics.ExportUploads.WithLabelValues(show, "ok").Inc()

	if err := store.MarkSectionExported(conn, sectionID); err != nil {
		return fmt.Errorf("sftpexport: %s: section %d: %w", show, sectionID, err)
	}
	return nil
}

// SweepUnexported exports every unexported section of show except
// excludeSectionID (the section the recorder is currently writing, if
// any — pass 0 if none), for the periodic export_to_remote_periodically
// mode. Returns the number of sections exported and the first error
// encountered, if any; a failed export leaves the section unexported so
// the next sweep retries it.
func (e *Exporter) SweepUnexported(ctx context.Context, conn *store.Conn, show string, excludeSectionID int64, audioFormat string) (int, error) {
	ids, err := store.SelectUnexportedSectionIDsExcluding(conn, excludeSectionID)
	if err != nil {
		return 0, fmt.Errorf("sftpexport: %s: list unexported sections: %w", show, err)
	}

	exported := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return exported, ctx.Err()
		}
		if err := e.ExportSection(ctx, conn, show, id, audioFormat); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func (e *Exporter) connect() (*sftp.Client, error) {
	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	sshCfg := &ssh.ClientConfig{
		User:            e.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(e.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	sshClient, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("open sftp session on %s: %w", addr, err)
	}
	return client, nil
}

// uploadAtomic writes data to "<remotePath>.tmpupload", verifies its
// size, then renames it over remotePath. Mirrors
// original_source/src/sftp.rs's upload_stream atomic path.
func uploadAtomic(client *sftp.Client, remotePath string, data []byte) error {
	parent := path.Dir(remotePath)
	if parent != "." && parent != "/" {
		if err := mkdirAll(client, parent); err != nil {
			return fmt.Errorf("create remote directory %s: %w", parent, err)
		}
	}

	tempPath := remotePath + ".tmpupload"
	remoteFile, err := client.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create remote temp file %s: %w", tempPath, err)
	}

	if _, err := remoteFile.Write(data); err != nil {
		remoteFile.Close()
		client.Remove(tempPath)
		return fmt.Errorf("write remote temp file %s: %w", tempPath, err)
	}
	if err := remoteFile.Close(); err != nil {
		client.Remove(tempPath)
		return fmt.Errorf("close remote temp file %s: %w", tempPath, err)
	}

	info, err := client.Stat(tempPath)
	if err != nil {
		client.Remove(tempPath)
		return fmt.Errorf("stat remote temp file %s: %w", tempPath, err)
	}
	if info.Size() != int64(len(data)) {
		client.Remove(tempPath)
		return &SizeMismatch{RemotePath: remotePath, Expected: int64(len(data)), Actual: info.Size()}
	}

	if err := client.Rename(tempPath, remotePath); err != nil {
		// sftp.Client.Rename fails if remotePath already exists on
		// servers implementing only SFTPv3 rename semantics; fall back
		// to PosixRename, which always overwrites.
		if err := client.PosixRename(tempPath, remotePath); err != nil {
			client.Remove(tempPath)
			return fmt.Errorf("rename %s to %s: %w", tempPath, remotePath, err)
		}
	}
	return nil
}

// mkdirAll walks path component-wise, creating each directory and
// accepting "already exists" so long as the existing entry is itself a
// directory. Mirrors original_source/src/sftp.rs's mkdir_p.
func mkdirAll(client *sftp.Client, dir string) error {
	clean := path.Clean(dir)
	if clean == "." || clean == "/" {
		return nil
	}

	var current string
	for _, part := range splitPath(clean) {
		current = path.Join(current, part)
		if err := client.Mkdir(current); err != nil {
			info, statErr := client.Stat(current)
			if statErr != nil {
				return fmt.Errorf("%s: %w", current, err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s: exists and is not a directory", current)
			}
		}
	}
	return nil
}

// splitPath splits a cleaned POSIX path into its components. Remote SFTP
// paths are always POSIX-style regardless of the local OS, so this
// doesn't use path/filepath's OS-specific separators.
func splitPath(p string) []string {
	p = path.Clean(p)
	if p == "/" || p == "." {
		return nil
	}
	var parts []string
	start := 0
	if p[0] == '/' {
		start = 1
	}
	for i := start; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}
