package recorder

import (
	"fmt"

	"github.com/relaywave/segcast/internal/store"
)

// Params are the recording parameters persisted into a show's metadata
// table and checked for consistency on every reopen, per spec.md §4.4
// ("Preconditions on DB open").
type Params struct {
	Name          string
	AudioFormat   string
	Bitrate       int64
	SplitInterval int64
}

// MismatchError reports that an existing database's recorded parameters
// differ from the current config, which spec.md §4.4 treats as fatal
// rather than auto-correctable.
type MismatchError struct {
	Field    string
	Expected string
	Got      string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("recorder: config mismatch on %s: expected %q, have %q", e.Field, e.Expected, e.Got)
}

// RecipientError reports that a database is marked is_recipient=true and
// must never be recorded into directly.
type RecipientError struct {
	Name string
}

func (e *RecipientError) Error() string {
	return fmt.Sprintf("recorder: database for %q is a replication recipient and cannot be recorded into", e.Name)
}

// EnsurePreconditions validates and/or stamps the recording parameters
// for a just-opened show database. On a fresh database (no "name" key
// yet) it writes every parameter. On an existing database it requires
// each parameter to match exactly.
func EnsurePreconditions(conn *store.Conn, p Params) error {
	isRecipient, ok, err := store.GetMetadata(conn, "is_recipient")
	if err != nil {
		return fmt.Errorf("recorder: read is_recipient: %w", err)
	}
	if ok && isRecipient == "true" {
		return &RecipientError{Name: p.Name}
	}

	existingName, ok, err := store.GetMetadata(conn, "name")
	if err != nil {
		return fmt.Errorf("recorder: read name: %w", err)
	}
	if !ok {
		return stampParams(conn, p)
	}

	if existingName != p.Name {
		return &MismatchError{Field: "name", Expected: p.Name, Got: existingName}
	}
	if err := checkMatch(conn, "audio_format", p.AudioFormat); err != nil {
		return err
	}
	if err := checkMatch(conn, "split_interval", fmt.Sprintf("%d", p.SplitInterval)); err != nil {
		return err
	}
	if err := checkMatch(conn, "bitrate", fmt.Sprintf("%d", p.Bitrate)); err != nil {
		return err
	}
	return nil
}

func checkMatch(conn *store.Conn, key, want string) error {
	got, ok, err := store.GetMetadata(conn, key)
	if err != nil {
		return fmt.Errorf("recorder: read %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("recorder: missing metadata key %q on existing database", key)
	}
	if got != want {
		return &MismatchError{Field: key, Expected: want, Got: got}
	}
	return nil
}

func stampParams(conn *store.Conn, p Params) error {
	fields := map[string]string{
		"name":           p.Name,
		"audio_format":   p.AudioFormat,
		"split_interval": fmt.Sprintf("%d", p.SplitInterval),
		"bitrate":        fmt.Sprintf("%d", p.Bitrate),
	}
	for k, v := range fields {
		if err := store.SetMetadata(conn, k, v); err != nil {
			return fmt.Errorf("recorder: stamp %s: %w", k, err)
		}
	}
	return nil
}

// EnsureAACEncoderParams validates and/or stamps the AAC encoder's
// delay and frame size, required per spec.md §4.4 ("For AAC, capture and
// validate aac_encoder_delay/aac_frame_size from the encoder").
func EnsureAACEncoderParams(conn *store.Conn, delay, frameSize int64) error {
	existingDelay, ok, err := store.GetMetadata(conn, "aac_encoder_delay")
	if err != nil {
		return fmt.Errorf("recorder: read aac_encoder_delay: %w", err)
	}
	if !ok {
		if err := store.SetMetadata(conn, "aac_encoder_delay", fmt.Sprintf("%d", delay)); err != nil {
			return err
		}
		return store.SetMetadata(conn, "aac_frame_size", fmt.Sprintf("%d", frameSize))
	}
	if existingDelay != fmt.Sprintf("%d", delay) {
		return &MismatchError{Field: "aac_encoder_delay", Expected: fmt.Sprintf("%d", delay), Got: existingDelay}
	}
	return checkMatch(conn, "aac_frame_size", fmt.Sprintf("%d", frameSize))
}
