package store

import "fmt"

// CompatError reports that an opened database's schema version does not
// match what this build of segcast expects. Opening never migrates; the
// operator must run a separate migration tool or accept data loss.
type CompatError struct {
	Path    string
	Wanted  string
	Got     string
}

func (e *CompatError) Error() string {
	return fmt.Sprintf("store: %s: incompatible schema version: wanted %s, got %s", e.Path, e.Wanted, e.Got)
}

// NotFoundError reports that a row a caller expected to exist is absent,
// distinct from a generic SQL error so callers can branch with errors.As
// instead of comparing against sql.ErrNoRows directly.
type NotFoundError struct {
	Kind string // "section" or "segment"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s %d not found", e.Kind, e.ID)
}
