// Package watcher reacts to filesystem changes: fsnotify events are
// debounced into batches, and each batch triggers an incremental
// reindex. The catalog diff stays the source of truth; events only
// decide when to re-diff.
package watcher

import "time"

// Operation is a filesystem operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns a human-readable operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed filesystem change.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}
