// Package corpus defines the host abstraction the core consumes: the
// file-system/workspace event source and source-handle interface spec.md
// §9 calls for in place of the teacher's duck-typed workspace/vault
// abstractions.
package corpus

import "context"

// EventKind enumerates the host event kinds the Watcher subscribes to.
type EventKind int

const (
	// Modify fires when a source's bytes change.
	Modify EventKind = iota
	// Rename fires when a source moves from OldPath to Path.
	Rename
	// Delete fires when a source is removed from the corpus.
	Delete
	// ActiveDocumentChange fires when the host's foreground document
	// changes; Path is the new active path, or "" if nothing is active.
	ActiveDocumentChange
)

// Event is a single host notification.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string // set only for Rename
}

// SourceHandle is the minimal per-source abstraction spec.md §6 requires:
// path, extension, mtime, size, and a byte reader.
type SourceHandle interface {
	Path() string
	Extension() string
	ModifiedMillis() int64
	Size() int64
	ReadBytes() ([]byte, error)
}

// Host is the interface the core consumes from its embedding application.
// Implementations adapt a real file system, a virtual vault, or (in
// tests) an in-memory corpus.
type Host interface {
	// ListSources returns every source currently in the corpus.
	ListSources(ctx context.Context) ([]SourceHandle, error)
	// ReadBytes returns the current bytes of the source at path.
	ReadBytes(ctx context.Context, path string) ([]byte, error)
	// Subscribe streams host events until ctx is cancelled. The returned
	// channel is closed when the subscription ends.
	Subscribe(ctx context.Context) (<-chan Event, error)
	// ActiveDocument returns the handle of the host's current foreground
	// document, or nil if nothing is active.
	ActiveDocument(ctx context.Context) (SourceHandle, error)
}
