// Package errs provides the structured error type used across notevault's
// components, along with a small retry helper for transient failures.
package errs

import "fmt"

// Kind enumerates the error kinds the core can raise. No caller should
// branch on an error's message; branch on its Kind.
type Kind string

const (
	// DimensionMismatch: a vector's length disagrees with the index's
	// established dimension. Fatal to the current upsert; the batch
	// continues with the next source.
	DimensionMismatch Kind = "dimension_mismatch"
	// EmbeddingTransient: network failure, timeout, or 5xx from the
	// embedding endpoint. Retried by the connection-ensure loop at batch
	// start; otherwise surfaced and the batch aborts.
	EmbeddingTransient Kind = "embedding_transient"
	// EmbeddingProtocol: a malformed response from the embedding endpoint.
	// Surfaced to the caller; batch aborts.
	EmbeddingProtocol Kind = "embedding_protocol"
	// SourceRead: an unreadable source. Logged; that source is skipped.
	SourceRead Kind = "source_read"
	// StoreIO: index file write failure. Surfaced; last in-memory state
	// is preserved and retried on the next checkpoint.
	StoreIO Kind = "store_io"
	// VisionUnsupported: capability probe indicates no vision support;
	// the image-processing phase is silently skipped.
	VisionUnsupported Kind = "vision_unsupported"
	// Cancelled: abort token tripped. Returned quietly.
	Cancelled Kind = "cancelled"
)

// Retryable reports whether operations failing with this kind are worth
// retrying without caller intervention.
func (k Kind) Retryable() bool {
	return k == EmbeddingTransient
}

// NoteError is the structured error type for the core. It carries enough
// context for logging and for caller branching without exposing
// implementation identities (net/http status codes, SQL errors, and so on
// are wrapped, never surfaced as the top-level type).
type NoteError struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]string
}

// Error implements the error interface.
func (e *NoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *NoteError) Unwrap() error {
	return e.Cause
}

// Is matches another *NoteError with the same Kind, so errors.Is(err,
// &NoteError{Kind: DimensionMismatch}) works without comparing messages.
func (e *NoteError) Is(target error) bool {
	t, ok := target.(*NoteError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key-value detail and returns the receiver for
// chaining.
func (e *NoteError) WithDetail(key, value string) *NoteError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New builds a NoteError of the given kind.
func New(kind Kind, message string, cause error) *NoteError {
	return &NoteError{Kind: kind, Message: message, Cause: cause}
}

// Retryable reports whether err is a *NoteError whose kind is retryable.
func Retryable(err error) bool {
	var ne *NoteError
	if ok := asNoteError(err, &ne); ok {
		return ne.Kind.Retryable()
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a *NoteError.
func KindOf(err error) Kind {
	var ne *NoteError
	if ok := asNoteError(err, &ne); ok {
		return ne.Kind
	}
	return ""
}

func asNoteError(err error, target **NoteError) bool {
	for err != nil {
		if ne, ok := err.(*NoteError); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
