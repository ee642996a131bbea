package index

// ProgressSink is the capability passed into the Indexer in place of the
// teacher's ad-hoc progress closures, per spec.md §9's re-architecture
// guidance.
type ProgressSink interface {
	Report(current, total int, message string)
	Completed()
}

// NoopProgress discards every report; used when a caller has no UI to
// update.
type NoopProgress struct{}

func (NoopProgress) Report(current, total int, message string) {}
func (NoopProgress) Completed()                                {}
