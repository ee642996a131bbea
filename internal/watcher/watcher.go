// Package watcher is a thin adapter over the host's file-system and
// workspace events: it subscribes to {modify, rename, delete,
// active-document-change}, validates the subject's extension for
// modify/rename/delete, and forwards to the Scheduler. Grounded on the
// teacher's watcher.Watcher interface and Operation enum, adapted from a
// git-aware source-code tree walk to a markdown (and optionally image)
// extension filter over a CorpusHost-supplied root.
package watcher

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/andkenn/notevault/internal/corpus"
	"github.com/andkenn/notevault/internal/logging"
)

// Dispatcher is the subset of Scheduler's API the Watcher drives. Kept as
// a narrow interface here to avoid an import cycle between watcher and
// scheduler.
type Dispatcher interface {
	HandleModify(path string)
	HandleRename(oldPath, newPath string)
	HandleDelete(path string)
	HandleActiveDocumentChange(path string)
}

// IndexingFlag reports whether a batch reindex is currently running, so
// the Watcher can filter events to avoid feedback loops from the
// Indexer's own writes.
type IndexingFlag interface {
	IsIndexing() bool
}

// Watcher adapts a corpus.Host's event stream to a Dispatcher.
type Watcher struct {
	host       corpus.Host
	dispatcher Dispatcher
	indexing   IndexingFlag
	log        *logging.Sink
	extensions map[string]bool
}

// New builds a Watcher. extensions is the set of lower-cased, dot-
// prefixed extensions (e.g. ".md", ".png") considered valid sources for
// modify/rename/delete events; active-document-change is always
// forwarded regardless of extension.
func New(host corpus.Host, dispatcher Dispatcher, indexing IndexingFlag, extensions []string, log *logging.Sink) *Watcher {
	if log == nil {
		log = logging.Noop()
	}
	set := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		set[strings.ToLower(e)] = true
	}
	return &Watcher{host: host, dispatcher: dispatcher, indexing: indexing, log: log, extensions: set}
}

// DefaultExtensions is {.md, .markdown} plus the image set §4.4 names.
func DefaultExtensions(includeImages bool) []string {
	exts := []string{".md", ".markdown"}
	if includeImages {
		exts = append(exts, ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".tif", ".tiff")
	}
	return exts
}

func (w *Watcher) isValidSource(path string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(path))]
}

// Run subscribes to the host and forwards validated events to the
// dispatcher until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.host.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev corpus.Event) {
	if w.indexing != nil && w.indexing.IsIndexing() {
		// Filtering while a batch reindex runs prevents the Indexer's
		// own writes (and any editor re-save they trigger) from
		// feeding back into the Scheduler.
		return
	}

	switch ev.Kind {
	case corpus.Modify:
		if !w.isValidSource(ev.Path) {
			return
		}
		w.dispatcher.HandleModify(ev.Path)
	case corpus.Rename:
		if !w.isValidSource(ev.Path) {
			return
		}
		w.dispatcher.HandleRename(ev.OldPath, ev.Path)
	case corpus.Delete:
		if !w.isValidSource(ev.Path) {
			return
		}
		w.dispatcher.HandleDelete(ev.Path)
	case corpus.ActiveDocumentChange:
		w.dispatcher.HandleActiveDocumentChange(ev.Path)
	}
}
