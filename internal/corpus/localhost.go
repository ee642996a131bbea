package corpus

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// localHandle is the concrete SourceHandle backed by a real file.
type localHandle struct {
	path  string
	info  os.FileInfo
}

func (h *localHandle) Path() string          { return h.path }
func (h *localHandle) Extension() string     { return filepath.Ext(h.path) }
func (h *localHandle) ModifiedMillis() int64 { return h.info.ModTime().UnixMilli() }
func (h *localHandle) Size() int64           { return h.info.Size() }
func (h *localHandle) ReadBytes() ([]byte, error) {
	return os.ReadFile(h.path)
}

// LocalHost is a Host backed by a real directory tree, watched with
// fsnotify. It has no notion of an active document on its own; call
// SetActiveDocument to drive that from whatever editor surface embeds
// this module.
type LocalHost struct {
	root string

	mu         sync.RWMutex
	activePath string

	watcher *fsnotify.Watcher
}

// NewLocalHost builds a LocalHost rooted at dir.
func NewLocalHost(dir string) (*LocalHost, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &LocalHost{root: dir, watcher: w}, nil
}

// ListSources walks root and returns a handle for every regular file.
func (h *LocalHost) ListSources(ctx context.Context) ([]SourceHandle, error) {
	var out []SourceHandle
	err := filepath.WalkDir(h.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, &localHandle{path: path, info: info})
		return nil
	})
	return out, err
}

// ReadBytes reads path directly.
func (h *LocalHost) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// SetActiveDocument records the host's current foreground document. It
// emits no event; ActiveDocument reports the recorded path.
func (h *LocalHost) SetActiveDocument(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.activePath = path
}

// ActiveDocument returns a handle for the current foreground document.
func (h *LocalHost) ActiveDocument(ctx context.Context) (SourceHandle, error) {
	h.mu.RLock()
	path := h.activePath
	h.mu.RUnlock()
	if path == "" {
		return nil, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil
	}
	return &localHandle{path: path, info: info}, nil
}

// Subscribe translates fsnotify's raw filesystem events into corpus
// Events: Write and Create become Modify, Remove and Rename become Delete.
// No Rename event is produced; a moved file arrives as a Delete of the old
// path and a Modify of the new one.
func (h *LocalHost) Subscribe(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = h.watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-h.watcher.Events:
				if !ok {
					return
				}
				if evt, ok := h.translate(ev); ok {
					select {
					case out <- evt:
					case <-ctx.Done():
						return
					}
				}
			case _, ok := <-h.watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *LocalHost) translate(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		return Event{Kind: Modify, Path: ev.Name}, true
	case ev.Has(fsnotify.Remove):
		return Event{Kind: Delete, Path: ev.Name}, true
	case ev.Has(fsnotify.Rename):
		// fsnotify reports the source side of a rename as a bare Rename
		// event with no destination; surface it as a Delete and let a
		// subsequent Create re-index the new path.
		return Event{Kind: Delete, Path: ev.Name}, true
	default:
		return Event{}, false
	}
}

var _ Host = (*LocalHost)(nil)
