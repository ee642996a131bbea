// Package scheduler implements the cooperative, debounced background
// processor described in spec.md §4.6: it owns the debounce map, the
// active-editing set, and the abort token, and every Indexer run (its own
// single-source reindexes and the Engine's batch runs) goes through its
// RunBatch. "Single-threaded cooperative" is realized as one dedicated
// goroutine draining a work channel (the teacher's BackgroundIndexer.run
// shape) coordinated with golang.org/x/sync/errgroup, since Go has no
// literal cooperative-coroutine primitive; all index-mutating operations
// are still serialized through that one goroutine.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andkenn/notevault/internal/config"
	"github.com/andkenn/notevault/internal/corpus"
	"github.com/andkenn/notevault/internal/index"
	"github.com/andkenn/notevault/internal/logging"
	"github.com/andkenn/notevault/internal/store"
)

// ErrBatchBusy is returned by RunBatch when a batch reindex is already in
// progress; callers that must not silently drop the request (such as the
// single-source worker) use it to requeue instead.
var ErrBatchBusy = errors.New("batch reindex already running")

// freshInstallSourceFraction is the threshold from §4.6's boot-time
// heuristic: indexed sources numbering fewer than 10% of current markdown
// sources counts as fresh.
const freshInstallSourceFraction = 0.10

type reindexRequest struct {
	id   string
	path string
}

// Scheduler coordinates the Watcher's events against the Indexer,
// honoring the active-editing skip rule and debouncing bursts of modify
// events into a single reindex.
type Scheduler struct {
	cfg     config.Scheduler
	indexer *index.Indexer
	store   *store.Store
	host    corpus.Host
	log     *logging.Sink

	mu             sync.Mutex
	indexing       bool
	debounceTimers map[string]*time.Timer
	activeEditing  map[string]bool
	lastActivePath string

	batchCancel context.CancelFunc

	singleMu      sync.Mutex
	singleRunning bool

	requests chan reindexRequest
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Scheduler. Call Start to begin draining events.
func New(cfg config.Scheduler, ix *index.Indexer, st *store.Store, host corpus.Host, log *logging.Sink) *Scheduler {
	if log == nil {
		log = logging.Noop()
	}
	return &Scheduler{
		cfg:            cfg,
		indexer:        ix,
		store:          st,
		host:           host,
		log:            log,
		debounceTimers: make(map[string]*time.Timer),
		activeEditing:  make(map[string]bool),
		requests:       make(chan reindexRequest, 64),
		stopCh:         make(chan struct{}),
	}
}

// Start launches the single-source reindex worker and the periodic
// sweep, both coordinated by an errgroup against ctx.
func (s *Scheduler) Start(ctx context.Context) *errgroup.Group {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runWorker(ctx) })
	g.Go(func() error { return s.runSweep(ctx) })
	return g
}

// Stop signals both background goroutines to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// BootMode reports whether the engine should full-rebuild or
// smart-update on startup, per §4.6's fresh-install heuristic: empty
// store, or distinct indexed source count under 10% of current markdown
// sources.
func (s *Scheduler) BootMode(ctx context.Context) (full bool, err error) {
	stats := s.store.Stats()
	if stats.ChunkCount == 0 {
		return true, nil
	}

	sources, err := s.host.ListSources(ctx)
	if err != nil {
		return false, err
	}
	if len(sources) == 0 {
		return false, nil
	}

	markdownSources := 0
	for _, src := range sources {
		switch strings.ToLower(src.Extension()) {
		case ".md", ".markdown":
			markdownSources++
		}
	}
	if markdownSources == 0 {
		return false, nil
	}

	indexedSources := len(s.store.SourcePaths())
	fraction := float64(indexedSources) / float64(markdownSources)
	return fraction < freshInstallSourceFraction, nil
}

// HandleModify implements §4.6's modify-event rule: an actively-edited
// source is added to activeEditing and not processed; otherwise its
// debounce timer is reset to DebounceMillis.
func (s *Scheduler) HandleModify(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path == s.lastActivePath {
		s.activeEditing[path] = true
		return
	}
	s.resetDebounceLocked(path)
}

func (s *Scheduler) resetDebounceLocked(path string) {
	if t, ok := s.debounceTimers[path]; ok {
		t.Stop()
	}
	s.debounceTimers[path] = time.AfterFunc(s.cfg.DebounceDuration(), func() {
		s.onDebounceFired(path)
	})
}

func (s *Scheduler) onDebounceFired(path string) {
	s.mu.Lock()
	delete(s.debounceTimers, path)
	stillActive := path == s.lastActivePath
	if stillActive {
		s.activeEditing[path] = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.enqueue(path)
}

// HandleRename drops the old path's chunks and submits a reindex of the
// new path. Renames are never debounced against active-editing.
func (s *Scheduler) HandleRename(oldPath, newPath string) {
	s.store.RemoveSource(oldPath)
	s.mu.Lock()
	delete(s.activeEditing, oldPath)
	if s.lastActivePath == oldPath {
		s.lastActivePath = newPath
	}
	s.mu.Unlock()
	s.enqueue(newPath)
}

// HandleDelete drops the path's chunks immediately and removes it from
// all tracking sets.
func (s *Scheduler) HandleDelete(path string) {
	s.store.RemoveSource(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeEditing, path)
	if t, ok := s.debounceTimers[path]; ok {
		t.Stop()
		delete(s.debounceTimers, path)
	}
	if s.lastActivePath == path {
		s.lastActivePath = ""
	}
}

// HandleActiveDocumentChange records the new foreground document and, if
// the previous one was pending reindex, schedules it after a short delay
// so the editor finishes committing its buffer.
func (s *Scheduler) HandleActiveDocumentChange(newPath string) {
	s.mu.Lock()
	previous := s.lastActivePath
	s.lastActivePath = newPath
	needsReindex := previous != "" && s.activeEditing[previous]
	if needsReindex {
		delete(s.activeEditing, previous)
	}
	s.mu.Unlock()

	if needsReindex {
		time.AfterFunc(s.cfg.ActiveReindexDuration(), func() {
			s.enqueue(previous)
		})
	}
}

// runSweep drains activeEditing entries whose source is no longer the
// active document, every SweepIntervalSeconds.
func (s *Scheduler) runSweep(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Scheduler) sweepOnce() {
	s.mu.Lock()
	var stale []string
	for path := range s.activeEditing {
		if path != s.lastActivePath {
			stale = append(stale, path)
			delete(s.activeEditing, path)
		}
	}
	s.mu.Unlock()

	for _, path := range stale {
		s.enqueue(path)
	}
}

func (s *Scheduler) enqueue(path string) {
	select {
	case s.requests <- reindexRequest{id: uuid.NewString(), path: path}:
	case <-s.stopCh:
	}
}

// runWorker serializes single-source reindex requests: only one runs at
// a time; additional requests arriving while one is in progress, or while
// a batch is indexing, are re-queued after RequeueDelayMillis.
func (s *Scheduler) runWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case req := <-s.requests:
			s.processSingle(ctx, req)
		}
	}
}

func (s *Scheduler) processSingle(ctx context.Context, req reindexRequest) {
	s.singleMu.Lock()
	if s.singleRunning {
		s.singleMu.Unlock()
		time.AfterFunc(s.cfg.RequeueDelay(), func() { s.enqueue(req.path) })
		return
	}
	s.singleRunning = true
	s.singleMu.Unlock()

	defer func() {
		s.singleMu.Lock()
		s.singleRunning = false
		s.singleMu.Unlock()
	}()

	// RunBatch holds the same indexing flag a full SmartUpdate/FullRebuild
	// batch holds, so a single-source reindex can never run concurrently
	// with a batch reindex against the same Store; if one is in progress
	// this is requeued rather than silently dropped.
	err := s.RunBatch(ctx, func(batchCtx context.Context) error {
		return s.indexer.ReindexSource(batchCtx, req.path)
	})
	if errors.Is(err, ErrBatchBusy) {
		time.AfterFunc(s.cfg.RequeueDelay(), func() { s.enqueue(req.path) })
		return
	}
	if err != nil {
		s.log.Warn("single-source reindex failed", "request", req.id, "path", req.path, "error", err.Error())
	}
}

// IsIndexing reports whether RunBatch is currently running anything (a
// batch reindex or a single-source reindex), so the Watcher can filter
// events to avoid feedback from the Indexer's own writes.
func (s *Scheduler) IsIndexing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexing
}

// RunBatch runs fn (SmartUpdate, FullRebuild, or a single-source
// ReindexSource) under the indexing mutex flag, holding an abort token
// that CancelIndexing trips.
func (s *Scheduler) RunBatch(parent context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.indexing {
		s.mu.Unlock()
		return ErrBatchBusy
	}
	ctx, cancel := context.WithCancel(parent)
	s.indexing = true
	s.batchCancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.indexing = false
		s.batchCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	return fn(ctx)
}

// CancelIndexing trips the abort token of any batch currently running.
func (s *Scheduler) CancelIndexing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batchCancel != nil {
		s.batchCancel()
	}
}

