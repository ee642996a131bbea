// Package notevault wires the core components (VectorStore, Chunker,
// EmbeddingClient, VisionExtractor, Indexer, Scheduler, Watcher,
// QueryEngine) into the single exposed Query API: search, search_grouped,
// stats, rebuild, update, cancel. It is imported by a host application;
// it is not a standalone program.
package notevault

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/andkenn/notevault/internal/config"
	"github.com/andkenn/notevault/internal/corpus"
	"github.com/andkenn/notevault/internal/embed"
	"github.com/andkenn/notevault/internal/index"
	"github.com/andkenn/notevault/internal/logging"
	"github.com/andkenn/notevault/internal/scheduler"
	"github.com/andkenn/notevault/internal/search"
	"github.com/andkenn/notevault/internal/store"
	"github.com/andkenn/notevault/internal/vision"
	"github.com/andkenn/notevault/internal/watcher"
)

// Hit is a single ranked search result.
type Hit = search.Hit

// GroupedHits maps a source path to its hits.
type GroupedHits = search.GroupedHits

// Stats reports index size and recency for host-side status displays.
type Stats = store.Stats

// Engine is the top-level handle a host application constructs and
// holds for the lifetime of the plugin.
type Engine struct {
	cfg       *config.Config
	store     *store.Store
	embedder  embed.Embedder
	vision    *vision.Extractor
	indexer   *index.Indexer
	scheduler *scheduler.Scheduler
	watcher   *watcher.Watcher
	query     *search.Engine
	host      corpus.Host
	log       *logging.Sink
	group     *errgroup.Group
}

// New builds an Engine from cfg and host, loading any existing index
// from disk. It does not start the background Watcher/Scheduler loop;
// call Start for that.
func New(cfg *config.Config, host corpus.Host) *Engine {
	log := logging.New(logging.LevelFromString(cfg.LogLevel), nil)

	st := store.New(cfg.IndexPath, log)
	st.Load()

	embedder := embed.NewCached(embed.New(cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.APIKey, log), 4096)
	visionExtractor := vision.New(cfg.Vision.Endpoint, cfg.Vision.Model, cfg.Vision.APIKey, log)

	ix := index.New(st, embedder, visionExtractor, host, cfg.BatchSize, log)
	sched := scheduler.New(cfg.Scheduler, ix, st, host, log)
	w := watcher.New(host, sched, sched, watcher.DefaultExtensions(cfg.ImageSources), log)

	return &Engine{
		cfg:       cfg,
		store:     st,
		embedder:  embedder,
		vision:    visionExtractor,
		indexer:   ix,
		scheduler: sched,
		watcher:   w,
		query:     search.New(st, embedder),
		host:      host,
		log:       log,
	}
}

// Start launches the background watcher, the scheduler's worker and
// sweep goroutines, and the boot-time reconciliation pass (full_rebuild
// or smart_update, per §4.6's fresh-install heuristic).
func (e *Engine) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	e.group = g

	g.Go(func() error { return e.watcher.Run(ctx) })
	schedGroup := e.scheduler.Start(ctx)
	g.Go(schedGroup.Wait)

	full, err := e.scheduler.BootMode(ctx)
	if err != nil {
		return err
	}
	g.Go(func() error {
		err := e.scheduler.RunBatch(ctx, func(batchCtx context.Context) error {
			if full {
				return e.indexer.FullRebuild(batchCtx, index.NoopProgress{})
			}
			return e.indexer.SmartUpdate(batchCtx, index.NoopProgress{})
		})
		if errors.Is(err, scheduler.ErrBatchBusy) {
			return nil
		}
		return err
	})
	return nil
}

// Stop signals the background goroutines to exit.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Wait blocks until the goroutines launched by Start have all returned.
// Callers typically invoke Stop followed by Wait during shutdown.
func (e *Engine) Wait() error {
	if e.group == nil {
		return nil
	}
	return e.group.Wait()
}

// Search embeds query_text and returns ranked excerpts.
func (e *Engine) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]Hit, error) {
	return e.query.Search(ctx, queryText, limit, threshold)
}

// SearchGrouped embeds query_text and returns excerpts grouped by source.
func (e *Engine) SearchGrouped(ctx context.Context, queryText string, maxSources, maxPerSource int, threshold float64) (GroupedHits, error) {
	return e.query.SearchGrouped(ctx, queryText, maxSources, maxPerSource, threshold)
}

// FormatForContext renders hits as a plain-text context block.
func FormatForContext(hits []Hit) string { return search.FormatForContext(hits) }

// FormatGroupedForContext renders grouped hits as a plain-text context
// block.
func FormatGroupedForContext(grouped GroupedHits) string { return search.FormatGroupedForContext(grouped) }

// Stats reports chunk count, distinct source count, last_updated, and
// on-disk size.
func (e *Engine) Stats() Stats {
	return e.store.Stats()
}

// Rebuild runs a full_rebuild in the background under the scheduler's
// indexing mutex; progress is reported on the supplied sink.
func (e *Engine) Rebuild(ctx context.Context, progress index.ProgressSink) {
	go func() {
		_ = e.scheduler.RunBatch(ctx, func(batchCtx context.Context) error {
			return e.indexer.FullRebuild(batchCtx, progress)
		})
	}()
}

// Update runs a smart_update in the background under the scheduler's
// indexing mutex; progress is reported on the supplied sink.
func (e *Engine) Update(ctx context.Context, progress index.ProgressSink) {
	go func() {
		_ = e.scheduler.RunBatch(ctx, func(batchCtx context.Context) error {
			return e.indexer.SmartUpdate(batchCtx, progress)
		})
	}()
}

// Cancel trips the abort token of any batch currently running.
func (e *Engine) Cancel() {
	e.scheduler.CancelIndexing()
}
