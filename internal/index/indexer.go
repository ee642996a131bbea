// Package index implements the Indexer: the per-source pipeline (read ->
// checksum -> chunk -> embed -> upsert) in both its smart-update and
// full-rebuild modes. Grounded on the teacher's per-file coordinator
// pipeline and its "continue past a failed source" posture, and on the
// teacher's status tracker for the ProgressSink shape.
package index

import (
	"context"
	"hash/crc32"
	"path/filepath"
	"strings"
	"time"

	"github.com/andkenn/notevault/internal/corpus"
	"github.com/andkenn/notevault/internal/embed"
	"github.com/andkenn/notevault/internal/errs"
	"github.com/andkenn/notevault/internal/chunk"
	"github.com/andkenn/notevault/internal/logging"
	"github.com/andkenn/notevault/internal/store"
	"github.com/andkenn/notevault/internal/vision"
)

var markdownExtensions = map[string]bool{".md": true, ".markdown": true}
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// checkpointEvery sets how often a batch flushes the store to disk, per
// §4.5's "checkpoint save after every ~10 sources and at end".
const checkpointEvery = 10

// yieldEvery controls how often a batch cooperatively yields to the rest
// of the cooperative task loop, per §5's "every 3 sources" guidance.
const yieldEvery = 3

// Indexer is the per-source pipeline. It is the sole writer of the
// VectorStore.
type Indexer struct {
	store    *store.Store
	embedder embed.Embedder
	vision   *vision.Extractor
	host     corpus.Host
	log      *logging.Sink
	batch    int
}

// New builds an Indexer. batchSize bounds how many chunk texts are sent
// to the embedder in one EmbedMany call.
func New(st *store.Store, embedder embed.Embedder, visionExtractor *vision.Extractor, host corpus.Host, batchSize int, log *logging.Sink) *Indexer {
	if log == nil {
		log = logging.Noop()
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Indexer{store: st, embedder: embedder, vision: visionExtractor, host: host, log: log, batch: batchSize}
}

// EnsureConnection retries the embedding capability probe up to 10 times
// with a 2-second spacing before any work that requires the embedding
// service, aborting with a clear error otherwise.
func (ix *Indexer) EnsureConnection(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if ctx.Err() != nil {
			return errs.New(errs.Cancelled, "ensure_connection aborted", ctx.Err())
		}
		ok, _, err := ix.embedder.Test(ctx)
		if ok && err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return errs.New(errs.Cancelled, "ensure_connection aborted", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	return errs.New(errs.EmbeddingTransient, "embedding endpoint unreachable after 10 attempts", lastErr)
}

// FullRebuild clears the store, then behaves like SmartUpdate for every
// source.
func (ix *Indexer) FullRebuild(ctx context.Context, progress ProgressSink) error {
	ix.store.RemoveSourcesNotIn(map[string]bool{})
	return ix.SmartUpdate(ctx, progress)
}

// SmartUpdate reconciles the store with the corpus: drops sources no
// longer present, re-chunks and re-embeds sources whose checksum
// changed, and processes image sources gated on the vision capability
// probe.
func (ix *Indexer) SmartUpdate(ctx context.Context, progress ProgressSink) error {
	if progress == nil {
		progress = NoopProgress{}
	}

	if err := ix.EnsureConnection(ctx); err != nil {
		return err
	}

	sources, err := ix.host.ListSources(ctx)
	if err != nil {
		return errs.New(errs.SourceRead, "list corpus sources", err)
	}

	progress.Report(0, len(sources), "scanning sources")

	present := make(map[string]bool, len(sources))
	var markdownSources, imageSources []corpus.SourceHandle
	for _, s := range sources {
		present[s.Path()] = true
		ext := strings.ToLower(s.Extension())
		switch {
		case markdownExtensions[ext]:
			markdownSources = append(markdownSources, s)
		case imageExtensions[ext]:
			imageSources = append(imageSources, s)
		}
	}
	ix.store.RemoveSourcesNotIn(present)

	totalChunks := 0
	processed := 0

	checkpoint := func(sourcesDone int) {
		if sourcesDone%checkpointEvery == 0 {
			if err := ix.store.Save(); err != nil {
				ix.log.Warn("checkpoint save failed", "error", err.Error())
			}
		}
	}

	for i, src := range markdownSources {
		if ctx.Err() != nil {
			return errs.New(errs.Cancelled, "smart_update aborted", ctx.Err())
		}
		if err := ix.processMarkdownSource(ctx, src, progress, &totalChunks, &processed); err != nil {
			ix.log.Warn("skipping source", "path", src.Path(), "error", err.Error())
		}
		if (i+1)%yieldEvery == 0 {
			runtimeYield()
		}
		checkpoint(i + 1)
	}

	if ix.vision != nil && len(imageSources) > 0 {
		cap, probeErr := ix.vision.Probe(ctx)
		if probeErr != nil {
			ix.log.Warn("vision probe failed, skipping images", "error", probeErr.Error())
		} else if cap != vision.Supported {
			ix.log.Info("vision unsupported, skipping image sources")
		} else {
			for i, src := range imageSources {
				if ctx.Err() != nil {
					return errs.New(errs.Cancelled, "smart_update aborted", ctx.Err())
				}
				if err := ix.processImageSource(ctx, src, progress, &totalChunks, &processed); err != nil {
					ix.log.Warn("skipping image source", "path", src.Path(), "error", err.Error())
				}
				if (i+1)%yieldEvery == 0 {
					runtimeYield()
				}
				checkpoint(len(markdownSources) + i + 1)
			}
		}
	}

	if err := ix.store.Save(); err != nil {
		return err
	}
	progress.Completed()
	return nil
}

// ReindexSource re-chunks and re-embeds a single source path if its
// checksum has changed. It lists the corpus only to find the handle for
// path (removing the source if it is gone); no other source is read,
// checksummed, or re-embedded. This is what the scheduler calls for a
// single-path modify/rename reindex, where SmartUpdate's full corpus pass
// would be wasteful and would also race a concurrent batch reindex.
func (ix *Indexer) ReindexSource(ctx context.Context, path string) error {
	sources, err := ix.host.ListSources(ctx)
	if err != nil {
		return errs.New(errs.SourceRead, "list corpus sources", err)
	}

	var src corpus.SourceHandle
	for _, s := range sources {
		if s.Path() == path {
			src = s
			break
		}
	}
	if src == nil {
		ix.store.RemoveSource(path)
		return ix.store.Save()
	}

	ext := strings.ToLower(src.Extension())
	totalChunks, processed := 0, 0

	switch {
	case markdownExtensions[ext]:
		if err := ix.processMarkdownSource(ctx, src, NoopProgress{}, &totalChunks, &processed); err != nil {
			return err
		}
	case imageExtensions[ext]:
		if ix.vision == nil {
			return nil
		}
		capability, probeErr := ix.vision.Probe(ctx)
		if probeErr != nil || capability != vision.Supported {
			return nil
		}
		if err := ix.processImageSource(ctx, src, NoopProgress{}, &totalChunks, &processed); err != nil {
			return err
		}
	default:
		return nil
	}

	return ix.store.Save()
}

func (ix *Indexer) processMarkdownSource(ctx context.Context, src corpus.SourceHandle, progress ProgressSink, totalChunks, processed *int) error {
	data, err := src.ReadBytes()
	if err != nil {
		return errs.New(errs.SourceRead, "read source", err).WithDetail("path", src.Path())
	}

	checksum := checksumHex(data)
	if !ix.store.SourceNeedsUpdate(src.Path(), checksum) {
		return nil
	}

	title := deriveTitle(src.Path(), data)
	chunks := chunk.Split(string(data))
	return ix.embedAndUpsert(ctx, src, chunks, checksum, title, store.KindMarkdown, false, progress, totalChunks, processed)
}

func (ix *Indexer) processImageSource(ctx context.Context, src corpus.SourceHandle, progress ProgressSink, totalChunks, processed *int) error {
	data, err := src.ReadBytes()
	if err != nil {
		return errs.New(errs.SourceRead, "read source", err).WithDetail("path", src.Path())
	}

	ok, text, err := ix.vision.Extract(ctx, data, strings.TrimPrefix(src.Extension(), "."))
	if err != nil {
		return err
	}
	if !ok || text == "" {
		return nil
	}

	// §4.5 design choice: the checksum is of the extracted text, not the
	// image bytes, so a visually different image with identical
	// transcription is treated as unchanged. Kept as the spec directs.
	checksum := checksumHex([]byte(text))
	if !ix.store.SourceNeedsUpdate(src.Path(), checksum) {
		return nil
	}

	title := "Image: " + filepath.Base(src.Path())
	chunks := chunk.Split(text)
	return ix.embedAndUpsert(ctx, src, chunks, checksum, title, store.KindImage, true, progress, totalChunks, processed)
}

func (ix *Indexer) embedAndUpsert(
	ctx context.Context,
	src corpus.SourceHandle,
	chunks []chunk.Chunk,
	checksum, title string,
	kind store.SourceKind,
	extracted bool,
	progress ProgressSink,
	totalChunks, processed *int,
) error {
	if len(chunks) == 0 {
		ix.store.RemoveSource(src.Path())
		return nil
	}

	*totalChunks += len(chunks)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var vectors [][]float32
	for start := 0; start < len(texts); start += ix.batch {
		if ctx.Err() != nil {
			return errs.New(errs.Cancelled, "embedding batch aborted", ctx.Err())
		}
		end := start + ix.batch
		if end > len(texts) {
			end = len(texts)
		}
		batchVecs, err := ix.embedder.EmbedMany(ctx, texts[start:end])
		if err != nil {
			return err
		}
		vectors = append(vectors, batchVecs...)
		*processed += len(batchVecs)
		progress.Report(*processed, *totalChunks, "embedding chunks")
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:             src.Path() + "#c" + itoa(c.ParagraphIndex),
			Vector:         vectors[i],
			SourcePath:     src.Path(),
			SourceName:     filepath.Base(src.Path()),
			Title:          title,
			ParagraphIndex: c.ParagraphIndex,
			ParagraphText:  c.Text,
			SourceChecksum: checksum,
			LastModified:   src.ModifiedMillis(),
			SourceSize:     src.Size(),
			SourceKind:     kind,
			ExtractedText:  extracted,
		}
	}

	return ix.store.UpsertSource(src.Path(), records)
}

func checksumHex(data []byte) string {
	sum := crc32.ChecksumIEEE(data)
	return toHex(sum)
}
