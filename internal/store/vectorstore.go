// Package store implements the VectorStore: an in-memory array of chunk
// records with brute-force cosine search, persisted as a single JSON
// document. It is grounded on the atomic temp-file-then-rename save
// pattern used elsewhere in the pack, generalized from a binary ANN index
// to the plain JSON document this spec calls for.
package store

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/andkenn/notevault/internal/errs"
	"github.com/andkenn/notevault/internal/logging"
)

// schemaVersion is the only version this store accepts on load; older
// (or absent) versions are treated as empty rather than migrated.
const schemaVersion = 2

// SourceKind distinguishes markdown notes from vision-extracted images.
type SourceKind string

const (
	KindMarkdown SourceKind = "markdown"
	KindImage    SourceKind = "image"
)

// Record is the persisted chunk, the only first-class entity in the
// index document.
type Record struct {
	ID             string     `json:"id"`
	Vector         []float32  `json:"vector"`
	SourcePath     string     `json:"source_path"`
	SourceName     string     `json:"source_name"`
	Title          string     `json:"title"`
	ParagraphIndex int        `json:"paragraph_index"`
	ParagraphText  string     `json:"paragraph_text"`
	SourceChecksum string     `json:"source_checksum"`
	LastModified   int64      `json:"last_modified"`
	SourceSize     int64      `json:"source_size"`
	SourceKind     SourceKind `json:"source_kind"`
	ExtractedText  bool       `json:"extracted_text"`
}

// document is the on-disk shape of the index file.
type document struct {
	SchemaVersion int      `json:"schema_version"`
	Dimension     int      `json:"dimension"`
	LastUpdated   int64    `json:"last_updated"`
	Chunks        []Record `json:"chunks"`
}

// Hit pairs a record with its similarity to a query vector.
type Hit struct {
	Record     Record
	Similarity float64
}

// Stats summarizes the store for status reporting.
type Stats struct {
	ChunkCount   int
	SourceCount  int
	LastUpdated  int64
	OnDiskBytes  int64
}

// Store is the VectorStore. It exclusively owns all chunk records and the
// index file; callers never mutate a Record slice returned from it.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
	log  *logging.Sink
}

// New builds an empty Store bound to path; call Load to populate it from
// disk.
func New(path string, log *logging.Sink) *Store {
	if log == nil {
		log = logging.Noop()
	}
	return &Store{
		path: path,
		doc:  document{SchemaVersion: schemaVersion},
		log:  log,
	}
}

// Load is a best-effort read of the index file. A missing file, an
// unreadable file, or a schema_version mismatch all result in an empty
// index rather than an error, per §4.1.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Info("vector store: starting empty", "path", s.path, "reason", err.Error())
		s.doc = document{SchemaVersion: schemaVersion}
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Warn("vector store: corrupt index, starting empty", "path", s.path, "error", err.Error())
		s.doc = document{SchemaVersion: schemaVersion}
		return
	}

	if doc.SchemaVersion != schemaVersion {
		s.log.Warn("vector store: schema mismatch, starting empty",
			"path", s.path, "found", doc.SchemaVersion, "want", schemaVersion)
		s.doc = document{SchemaVersion: schemaVersion}
		return
	}

	s.doc = doc
	s.log.Info("vector store: loaded", "path", s.path, "chunks", len(doc.Chunks))
}

// Save serializes the whole document and writes it via a temp-file-then-
// rename sequence, so a crash mid-write cannot corrupt the previous good
// copy. An advisory file lock (github.com/gofrs/flock) guards the
// sequence against a concurrent save from another goroutine in this
// process; it is not a substitute for the cross-process safety spec.md
// §9 leaves unspecified.
func (s *Store) Save() error {
	s.mu.RLock()
	s.doc.LastUpdated = nowMillis()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errs.New(errs.StoreIO, "marshal index document", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.StoreIO, "create index directory", err)
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return errs.New(errs.StoreIO, "acquire index lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errs.New(errs.StoreIO, "write temp index file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return errs.New(errs.StoreIO, "rename temp index file", err)
	}
	return nil
}

// UpsertSource atomically replaces all records for path with chunks. If
// the store's dimension is unset, it is taken from the first inserted
// vector; a later vector of a different length fails the whole call with
// DimensionMismatch and leaves the store unchanged.
func (s *Store) UpsertSource(path string, chunks []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.doc.Dimension
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Vector)
			continue
		}
		if len(c.Vector) != dim {
			return errs.New(errs.DimensionMismatch, "vector length disagrees with index dimension", nil).
				WithDetail("source_path", path)
		}
	}

	var kept []Record
	for _, r := range s.doc.Chunks {
		if r.SourcePath != path {
			kept = append(kept, r)
		}
	}
	kept = append(kept, chunks...)
	s.doc.Chunks = kept
	s.doc.Dimension = dim
	return nil
}

// RemoveSource deletes every record for path.
func (s *Store) RemoveSource(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSourceLocked(path)
}

func (s *Store) removeSourceLocked(path string) {
	var kept []Record
	for _, r := range s.doc.Chunks {
		if r.SourcePath != path {
			kept = append(kept, r)
		}
	}
	s.doc.Chunks = kept
}

// RemoveSourcesNotIn deletes every record whose source_path is not a
// member of keep.
func (s *Store) RemoveSourcesNotIn(keep map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Record
	for _, r := range s.doc.Chunks {
		if keep[r.SourcePath] {
			kept = append(kept, r)
		}
	}
	s.doc.Chunks = kept
}

// Search returns every record with similarity >= threshold against query,
// sorted by similarity descending and truncated to limit.
func (s *Store) Search(query []float32, limit int, threshold float64) []Hit {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]Hit, 0, len(s.doc.Chunks))
	for _, r := range s.doc.Chunks {
		sim := cosine(query, r.Vector)
		if sim >= threshold {
			hits = append(hits, Hit{Record: r, Similarity: sim})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SearchGrouped runs Search with a headroom of 2*maxSources*maxPerSource,
// buckets hits by source_path keeping at most maxPerSource per bucket,
// and keeps the top maxSources buckets ordered by their best hit.
func (s *Store) SearchGrouped(query []float32, maxSources, maxPerSource int, threshold float64) map[string][]Hit {
	headroom := 2 * maxSources * maxPerSource
	hits := s.Search(query, headroom, threshold)

	order := make([]string, 0)
	buckets := make(map[string][]Hit)
	for _, h := range hits {
		path := h.Record.SourcePath
		if _, seen := buckets[path]; !seen {
			order = append(order, path)
		}
		if len(buckets[path]) >= maxPerSource {
			continue
		}
		buckets[path] = append(buckets[path], h)
	}

	if len(order) > maxSources {
		order = order[:maxSources]
	}
	result := make(map[string][]Hit, len(order))
	for _, path := range order {
		result[path] = buckets[path]
	}
	return result
}

// Stats reports chunk count, distinct source count, last_updated, and
// on-disk size.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]bool)
	for _, r := range s.doc.Chunks {
		sources[r.SourcePath] = true
	}

	var size int64
	if info, err := os.Stat(s.path); err == nil {
		size = info.Size()
	}

	return Stats{
		ChunkCount:  len(s.doc.Chunks),
		SourceCount: len(sources),
		LastUpdated: s.doc.LastUpdated,
		OnDiskBytes: size,
	}
}

// SourceNeedsUpdate reports whether path has no chunks in the store, or
// its stored checksum differs from checksum.
func (s *Store) SourceNeedsUpdate(path, checksum string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	for _, r := range s.doc.Chunks {
		if r.SourcePath != path {
			continue
		}
		found = true
		if r.SourceChecksum != checksum {
			return true
		}
	}
	return !found
}

// Dimension returns the store's locked-in embedding dimension, or 0 if
// nothing has been inserted yet. Removing every chunk does not reset it.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Dimension
}

// SourcePaths returns the distinct set of source paths currently indexed.
func (s *Store) SourcePaths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var paths []string
	for _, r := range s.doc.Chunks {
		if !seen[r.SourcePath] {
			seen[r.SourcePath] = true
			paths = append(paths, r.SourcePath)
		}
	}
	return paths
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
