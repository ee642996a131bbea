// Package search implements the QueryEngine: embed the query, delegate
// to the vector layer, and shape results for a downstream chat model.
// Grounded on the teacher's search engine's general shape (embed, search,
// shape) but trimmed to brute-force cosine only — the Non-goals exclude
// BM25 fusion, reranking, multi-query expansion, and query
// classification/decomposition.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/andkenn/notevault/internal/embed"
	"github.com/andkenn/notevault/internal/store"
)

// Hit is a single ranked result, resolved back to its source.
type Hit struct {
	SourcePath     string
	Title          string
	ParagraphIndex int
	MatchedText    string
	Similarity     float64
}

// GroupedHits maps a source path to its hits, sorted by paragraph index
// ascending.
type GroupedHits map[string][]Hit

// Engine is the QueryEngine. It is a read-only client of the VectorStore.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
}

// New builds an Engine over store and embedder.
func New(st *store.Store, embedder embed.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// Search embeds query_text, delegates to VectorStore.Search, and returns
// ranked hits.
func (e *Engine) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]Hit, error) {
	vec, err := e.embedder.EmbedOne(ctx, queryText)
	if err != nil {
		return nil, err
	}
	storeHits := e.store.Search(vec, limit, threshold)
	return toHits(storeHits), nil
}

// SearchGrouped is as Search but via VectorStore.SearchGrouped, with each
// source's hits sorted by paragraph index ascending for readability.
func (e *Engine) SearchGrouped(ctx context.Context, queryText string, maxSources, maxPerSource int, threshold float64) (GroupedHits, error) {
	vec, err := e.embedder.EmbedOne(ctx, queryText)
	if err != nil {
		return nil, err
	}
	grouped := e.store.SearchGrouped(vec, maxSources, maxPerSource, threshold)

	out := make(GroupedHits, len(grouped))
	for path, hits := range grouped {
		converted := toHits(hits)
		sort.Slice(converted, func(i, j int) bool {
			return converted[i].ParagraphIndex < converted[j].ParagraphIndex
		})
		out[path] = converted
	}
	return out, nil
}

func toHits(storeHits []store.Hit) []Hit {
	out := make([]Hit, len(storeHits))
	for i, h := range storeHits {
		out[i] = Hit{
			SourcePath:     h.Record.SourcePath,
			Title:          h.Record.Title,
			ParagraphIndex: h.Record.ParagraphIndex,
			MatchedText:    h.Record.ParagraphText,
			Similarity:     h.Similarity,
		}
	}
	return out
}

const banner = "--- RELEVANT NOTES ---"

// FormatForContext renders ranked hits as a plain-text block prefixed by
// a fixed banner and per-hit headers.
func FormatForContext(hits []Hit) string {
	var b strings.Builder
	b.WriteString(banner)
	b.WriteString("\n\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "[%s] (%s, %.0f%% match)\n%s\n\n", h.Title, h.SourcePath, h.Similarity*100, h.MatchedText)
	}
	return b.String()
}

// FormatGroupedForContext renders grouped hits, including each source's
// paragraph indices in its header.
func FormatGroupedForContext(grouped GroupedHits) string {
	var b strings.Builder
	b.WriteString(banner)
	b.WriteString("\n\n")
	for path, hits := range grouped {
		if len(hits) == 0 {
			continue
		}
		indices := make([]string, len(hits))
		for i, h := range hits {
			indices[i] = fmt.Sprintf("%d", h.ParagraphIndex)
		}
		fmt.Fprintf(&b, "[%s] (%s, paragraphs %s)\n", hits[0].Title, path, strings.Join(indices, ", "))
		for _, h := range hits {
			fmt.Fprintf(&b, "  (%.0f%% match) %s\n", h.Similarity*100, h.MatchedText)
		}
		b.WriteString("\n")
	}
	return b.String()
}
