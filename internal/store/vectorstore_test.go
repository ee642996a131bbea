package store

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andkenn/notevault/internal/errs"
)

func rec(path string, idx int, vec []float32, checksum string) Record {
	return Record{
		ID:             path + "#c" + strconv.Itoa(idx),
		Vector:         vec,
		SourcePath:     path,
		SourceName:     filepath.Base(path),
		Title:          filepath.Base(path),
		ParagraphIndex: idx,
		ParagraphText:  "text",
		SourceChecksum: checksum,
		SourceKind:     KindMarkdown,
	}
}

func TestUpsertSource_LocksInDimension(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)

	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{1, 0, 0}, "c1")}))
	assert.Equal(t, 3, s.Dimension())

	err := s.UpsertSource("b.md", []Record{rec("b.md", 0, []float32{1, 0}, "c2")})
	require.Error(t, err)
	assert.Equal(t, errs.DimensionMismatch, errs.KindOf(err))
	assert.Equal(t, 3, s.Dimension(), "store dimension must be unchanged after a failed upsert")
}

func TestUpsertSource_ReplacesAtomically(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)

	require.NoError(t, s.UpsertSource("a.md", []Record{
		rec("a.md", 0, []float32{1, 0}, "c1"),
		rec("a.md", 1, []float32{0, 1}, "c1"),
	}))
	require.NoError(t, s.UpsertSource("a.md", []Record{
		rec("a.md", 0, []float32{1, 1}, "c2"),
	}))

	st := s.Stats()
	assert.Equal(t, 1, st.ChunkCount)
}

func TestRemoveSource(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{1, 0}, "c1")}))
	s.RemoveSource("a.md")
	assert.Equal(t, 0, s.Stats().ChunkCount)
}

func TestRemoveSourcesNotIn(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{1, 0}, "c1")}))
	require.NoError(t, s.UpsertSource("b.md", []Record{rec("b.md", 0, []float32{0, 1}, "c2")}))

	s.RemoveSourcesNotIn(map[string]bool{"a.md": true})
	paths := s.SourcePaths()
	assert.Equal(t, []string{"a.md"}, paths)
}

func TestSearch_SortedDescendingAndBounded(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	require.NoError(t, s.UpsertSource("a.md", []Record{
		rec("a.md", 0, []float32{1, 0}, "c1"),
		rec("a.md", 1, []float32{0.9, 0.1}, "c1"),
	}))
	require.NoError(t, s.UpsertSource("b.md", []Record{
		rec("b.md", 0, []float32{0, 1}, "c2"),
	}))

	hits := s.Search([]float32{1, 0}, 10, 0)
	require.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
	}
	for _, h := range hits {
		assert.LessOrEqual(t, h.Similarity, 1.0+1e-9)
	}
}

func TestSearch_DegenerateVectorYieldsZero(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{0, 0}, "c1")}))

	hits := s.Search([]float32{1, 0}, 10, -1)
	require.Len(t, hits, 1)
	assert.Equal(t, 0.0, hits[0].Similarity)
}

func TestSearchGrouped_RespectsCaps(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	for _, src := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, s.UpsertSource(src, []Record{
			rec(src, 0, []float32{1, 0}, "c"),
			rec(src, 1, []float32{0.95, 0.05}, "c"),
			rec(src, 2, []float32{0.9, 0.1}, "c"),
		}))
	}

	grouped := s.SearchGrouped([]float32{1, 0}, 2, 1, 0)
	assert.LessOrEqual(t, len(grouped), 2)
	for _, hits := range grouped {
		assert.LessOrEqual(t, len(hits), 1)
	}
}

func TestSourceNeedsUpdate(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "index.json"), nil)
	assert.True(t, s.SourceNeedsUpdate("a.md", "c1"))

	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{1, 0}, "c1")}))
	assert.False(t, s.SourceNeedsUpdate("a.md", "c1"))
	assert.True(t, s.SourceNeedsUpdate("a.md", "c2"))
}

func TestSaveAndLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	s := New(path, nil)
	require.NoError(t, s.UpsertSource("a.md", []Record{rec("a.md", 0, []float32{1, 0}, "c1")}))
	require.NoError(t, s.Save())

	s2 := New(path, nil)
	s2.Load()
	assert.Equal(t, 1, s2.Stats().ChunkCount)
	assert.Equal(t, 2, s2.Dimension())
}

func TestLoad_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	s := New(path, nil)
	s.Load()
	assert.Equal(t, 0, s.Stats().ChunkCount)
}

func TestLoad_MissingFileStartsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"), nil)
	s.Load()
	assert.Equal(t, 0, s.Stats().ChunkCount)
}
