package index

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andkenn/notevault/internal/corpus"
	"github.com/andkenn/notevault/internal/store"
)

type fakeHandle struct {
	path  string
	data  []byte
	mtime int64
}

func (h *fakeHandle) Path() string           { return h.path }
func (h *fakeHandle) Extension() string      { return filepath.Ext(h.path) }
func (h *fakeHandle) ModifiedMillis() int64  { return h.mtime }
func (h *fakeHandle) Size() int64            { return int64(len(h.data)) }
func (h *fakeHandle) ReadBytes() ([]byte, error) { return h.data, nil }

type fakeHost struct {
	sources map[string]*fakeHandle
}

func newFakeHost() *fakeHost { return &fakeHost{sources: map[string]*fakeHandle{}} }

func (h *fakeHost) put(path, text string) {
	h.sources[path] = &fakeHandle{path: path, data: []byte(text), mtime: 1}
}

func (h *fakeHost) ListSources(ctx context.Context) ([]corpus.SourceHandle, error) {
	var out []corpus.SourceHandle
	for _, s := range h.sources {
		out = append(out, s)
	}
	return out, nil
}

func (h *fakeHost) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	return h.sources[path].data, nil
}

func (h *fakeHost) Subscribe(ctx context.Context) (<-chan corpus.Event, error) {
	ch := make(chan corpus.Event)
	close(ch)
	return ch, nil
}

func (h *fakeHost) ActiveDocument(ctx context.Context) (corpus.SourceHandle, error) {
	return nil, nil
}

// stubEmbedder returns a deterministic 3-dim vector that varies by input,
// matching the end-to-end scenarios' "stub embedder returns a 3-dim unit
// vector varying by input" description.
type stubEmbedder struct{}

func (stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := stubEmbedder{}.EmbedMany(ctx, []string{text})
	return v[0], err
}

func (stubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum int
		for _, r := range t {
			sum += int(r)
		}
		out[i] = []float32{
			float32(sum%7) + 1,
			float32(sum%11) + 1,
			float32(sum%13) + 1,
		}
	}
	return out, nil
}

func (stubEmbedder) Test(ctx context.Context) (bool, int, error) { return true, 3, nil }
func (stubEmbedder) UpdateConfig(endpoint, model string)         {}
func (stubEmbedder) Dimensions() int                             { return 3 }
func (stubEmbedder) ModelName() string                           { return "stub" }

func TestSmartUpdate_ScenarioOne_SingleNote(t *testing.T) {
	host := newFakeHost()
	host.put("note.md", "Hello world. This is a test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, stubEmbedder{}, nil, host, 32, nil)

	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	stats := st.Stats()
	assert.Equal(t, 1, stats.ChunkCount)
	assert.Equal(t, 3, st.Dimension())
}

func TestSmartUpdate_RenameMovesChunks(t *testing.T) {
	host := newFakeHost()
	host.put("note.md", "Hello world. This is a test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, stubEmbedder{}, nil, host, 32, nil)
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	delete(host.sources, "note.md")
	host.put("renamed.md", "Hello world. This is a test paragraph with more than ten words overall.")
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	assert.Equal(t, 1, st.Stats().ChunkCount)
	assert.False(t, st.SourceNeedsUpdate("renamed.md", checksumHex([]byte("Hello world. This is a test paragraph with more than ten words overall."))))
}

func TestSmartUpdate_DeleteRemovesChunksButKeepsDimension(t *testing.T) {
	host := newFakeHost()
	host.put("note.md", "Hello world. This is a test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, stubEmbedder{}, nil, host, 32, nil)
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	delete(host.sources, "note.md")
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	stats := st.Stats()
	assert.Equal(t, 0, stats.ChunkCount)
	assert.Equal(t, 3, st.Dimension())
}

func TestSmartUpdate_UnchangedSourceSkipsReEmbedding(t *testing.T) {
	host := newFakeHost()
	host.put("note.md", "Hello world. This is a test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, stubEmbedder{}, nil, host, 32, nil)
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))
	before := st.Stats()

	require.NoError(t, ix.SmartUpdate(context.Background(), nil))
	after := st.Stats()
	assert.Equal(t, before.ChunkCount, after.ChunkCount)
}

// countingStubEmbedder wraps stubEmbedder and records every text it was
// asked to embed, so tests can assert ReindexSource never touches sources
// other than the one it was given.
type countingStubEmbedder struct {
	stubEmbedder
	seen []string
}

func (e *countingStubEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	e.seen = append(e.seen, texts...)
	return e.stubEmbedder.EmbedMany(ctx, texts)
}

func TestReindexSource_OnlyTouchesRequestedPath(t *testing.T) {
	host := newFakeHost()
	host.put("a.md", "Hello world. This is a test paragraph with more than ten words overall.")
	host.put("b.md", "Goodbye world. This is another test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	emb := &countingStubEmbedder{}
	ix := New(st, emb, nil, host, 32, nil)
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	// Change only a.md, then reindex it by path.
	host.put("a.md", "Hello world. This is an edited test paragraph with more than ten words overall now.")
	emb.seen = nil
	require.NoError(t, ix.ReindexSource(context.Background(), "a.md"))

	for _, text := range emb.seen {
		assert.NotContains(t, text, "Goodbye world")
	}
	assert.NotEmpty(t, emb.seen)

	// b.md's chunk is untouched and still searchable.
	assert.Equal(t, 2, st.Stats().ChunkCount)
}

func TestReindexSource_MissingPathRemovesSource(t *testing.T) {
	host := newFakeHost()
	host.put("note.md", "Hello world. This is a test paragraph with more than ten words overall.")

	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, stubEmbedder{}, nil, host, 32, nil)
	require.NoError(t, ix.SmartUpdate(context.Background(), nil))

	delete(host.sources, "note.md")
	require.NoError(t, ix.ReindexSource(context.Background(), "note.md"))

	assert.Equal(t, 0, st.Stats().ChunkCount)
}

func TestEnsureConnection_FailsWhenContextExpires(t *testing.T) {
	host := newFakeHost()
	st := store.New(filepath.Join(t.TempDir(), "index.json"), nil)
	ix := New(st, failingEmbedder{}, nil, host, 32, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := ix.EnsureConnection(ctx)
	require.Error(t, err)
}

type failingEmbedder struct{ stubEmbedder }

func (failingEmbedder) Test(ctx context.Context) (bool, int, error) {
	return false, 0, assertErr
}

var assertErr = context.DeadlineExceeded
