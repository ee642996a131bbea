package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andkenn/notevault/internal/errs"
)

func stubServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func echoDimServer(t *testing.T, dim int) *httptest.Server {
	return stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var inputs []string
		switch v := req.Input.(type) {
		case string:
			inputs = []string{v}
		case []any:
			for _, x := range v {
				inputs = append(inputs, x.(string))
			}
		}

		data := make([]embedDatum, len(inputs))
		for i := range inputs {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			data[i] = embedDatum{Embedding: vec, Index: i}
		}
		_ = json.NewEncoder(w).Encode(embedResponse{Data: data, Model: req.Model})
	})
}

func TestEmbedOne(t *testing.T) {
	srv := echoDimServer(t, 3)
	c := New(srv.URL, "test-model", "", nil)

	vec, err := c.EmbedOne(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 3, c.Dimensions())
}

func TestEmbedMany_ReordersByIndex(t *testing.T) {
	srv := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// Deliberately return results out of order to exercise reordering.
		resp := embedResponse{Data: []embedDatum{
			{Embedding: []float32{2}, Index: 1},
			{Embedding: []float32{0}, Index: 0},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	})
	c := New(srv.URL, "m", "", nil)

	vecs, err := c.EmbedMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(0), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
}

func TestEmbed_ServerErrorIsTransient(t *testing.T) {
	srv := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	c := New(srv.URL, "m", "", nil)
	c.http.Timeout = 0

	_, err := c.EmbedOne(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errs.EmbeddingTransient, errs.KindOf(err))
}

func TestEmbed_BadRequestIsProtocolError(t *testing.T) {
	srv := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad input"))
	})
	c := New(srv.URL, "m", "", nil)

	_, err := c.EmbedOne(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, errs.EmbeddingProtocol, errs.KindOf(err))
}

func TestCleanAndTruncate(t *testing.T) {
	long := strings.Repeat("a ", 10000)
	out := cleanAndTruncate(long)
	assert.True(t, strings.HasSuffix(out, truncateMarker))
	assert.LessOrEqual(t, len(out), maxInputChars+len(truncateMarker))
}

func TestTest_ReportsDimension(t *testing.T) {
	srv := echoDimServer(t, 5)
	c := New(srv.URL, "m", "", nil)

	ok, dim, err := c.Test(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5, dim)
}
