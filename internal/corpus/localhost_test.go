package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalHost_ListSourcesAndRead(t *testing.T) {
	dir := t.TempDir()
	notePath := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("hello"), 0o644))

	host, err := NewLocalHost(dir)
	require.NoError(t, err)

	sources, err := host.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, notePath, sources[0].Path())
	assert.Equal(t, ".md", sources[0].Extension())

	data, err := host.ReadBytes(context.Background(), notePath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalHost_ActiveDocument(t *testing.T) {
	dir := t.TempDir()
	notePath := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("hello"), 0o644))

	host, err := NewLocalHost(dir)
	require.NoError(t, err)

	handle, err := host.ActiveDocument(context.Background())
	require.NoError(t, err)
	assert.Nil(t, handle)

	host.SetActiveDocument(notePath)
	handle, err = host.ActiveDocument(context.Background())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, notePath, handle.Path())
}
