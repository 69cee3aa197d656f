package diskcache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cmap/pkg/diskcache"
)

func openTemp(t *testing.T) *diskcache.Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := diskcache.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Put("square", []byte("[META]\n1 1 4\n")))

	got, ok, err := c.Get("square")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[META]\n1 1 4\n", string(got))
}

func TestGetMissingReturnsFalse(t *testing.T) {
	c := openTemp(t)
	_, ok, err := c.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListReturnsAllNames(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Put("a", []byte("1")))
	require.NoError(t, c.Put("b", []byte("2")))

	names, err := c.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Put("a", []byte("1")))
	require.NoError(t, c.Delete("a"))

	_, ok, err := c.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneClearsEverything(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.Put("a", []byte("1")))
	require.NoError(t, c.Put("b", []byte("2")))
	require.NoError(t, c.Prune())

	names, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}
