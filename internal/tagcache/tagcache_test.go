package tagcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repomapper/repomap/internal/treesitter"
)

func TestCacheStoreAndLookupExactMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "tags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	tags := []treesitter.Tag{{RelPath: "a.go", Name: "Run", Kind: "def", Line: 3, Language: "go", NodeType: "function"}}
	require.NoError(t, c.Store(context.Background(), "/repo/a.go", "go", 100, 42, tags))

	got, ok := c.Lookup("/repo/a.go", 100, 42)
	require.True(t, ok)
	require.Equal(t, tags, got)
}

func TestCacheLookupMissesOnMtimeOrSizeDrift(t *testing.T) {
	t.Parallel()

	c, err := Open("")
	require.NoError(t, err)

	tags := []treesitter.Tag{{RelPath: "a.go", Name: "Run", Kind: "def", Line: 3, Language: "go", NodeType: "function"}}
	require.NoError(t, c.Store(context.Background(), "/repo/a.go", "go", 100, 42, tags))

	_, ok := c.Lookup("/repo/a.go", 101, 42)
	require.False(t, ok, "mtime drift must invalidate the cache entry")

	_, ok = c.Lookup("/repo/a.go", 100, 43)
	require.False(t, ok, "size drift must invalidate the cache entry")

	_, ok = c.Lookup("/repo/a.go", 100, 42)
	require.True(t, ok)
}

func TestCachePrunesDeadPaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "tags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	require.NoError(t, c.Store(context.Background(), "/repo/a.go", "go", 1, 1, nil))
	require.NoError(t, c.Store(context.Background(), "/repo/b.go", "go", 1, 1, nil))

	require.NoError(t, c.Prune(context.Background(), map[string]struct{}{"/repo/a.go": {}}))

	_, ok := c.Lookup("/repo/a.go", 1, 1)
	require.True(t, ok)
	_, ok = c.Lookup("/repo/b.go", 1, 1)
	require.False(t, ok, "pruned path must miss")
}

func TestCacheInvalidateClearsEverything(t *testing.T) {
	t.Parallel()

	c, err := Open("")
	require.NoError(t, err)

	require.NoError(t, c.Store(context.Background(), "/repo/a.go", "go", 1, 1, nil))
	require.NoError(t, c.Invalidate(context.Background()))

	_, ok := c.Lookup("/repo/a.go", 1, 1)
	require.False(t, ok)
}

func TestCacheMemoryOnlyWhenPathEmpty(t *testing.T) {
	t.Parallel()

	c, err := Open("")
	require.NoError(t, err)
	require.Nil(t, c.db)
	require.NoError(t, c.Close())
}
