package repomap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeRepoRelPathRejectsOutsideRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := normalizeRepoRelPath(root, "../outside.go")
	require.Error(t, err)
}

func TestNormalizeRepoRelPathAcceptsNestedPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	rel, err := normalizeRepoRelPath(root, "pkg/sub/file.go")
	require.NoError(t, err)
	require.Equal(t, "pkg/sub/file.go", rel)
}

func TestNormalizeFileUniverseDedupesAndSorts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	out, err := normalizeFileUniverse(root, []string{"b.go", "a.go", "a.go"})
	require.NoError(t, err)
	require.Equal(t, []string{"a.go", "b.go"}, out)
}
