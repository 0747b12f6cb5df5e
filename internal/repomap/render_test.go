package repomap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repomapper/repomap/internal/treesitter"
)

func TestRenderRepoMapHeaderOnlyForNonStage1Entries(t *testing.T) {
	t.Parallel()

	entries := []StageEntry{
		{Stage: stageSpecialPrelude, File: "README.md"},
		{Stage: stageGraphNodes, File: "pkg/helper.go"},
	}

	out, err := RenderRepoMap(context.Background(), entries, nil, nil, t.TempDir())
	require.NoError(t, err)
	require.Contains(t, out, "README.md:\n"+elisionMarker+"\n")
	require.Contains(t, out, "pkg/helper.go:\n"+elisionMarker+"\n")
}

func TestRenderRepoMapFallsBackWhenFileUnreadable(t *testing.T) {
	t.Parallel()

	entries := []StageEntry{
		{Stage: stageRankedDefs, File: "missing.go", Ident: "Run", Rank: 1.0},
	}
	tags := map[string][]treesitter.Tag{
		"missing.go": {{RelPath: "missing.go", Name: "Run", Kind: "def", Line: 1}},
	}

	out, err := RenderRepoMap(context.Background(), entries, tags, nil, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "missing.go:\n"+elisionMarker+"\n", out)
}

func TestRenderRepoMapEmptyEntriesYieldsEmptyString(t *testing.T) {
	t.Parallel()

	out, err := RenderRepoMap(context.Background(), nil, nil, nil, t.TempDir())
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestRenderRepoMapPropagatesContextCancellation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entries := []StageEntry{{Stage: stageGraphNodes, File: "a.go"}}
	_, err := RenderRepoMap(ctx, entries, nil, nil, root)
	require.ErrorIs(t, err, context.Canceled)
}
