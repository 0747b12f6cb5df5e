package repomap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/repomapper/repomap/internal/treesitter"
)

func TestTreeContextRenderShowsLinesOfInterestWithGapMarker(t *testing.T) {
	t.Parallel()

	src := []byte("package a\n\nfunc Run() {\n\treturn\n}\n\nfunc Other() {\n\treturn\n}\n")
	p := treesitter.NewParserWithConfig(treesitter.ParserConfig{})
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	tree, err := p.ParseTree(context.Background(), "a.go", src)
	require.NoError(t, err)
	defer tree.Close()

	loi := map[int]struct{}{2: {}} // 0-indexed line for "func Run() {"
	tc := NewTreeContext("a.go", src, tree, loi)
	out := tc.Render()
	require.Contains(t, out, "func Run")
	require.Contains(t, out, "⋮")
}
