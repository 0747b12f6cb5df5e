package repomap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssembleStageEntriesOrderAndExclusion(t *testing.T) {
	t.Parallel()

	rankedDefs := []RankedDefinition{
		{File: "a.go", Ident: "Run", Rank: 2.0},
		{File: "chat.go", Ident: "Excluded", Rank: 5.0},
	}

	entries := AssembleStageEntries(
		[]string{"README.md"},
		rankedDefs,
		[]string{"a.go", "b.go"},
		[]string{"a.go", "b.go", "z.go"},
		[]string{"chat.go"},
		false,
	)

	require.NotEmpty(t, entries)
	require.Equal(t, stageSpecialPrelude, entries[0].Stage)
	require.Equal(t, "README.md", entries[0].File)

	for _, e := range entries {
		require.NotEqual(t, "chat.go", e.File, "chat files must never appear in stage entries (P5)")
	}

	var sawA, sawZ bool
	for _, e := range entries {
		if e.File == "a.go" && e.Stage == stageRankedDefs {
			sawA = true
		}
		if e.File == "z.go" && e.Stage == stageRemainingFiles {
			sawZ = true
		}
	}
	require.True(t, sawA)
	require.True(t, sawZ)
}
