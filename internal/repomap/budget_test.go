package repomap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func bigEntrySet(n int) []StageEntry {
	entries := make([]StageEntry, n)
	for i := range entries {
		entries[i] = StageEntry{Stage: stageGraphNodes, File: "file.go"}
	}
	return entries
}

func TestFitToBudgetZeroBudgetReturnsEmpty(t *testing.T) {
	t.Parallel()

	res, err := FitToBudget(context.Background(), bigEntrySet(5), BudgetProfile{TokenBudget: 0}, nil)
	require.NoError(t, err)
	require.Empty(t, res.Entries)
}

func TestFitToBudgetRespectsSlackCeiling(t *testing.T) {
	t.Parallel()

	entries := bigEntrySet(200)
	res, err := FitToBudget(context.Background(), entries, BudgetProfile{TokenBudget: 50}, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, res.SafetyTokens, int(50*(1+budgetSlack))+1)
}

func TestFitToBudgetMonotonicOnLargerBudget(t *testing.T) {
	t.Parallel()

	entries := bigEntrySet(200)
	small, err := FitToBudget(context.Background(), entries, BudgetProfile{TokenBudget: 20}, nil)
	require.NoError(t, err)
	large, err := FitToBudget(context.Background(), entries, BudgetProfile{TokenBudget: 2000}, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(large.Entries), len(small.Entries))
}
