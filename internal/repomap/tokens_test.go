package repomap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateTokensUsesLanguageRatio(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, EstimateTokens("", "go"))
	require.Greater(t, EstimateTokens("package main\n", "go"), 0)
	require.Greater(t, EstimateTokens("x", "unknown-language"), 0)
}

type fixedCounter struct{ n int }

func (f fixedCounter) Count(context.Context, string, string) (int, error) { return f.n, nil }

func TestCountParityAndSafetyTokensUsesCounterWhenPresent(t *testing.T) {
	t.Parallel()

	metrics, err := CountParityAndSafetyTokens(context.Background(), fixedCounter{n: 10}, "", "short text", "go")
	require.NoError(t, err)
	require.Equal(t, 10.0, metrics.ParityTokens)
	require.GreaterOrEqual(t, metrics.SafetyTokens, 10)
}

func TestCountParityAndSafetyTokensFallsBackToHeuristic(t *testing.T) {
	t.Parallel()

	metrics, err := CountParityAndSafetyTokens(context.Background(), nil, "", "some sample text here", "go")
	require.NoError(t, err)
	require.Greater(t, metrics.ParityTokens, 0.0)
	require.GreaterOrEqual(t, metrics.SafetyTokens, int(metrics.ParityTokens))
}
