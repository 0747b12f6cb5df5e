package repomap

import (
	"context"
	"math"
)

// BudgetProfile controls fit behavior for FitToBudget.
type BudgetProfile struct {
	TokenBudget  int
	Model        string
	LanguageHint string
}

// BudgetFitResult is the accepted candidate prefix of entries.
type BudgetFitResult struct {
	Entries      []StageEntry
	ParityTokens float64
	SafetyTokens int
}

const budgetSlack = 0.15

// FitToBudget implements the Budgeted Selector (§4.6): binary-search the
// largest prefix k of entries whose rendered token count fits within
// TokenBudget*(1+slack), memoizing renders by k so repeated probes during
// the search never re-render or re-count the same prefix.
//
// Returns the empty result (no error) if TokenBudget <= 0 or the
// zero-prefix render already exceeds budget — this is the Budget-impossible
// class from §7 class 3, which is not an error.
func FitToBudget(
	ctx context.Context,
	entries []StageEntry,
	profile BudgetProfile,
	counter TokenCounter,
) (BudgetFitResult, error) {
	if profile.TokenBudget <= 0 {
		return BudgetFitResult{}, nil
	}

	n := len(entries)
	if n == 0 {
		return BudgetFitResult{}, nil
	}

	memo := newRenderMemo()
	limit := float64(profile.TokenBudget) * (1 + budgetSlack)

	probe := func(k int) (renderEntry, error) {
		if cached, ok := memo.get(k); ok {
			return cached, nil
		}
		if err := ctx.Err(); err != nil {
			return renderEntry{}, err
		}
		text := renderStageEntries(entries[:k])
		metrics, err := CountParityAndSafetyTokens(ctx, counter, profile.Model, text, profile.LanguageHint)
		if err != nil {
			return renderEntry{}, err
		}
		e := renderEntry{text: text, parityTokens: metrics.ParityTokens, safetyTokens: metrics.SafetyTokens}
		memo.put(k, e)
		return e, nil
	}

	zero, err := probe(0)
	if err != nil {
		return BudgetFitResult{}, err
	}
	if float64(zero.safetyTokens) > limit {
		return BudgetFitResult{}, nil
	}

	lo, hi := 0, n
	best := zero
	bestK := 0
	var prevProbed float64 = -1
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		e, probeErr := probe(mid)
		if probeErr != nil {
			return BudgetFitResult{}, probeErr
		}
		if float64(e.safetyTokens) <= limit {
			lo = mid
			best = e
			bestK = mid
		} else {
			hi = mid - 1
		}
		// Early exit once consecutive probes differ by < 1% of the budget.
		if prevProbed >= 0 && math.Abs(float64(e.safetyTokens)-prevProbed) < float64(profile.TokenBudget)*0.01 {
			break
		}
		prevProbed = float64(e.safetyTokens)
	}

	return BudgetFitResult{
		Entries:      append([]StageEntry(nil), entries[:bestK]...),
		ParityTokens: best.parityTokens,
		SafetyTokens: best.safetyTokens,
	}, nil
}

func renderStageEntries(entries []StageEntry) string {
	// Build a cheap one-line-per-entry proxy text (S0|/S1|/S2|/S3| prefixes)
	// for budget probing instead of running the scope-aware RenderRepoMap,
	// which is far more expensive.
	var total int
	for range entries {
		total++
	}
	if total == 0 {
		return ""
	}
	lines := make([]string, 0, total)
	for _, e := range entries {
		switch e.Stage {
		case stageSpecialPrelude:
			lines = append(lines, "S0|"+e.File)
		case stageRankedDefs:
			lines = append(lines, "S1|"+e.File+"|"+e.Ident)
		case stageGraphNodes:
			lines = append(lines, "S2|"+e.File)
		case stageRemainingFiles:
			lines = append(lines, "S3|"+e.File)
		}
	}
	out := make([]byte, 0, len(lines)*16)
	for _, l := range lines {
		out = append(out, l...)
		out = append(out, '\n')
	}
	return string(out)
}
