// Package repomap builds a ranked, budget-fit symbol map of a repository
// for inclusion in an LLM prompt. See SPEC_FULL.md for the full contract;
// GenerateMap is the single entry point.
package repomap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/repomapper/repomap/internal/config"
	"github.com/repomapper/repomap/internal/tagcache"
	"github.com/repomapper/repomap/internal/treesitter"
)

// RefreshMode controls when the tag cache is consulted versus re-extracted,
// per §4.3.
type RefreshMode string

const (
	// RefreshAuto uses the cache when the (mtime, size) identity matches,
	// extracting and writing back otherwise.
	RefreshAuto RefreshMode = "auto"
	// RefreshFiles always re-extracts, but still writes the result back to
	// the cache for later auto/manual runs.
	RefreshFiles RefreshMode = "files"
	// RefreshManual uses the cache unconditionally and never writes back; a
	// file with no valid cache entry yields no tags and is not extracted.
	RefreshManual RefreshMode = "manual"
	// RefreshAlways drops the cache before extraction, forcing a full
	// rebuild that is then written back.
	RefreshAlways RefreshMode = "always"
)

func (m RefreshMode) valid() bool {
	switch m {
	case RefreshAuto, RefreshFiles, RefreshManual, RefreshAlways:
		return true
	default:
		return false
	}
}

var (
	// ErrBuilderClosed is returned by any Builder method called after Close.
	ErrBuilderClosed = errors.New("repomap: builder is closed")
	// ErrInvalidRefreshMode is returned for a Request.Refresh value outside
	// {auto,files,manual,always} — a programmer-contract violation (§7
	// class 4).
	ErrInvalidRefreshMode = errors.New("repomap: invalid refresh mode")
	// ErrNegativeBudget is returned for a negative Request.MapTokens — a
	// programmer-contract violation (§7 class 4).
	ErrNegativeBudget = errors.New("repomap: map token budget must not be negative")
)

// cacheDirName is the persisted-state directory created at the repository
// root (§6 "Persisted state"). The trailing version is bumped whenever the
// on-disk schema changes incompatibly.
const cacheDirName = ".repomap.tags.cache.v1"

// Request is the full input to GenerateMap, per §6's generate_map contract.
type Request struct {
	// ChatFiles are excluded from the rendered output (P5) but still
	// contribute definitions/references to the graph.
	ChatFiles []string
	// OtherFiles is the scanned file universe eligible for ranking.
	OtherFiles []string
	// MentionedFnames are filenames called out by name, boosting their
	// personalization weight.
	MentionedFnames []string
	// MentionedIdentifiers are identifiers called out by name, boosting
	// matching graph edges and files whose path matches the identifier.
	MentionedIdentifiers []string
	// Refresh selects the tag-cache refresh mode. Zero value defaults to
	// RefreshAuto.
	Refresh RefreshMode
	// ForceRefresh is equivalent to Refresh=RefreshAlways when true,
	// regardless of the Refresh field.
	ForceRefresh bool
	// MapTokens overrides the rendered token budget for this call. Zero
	// uses the builder's configured or default budget.
	MapTokens int
	// Model is passed through to the token counter for model-specific
	// counting; empty uses the counter's default behavior.
	Model string
}

// Builder holds the long-lived collaborators (tag cache, parser, config)
// across repeated GenerateMap calls against one repository root.
type Builder struct {
	rootDir string
	cfg     *config.RepoMapOptions
	counter TokenCounter

	mu               sync.Mutex
	parser           treesitter.Parser
	newParserWithCfg func(treesitter.ParserConfig) treesitter.Parser

	cache  *tagcache.Cache
	closed bool
}

// NewBuilder opens (or creates) the persisted tag cache under rootDir and
// returns a Builder ready for repeated GenerateMap calls. cfg may be nil,
// in which case config.DefaultRepoMapOptions() is used. counter may be nil,
// in which case token counts fall back to the heuristic estimator.
func NewBuilder(rootDir string, cfg *config.RepoMapOptions, counter TokenCounter) (*Builder, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("repomap: root directory is empty")
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("repomap: resolve root dir: %w", err)
	}

	if cfg == nil {
		defaults := config.DefaultRepoMapOptions()
		cfg = &defaults
	}

	cachePath := filepath.Join(absRoot, cacheDirName, "tags.db")
	cache, err := tagcache.Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("repomap: open tag cache: %w", err)
	}

	return &Builder{
		rootDir: absRoot,
		cfg:     cfg,
		counter: counter,
		cache:   cache,
	}, nil
}

// Close releases the tag cache and parser resources. The Builder must not
// be used afterward.
func (b *Builder) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if b.cache != nil {
		if err := b.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.parser != nil {
		if err := b.parser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GenerateMap implements §6's generate_map contract: it extracts tags for
// the scanned file universe, builds the reference graph, ranks definitions
// with PageRank personalized toward chat/mentioned files, fits the ranked
// stage entries to the token budget, and renders the winning prefix.
//
// Returns ("", nil) when no content fits the budget (§7 class 3) — this is
// not an error. Invalid input (negative budget, unknown refresh mode) fails
// fast with ErrNegativeBudget / ErrInvalidRefreshMode (§7 class 4).
func (b *Builder) GenerateMap(ctx context.Context, req Request) (string, error) {
	if b == nil {
		return "", ErrBuilderClosed
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return "", ErrBuilderClosed
	}

	if req.MapTokens < 0 {
		return "", ErrNegativeBudget
	}

	mode := req.Refresh
	if mode == "" {
		mode = RefreshAuto
	}
	if !mode.valid() {
		return "", ErrInvalidRefreshMode
	}
	if req.ForceRefresh {
		mode = RefreshAlways
	}

	if mode == RefreshAlways {
		if err := b.cache.Invalidate(ctx); err != nil {
			return "", fmt.Errorf("repomap: invalidate tag cache: %w", err)
		}
	}

	chatFiles, err := normalizeFileUniverse(b.rootDir, req.ChatFiles)
	if err != nil {
		return "", err
	}
	otherFiles, err := normalizeFileUniverse(b.rootDir, req.OtherFiles)
	if err != nil {
		return "", err
	}

	universe := mergeUniverse(chatFiles, otherFiles)

	tags, err := b.extractTags(ctx, b.rootDir, universe, mode)
	if err != nil {
		return "", err
	}

	graph := buildGraph(tags, chatFiles, req.MentionedIdentifiers)
	personalization := BuildPersonalization(universe, chatFiles, req.MentionedFnames, req.MentionedIdentifiers)
	rankedDefs := Rank(graph, personalization, tags)
	rankedFiles := AggregateRankedFiles(rankedDefs, tags)

	rankedFilePaths := make([]string, 0, len(rankedFiles))
	for _, rf := range rankedFiles {
		rankedFilePaths = append(rankedFilePaths, rf.Path)
	}

	var specialPrelude []string
	if b.cfg != nil && b.cfg.SpecialFiles {
		specialPrelude = BuildSpecialPrelude(otherFiles, rankedFilePaths, false)
	}

	entries := AssembleStageEntries(specialPrelude, rankedDefs, graph.Nodes, otherFiles, chatFiles, false)

	// Request.MapTokens <= 0 means "use the builder's configured or dynamic
	// default budget" rather than the literal §4.6 T=0 empty-string rule —
	// see the "MapTokens zero-value" decision in DESIGN.md.
	budget := req.MapTokens
	if budget <= 0 {
		budget = b.resolvedDefaultBudget()
	}

	tagsByFile := make(map[string][]treesitter.Tag, len(universe))
	for _, tag := range tags {
		tagsByFile[tag.RelPath] = append(tagsByFile[tag.RelPath], tag)
	}
	parser := b.ensureParser()

	// Layer 1: the proxy-text FitToBudget search is only a cheap pre-filter.
	// Scope-aware RenderRepoMap output is typically several times larger than
	// the "S1|file|ident" placeholder lines it searches over, so the search
	// budget is shrunk by scopeExpansionFactor before probing; the entries it
	// accepts are verified (and trimmed further, if needed) against the real
	// rendered output below.
	const scopeExpansionFactor = 4
	proxyProfile := BudgetProfile{TokenBudget: max(budget/scopeExpansionFactor, 1), Model: req.Model}
	fit, err := FitToBudget(ctx, entries, proxyProfile, b.counter)
	if err != nil {
		return "", err
	}
	if len(fit.Entries) == 0 {
		return "", nil
	}

	limit := float64(budget) * (1 + budgetSlack)
	fitsWithinBudget := func(text string) bool {
		metrics, err := CountParityAndSafetyTokens(ctx, b.counter, req.Model, text, "default")
		if err != nil {
			return float64(EstimateTokens(text, "default")) <= limit
		}
		return float64(metrics.SafetyTokens) <= limit
	}

	// Layer 2: post-render trim. Binary-search the largest prefix of the
	// layer-1 entries whose actual RenderRepoMap output fits the original
	// budget, re-rendering at each probe since scope-aware expansion does
	// not grow linearly with entry count.
	mapText, err := RenderRepoMap(ctx, fit.Entries, tagsByFile, parser, b.rootDir)
	if err != nil {
		return "", err
	}
	if !fitsWithinBudget(mapText) {
		lo, hi := 0, len(fit.Entries)-1
		for lo < hi {
			mid := (lo + hi + 1) / 2
			candidate := fit.Entries[:mid]
			text, renderErr := RenderRepoMap(ctx, candidate, tagsByFile, parser, b.rootDir)
			if renderErr != nil {
				return "", renderErr
			}
			if fitsWithinBudget(text) {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		fit.Entries = fit.Entries[:lo]
		if len(fit.Entries) == 0 {
			return "", nil
		}
		mapText, err = RenderRepoMap(ctx, fit.Entries, tagsByFile, parser, b.rootDir)
		if err != nil {
			return "", err
		}
	}

	return mapText, nil
}

func (b *Builder) resolvedDefaultBudget() int {
	if b.cfg != nil && b.cfg.MaxTokens > 0 {
		return b.cfg.MaxTokens
	}
	return config.DefaultRepoMapMaxTokens(0)
}

func mergeUniverse(chatFiles, otherFiles []string) []string {
	seen := make(map[string]struct{}, len(chatFiles)+len(otherFiles))
	out := make([]string, 0, len(chatFiles)+len(otherFiles))
	for _, group := range [][]string{chatFiles, otherFiles} {
		for _, f := range group {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
