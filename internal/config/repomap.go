package config

import (
	"cmp"
	"slices"
)

// RepoMapOptions configures repository map generation.
type RepoMapOptions struct {
	// Disabled turns off repo map generation entirely.
	Disabled bool `json:"disabled,omitempty" jsonschema:"description=Disable repo map generation entirely"`
	// MaxTokens overrides the dynamic token budget for the rendered map.
	// When zero, the dynamic default is used.
	MaxTokens int `json:"max_tokens,omitempty" jsonschema:"description=Override max token budget for rendered map (0 = dynamic)"`
	// ExcludeGlobs are additional glob patterns excluded from scanning.
	ExcludeGlobs []string `json:"exclude_globs,omitempty" jsonschema:"description=Additional glob patterns to exclude from repo map scanning"`
	// RefreshMode controls when the map is regenerated.
	RefreshMode string `json:"refresh_mode,omitempty" jsonschema:"description=When to regenerate the repo map: auto files manual or always"`
	// MapMulNoFiles is the budget multiplier when no files are in chat.
	MapMulNoFiles float64 `json:"map_mul_no_files,omitempty" jsonschema:"description=Budget multiplier when no files are in chat (default 2.0)"`
	// ParserPoolSize sets tree-sitter parser pool capacity.
	// Zero uses the runtime default.
	ParserPoolSize int `json:"parser_pool_size,omitempty" jsonschema:"description=Tree-sitter parser pool size (0 = runtime default)"`
	// SpecialFiles opts into the stage-0 special-file prelude (README,
	// LICENSE, CI config, and similar root-scoped files).
	SpecialFiles bool `json:"special_files,omitempty" jsonschema:"description=Include a stage-0 prelude of README/LICENSE/CI-config style files"`
}

func (o RepoMapOptions) merge(t RepoMapOptions) RepoMapOptions {
	o.Disabled = o.Disabled || t.Disabled
	o.MaxTokens = cmp.Or(t.MaxTokens, o.MaxTokens)
	o.ExcludeGlobs = sortedCompact(append(o.ExcludeGlobs, t.ExcludeGlobs...))
	o.RefreshMode = cmp.Or(t.RefreshMode, o.RefreshMode)
	if t.MapMulNoFiles != 0 {
		o.MapMulNoFiles = t.MapMulNoFiles
	}
	o.ParserPoolSize = cmp.Or(t.ParserPoolSize, o.ParserPoolSize)
	o.SpecialFiles = o.SpecialFiles || t.SpecialFiles
	return o
}

// DefaultRepoMapMaxTokens computes the dynamic token budget based on model context
// window size: min(max(contextWindow/8, 1024), 4096).
func DefaultRepoMapMaxTokens(modelContextWindow int) int {
	budget := min(max(modelContextWindow/8, 1024), 4096)
	return budget
}

// DefaultRepoMapOptions returns repo map defaults.
func DefaultRepoMapOptions() RepoMapOptions {
	return RepoMapOptions{
		RefreshMode:   "auto",
		MapMulNoFiles: 2.0,
	}
}

// sortedCompact returns values sorted and with consecutive duplicates and
// empty strings removed.
func sortedCompact(values []string) []string {
	out := slices.DeleteFunc(slices.Clone(values), func(s string) bool { return s == "" })
	slices.Sort(out)
	return slices.Compact(out)
}
