package repomap

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// renderEntry is one memoized render produced during the Selector's binary
// search (§4.6 step 4): the rendered text for a given prefix length k, plus
// the metrics computed over it, so a repeated probe at the same k during
// the search never re-renders or re-counts.
type renderEntry struct {
	text         string
	parityTokens float64
	safetyTokens int
}

// renderMemo bounds the Selector's per-call render cache so a pathological
// binary search over a very large candidate list cannot grow memory
// unboundedly; entries beyond the bound are simply recomputed.
type renderMemo struct {
	cache *lru.Cache[int, renderEntry]
}

const renderMemoSize = 256

func newRenderMemo() *renderMemo {
	c, err := lru.New[int, renderEntry](renderMemoSize)
	if err != nil {
		// lru.New only errors on a non-positive size; renderMemoSize is a
		// positive constant, so this is unreachable in practice.
		c, _ = lru.New[int, renderEntry](1)
	}
	return &renderMemo{cache: c}
}

func (m *renderMemo) get(k int) (renderEntry, bool) {
	if m == nil || m.cache == nil {
		return renderEntry{}, false
	}
	return m.cache.Get(k)
}

func (m *renderMemo) put(k int, e renderEntry) {
	if m == nil || m.cache == nil {
		return
	}
	m.cache.Add(k, e)
}
