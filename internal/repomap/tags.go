package repomap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/repomapper/repomap/internal/treesitter"
)

// stringInterner interns repeated short strings to reduce allocations.
type stringInterner struct {
	pool map[string]string
}

func newStringInterner(capacity int) *stringInterner {
	if capacity < 0 {
		capacity = 0
	}
	return &stringInterner{pool: make(map[string]string, capacity)}
}

func (i *stringInterner) Intern(value string) string {
	if i == nil || value == "" {
		return value
	}
	if interned, ok := i.pool[value]; ok {
		return interned
	}
	i.pool[value] = value
	return value
}

// extractTags derives defs/refs for fileUniverse under rootDir, consulting
// (and refreshing) the builder's tag cache according to mode, and returns a
// deterministic tag slice for downstream graph construction.
//
// Cache-miss extraction for distinct (abs_path, mtime, size) keys is
// deduplicated via singleflight so a parallel extractor pass racing on the
// same changed file only parses it once (§5).
func (b *Builder) extractTags(ctx context.Context, rootDir string, fileUniverse []string, mode RefreshMode) ([]treesitter.Tag, error) {
	if b == nil {
		return nil, ErrBuilderClosed
	}

	parser := b.ensureParser()
	if parser == nil {
		return nil, fmt.Errorf("tree-sitter parser is not available")
	}

	live := make(map[string]struct{}, len(fileUniverse))
	for _, relPath := range fileUniverse {
		live[filepath.Join(rootDir, filepath.FromSlash(relPath))] = struct{}{}
	}
	if err := b.cache.Prune(ctx, live); err != nil {
		slog.Warn("repomap: tag cache prune failed", "error", err)
	}

	var (
		mu   sync.Mutex
		warn sync.Map // per-path warn-once dedupe, §10
		wg   sync.WaitGroup
		sf   singleflight.Group
		all  []treesitter.Tag
	)

	for _, relPath := range fileUniverse {
		if err := ctx.Err(); err != nil {
			break
		}
		relPath := relPath
		wg.Add(1)
		go func() {
			defer wg.Done()
			tags, err := b.extractPathTags(ctx, &sf, parser, rootDir, relPath, mode)
			if err != nil {
				if _, already := warn.LoadOrStore(relPath, struct{}{}); !already {
					slog.Warn("repomap: skipping file after extraction error", "path", relPath, "error", err)
				}
				return
			}
			mu.Lock()
			all = append(all, tags...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sortTagsDeterministic(all)
	return all, nil
}

// extractPathTags resolves the tags for one file, consulting the cache per
// mode and writing back as directed by the refresh-mode table in §4.3.
func (b *Builder) extractPathTags(ctx context.Context, sf *singleflight.Group, parser treesitter.Parser, rootDir, relPath string, mode RefreshMode) ([]treesitter.Tag, error) {
	absPath := filepath.Join(rootDir, filepath.FromSlash(relPath))

	st, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %q: %w", relPath, err)
	}
	if !st.Mode().IsRegular() {
		return nil, nil
	}
	mtimeNS := st.ModTime().UnixNano()
	size := st.Size()

	if mode == RefreshManual {
		if cached, ok := b.cache.Lookup(absPath, mtimeNS, size); ok {
			return internTags(relPath, cached), nil
		}
		return nil, nil
	}

	if mode == RefreshAuto {
		if cached, ok := b.cache.Lookup(absPath, mtimeNS, size); ok {
			return internTags(relPath, cached), nil
		}
	}

	key := fmt.Sprintf("%s|%d|%d", absPath, mtimeNS, size)
	v, err, _ := sf.Do(key, func() (any, error) {
		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			return nil, fmt.Errorf("read %q: %w", relPath, readErr)
		}

		analysis, analyzeErr := parser.Analyze(ctx, relPath, content)
		if analyzeErr != nil {
			return nil, fmt.Errorf("analyze %q: %w", relPath, analyzeErr)
		}

		language := treesitter.GetQueryKey(treesitter.MapPath(relPath))
		if analysis != nil && analysis.Language != "" {
			language = treesitter.GetQueryKey(analysis.Language)
		}

		tagsCap := 0
		if analysis != nil {
			tagsCap = len(analysis.Tags)
		}
		interner := newStringInterner(tagsCap + 8)
		internedLanguage := interner.Intern(language)
		tags := make([]treesitter.Tag, 0, tagsCap)
		hasRef := false
		if analysis != nil {
			for _, tag := range analysis.Tags {
				if tag.Kind != "def" && tag.Kind != "ref" {
					continue
				}
				tag.RelPath = relPath
				tag.Name = interner.Intern(tag.Name)
				tag.Kind = interner.Intern(tag.Kind)
				tag.NodeType = interner.Intern(tag.NodeType)
				if tag.Language == "" {
					tag.Language = internedLanguage
				} else {
					tag.Language = interner.Intern(tag.Language)
				}
				if tag.Kind == "ref" {
					hasRef = true
				}
				tags = append(tags, tag)
			}
		}

		// §4.2 step 1/4: no grammar matched this path, or the grammar path
		// yielded zero references — fall back to the lexer to contribute
		// (or recover) reference edges. Definitions already found are kept.
		if !hasRef {
			lexed := tokenizeIdentifiers(relPath, internedLanguage, string(content))
			for i := range lexed {
				lexed[i].Name = interner.Intern(lexed[i].Name)
			}
			tags = append(tags, lexed...)
		}
		sortTagsDeterministic(tags)

		if mode != RefreshManual {
			if storeErr := b.cache.Store(ctx, absPath, language, mtimeNS, size, tags); storeErr != nil {
				slog.Warn("repomap: tag cache write-back failed", "path", relPath, "error", storeErr)
			}
		}
		return tags, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]treesitter.Tag), nil
}

func internTags(relPath string, tags []treesitter.Tag) []treesitter.Tag {
	out := make([]treesitter.Tag, len(tags))
	copy(out, tags)
	for i := range out {
		out[i].RelPath = relPath
	}
	return out
}

func sortTagsDeterministic(tags []treesitter.Tag) {
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].RelPath != tags[j].RelPath {
			return tags[i].RelPath < tags[j].RelPath
		}
		if tags[i].Line != tags[j].Line {
			return tags[i].Line < tags[j].Line
		}
		if tags[i].Kind != tags[j].Kind {
			return tags[i].Kind < tags[j].Kind
		}
		if tags[i].Name != tags[j].Name {
			return tags[i].Name < tags[j].Name
		}
		if tags[i].NodeType != tags[j].NodeType {
			return tags[i].NodeType < tags[j].NodeType
		}
		return tags[i].Language < tags[j].Language
	})
}

func (b *Builder) ensureParser() treesitter.Parser {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.parser == nil {
		poolSize := 0
		if b.cfg != nil {
			poolSize = b.cfg.ParserPoolSize
		}
		factory := b.newParserWithCfg
		if factory == nil {
			factory = treesitter.NewParserWithConfig
		}
		b.parser = factory(treesitter.ParserConfig{PoolSize: poolSize})
	}
	return b.parser
}
