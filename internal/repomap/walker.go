package repomap

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// defaultSkipDirs are directory names never worth walking into when
// assembling the other_files universe for GenerateMap.
var defaultSkipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	cacheDirName:   {},
}

// WalkRepoFiles is a caller-side helper that assembles the other_files
// argument for Request: a sorted, root-relative listing of regular files
// under rootDir, skipping VCS/dependency directories and this package's own
// persisted-state directory, with excludeGlobs (doublestar patterns)
// filtered out. The core itself never walks the filesystem — it only
// receives an already-resolved file list (§6).
func WalkRepoFiles(ctx context.Context, rootDir string, excludeGlobs []string) ([]string, error) {
	root := strings.TrimSpace(rootDir)
	if root == "" {
		return nil, nil
	}

	files := make([]string, 0, 256)
	conf := fastwalk.Config{Follow: false}

	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if _, skip := defaultSkipDirs[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil && walkErr != context.Canceled {
		return nil, walkErr
	}

	if len(excludeGlobs) > 0 {
		filtered := files[:0]
		for _, f := range files {
			if !matchesAnyExcludeGlob(f, excludeGlobs) {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}

	sort.Strings(files)
	return files, ctx.Err()
}

// matchesAnyExcludeGlob reports whether path matches any doublestar
// pattern in patterns. Malformed patterns never match.
func matchesAnyExcludeGlob(path string, patterns []string) bool {
	for _, p := range patterns {
		if matched, err := doublestar.Match(p, path); err == nil && matched {
			return true
		}
	}
	return false
}
