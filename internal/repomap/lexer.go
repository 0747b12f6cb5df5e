package repomap

import (
	"regexp"

	"github.com/repomapper/repomap/internal/treesitter"
)

// identifierToken matches a run of letters, digits, and underscores that
// does not start with a digit — the lexer-fallback's identifier class
// (§9: "a reimplementation may substitute any identifier-producing
// tokenizer (regex-based is sufficient)").
var identifierToken = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// tokenizeIdentifiers implements the §4.2 step-1 lexer fallback: it emits a
// ref-kind Tag for every identifier-class token in source, with no
// definitions. Used both for languages outside the curated grammar set and
// to recover references when a grammar query yielded zero refs (step 4).
func tokenizeIdentifiers(relPath, language, source string) []treesitter.Tag {
	var tags []treesitter.Tag
	line := 1
	lineStart := 0
	for _, loc := range identifierToken.FindAllStringIndex(source, -1) {
		start := loc[0]
		for lineStart < start {
			if source[lineStart] == '\n' {
				line++
			}
			lineStart++
		}
		tags = append(tags, treesitter.Tag{
			RelPath:  relPath,
			Name:     source[loc[0]:loc[1]],
			Kind:     "ref",
			Line:     line,
			Language: language,
			NodeType: "lexer_token",
		})
	}
	return tags
}
