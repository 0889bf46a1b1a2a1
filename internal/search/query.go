// Package search evaluates free-text queries against a loaded index using
// document-at-a-time BM25 scoring, and extracts query-dependent snippets
// from winning documents.
package search

import (
	"strings"

	"github.com/yuqi-zhai/passagerank/internal/tokenizer"
)

// Mode selects conjunctive or disjunctive query semantics.
type Mode int

const (
	ModeOR Mode = iota
	ModeAND
)

// ParseMode maps a mode string to a Mode. Anything other than "and" falls
// back to OR, the default, silently.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), "and") {
		return ModeAND
	}
	return ModeOR
}

func (m Mode) String() string {
	if m == ModeAND {
		return "and"
	}
	return "or"
}

// QueryTerms tokenizes a query and deduplicates the tokens with set
// semantics, keeping first-occurrence order so evaluation is deterministic.
func QueryTerms(query string) []string {
	tokens := tokenizer.Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}
