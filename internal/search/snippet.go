package search

import (
	"sort"
	"strings"

	"github.com/yuqi-zhai/passagerank/internal/tokenizer"
)

const (
	snippetLength  = 200 // maximum snippet length in bytes
	contextWindow  = 50  // context kept before the first matched term
	boundaryWindow = 100 // how far to look for a sentence terminator
)

// Snippet extracts a short excerpt of content around the earliest
// whole-word occurrence of any query term. Terms are matched
// case-insensitively against the original (non-tokenized) content. When no
// term occurs, the head of the document is returned, trimmed at a word
// boundary. Ellipses mark truncation on either side.
func Snippet(content []byte, queryTerms []string) string {
	if len(content) == 0 || len(queryTerms) == 0 {
		return truncate(content)
	}

	bestPos := -1
	for _, term := range queryTerms {
		if term == "" {
			continue
		}
		pos := findWholeWord(content, term, 0)
		if pos >= 0 && (bestPos < 0 || pos < bestPos) {
			bestPos = pos
		}
	}
	if bestPos < 0 {
		return truncate(content)
	}

	start := 0
	if bestPos > contextWindow {
		start = bestPos - contextWindow
	}
	end := start + snippetLength
	if end > len(content) {
		end = len(content)
	}

	if start > 0 {
		if s := lastIndexAny(content, ".!?\n", start); s >= 0 && start-s < boundaryWindow {
			start = s + 1
			for start < len(content) && isSpace(content[start]) {
				start++
			}
		} else if w := lastIndexAny(content, " \t\n", start); w > 0 {
			start = w + 1
		}
	}
	if end < len(content) {
		if s := indexAny(content, ".!?\n", end); s >= 0 && s-end < boundaryWindow {
			end = s + 1
		} else if w := indexAny(content, " \t\n", end); w >= 0 {
			end = w
		}
	}

	snippet := strings.TrimSpace(string(content[start:end]))
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(content) {
		snippet = snippet + "..."
	}
	return snippet
}

const (
	highlightOn  = "\x1b[1;33m"
	highlightOff = "\x1b[0m"
)

// Highlight wraps every whole-word occurrence of the query terms in ANSI
// color codes. Overlapping matches are dropped. Purely presentational; the
// HTTP surface returns plain snippets.
func Highlight(snippet string, queryTerms []string) string {
	content := []byte(snippet)
	type match struct{ start, length int }
	var matches []match

	for _, term := range queryTerms {
		if term == "" {
			continue
		}
		pos := 0
		for pos < len(content) {
			p := findWholeWord(content, term, pos)
			if p < 0 {
				break
			}
			matches = append(matches, match{start: p, length: len(term)})
			pos = p + len(term)
		}
	}
	if len(matches) == 0 {
		return snippet
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	kept := matches[:1]
	for _, m := range matches[1:] {
		last := kept[len(kept)-1]
		if m.start >= last.start+last.length {
			kept = append(kept, m)
		}
	}

	var sb strings.Builder
	prev := 0
	for _, m := range kept {
		sb.Write(content[prev:m.start])
		sb.WriteString(highlightOn)
		sb.Write(content[m.start : m.start+m.length])
		sb.WriteString(highlightOff)
		prev = m.start + m.length
	}
	sb.Write(content[prev:])
	return sb.String()
}

// findWholeWord returns the byte offset of the first case-insensitive
// whole-word occurrence of term in content at or after from, or -1. A match
// requires the bytes on both sides to be non-alphanumeric or absent.
func findWholeWord(content []byte, term string, from int) int {
	if len(term) == 0 || from >= len(content) {
		return -1
	}
	for i := from; i+len(term) <= len(content); i++ {
		if !equalFold(content[i:i+len(term)], term) {
			continue
		}
		if i > 0 && tokenizer.IsWordByte(content[i-1]) {
			continue
		}
		if end := i + len(term); end < len(content) && tokenizer.IsWordByte(content[end]) {
			continue
		}
		return i
	}
	return -1
}

func equalFold(b []byte, term string) bool {
	for i := 0; i < len(term); i++ {
		if lower(b[i]) != lower(term[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// truncate returns the first snippetLength bytes trimmed back to a word
// boundary, with a trailing ellipsis when the document continues.
func truncate(content []byte) string {
	if len(content) <= snippetLength {
		return strings.TrimSpace(string(content))
	}
	end := snippetLength
	if w := lastIndexAny(content, " \t\n", end); w > 0 {
		end = w
	}
	return strings.TrimSpace(string(content[:end])) + "..."
}

// lastIndexAny returns the largest index < before of any byte in chars.
func lastIndexAny(content []byte, chars string, before int) int {
	if before > len(content) {
		before = len(content)
	}
	for i := before - 1; i >= 0; i-- {
		if strings.IndexByte(chars, content[i]) >= 0 {
			return i
		}
	}
	return -1
}

// indexAny returns the smallest index >= from of any byte in chars.
func indexAny(content []byte, chars string, from int) int {
	for i := from; i < len(content); i++ {
		if strings.IndexByte(chars, content[i]) >= 0 {
			return i
		}
	}
	return -1
}
