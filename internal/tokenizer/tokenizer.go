// Package tokenizer provides the text normalization shared by the index
// builder and the query path. ASCII letters and digits are folded to
// lowercase; every other byte is a separator. Both sides must produce
// identical token sequences for identical inputs, so this is the only
// tokenizer in the repository.
package tokenizer

// Tokenize splits text into lowercase ASCII-alphanumeric tokens. There is
// no stopword filtering, no stemming, and no minimum token length.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/6)
	start := -1
	buf := make([]byte, 0, 32)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			if start < 0 {
				start = i
				buf = buf[:0]
			}
			buf = append(buf, c)
		case c >= 'A' && c <= 'Z':
			if start < 0 {
				start = i
				buf = buf[:0]
			}
			buf = append(buf, c+('a'-'A'))
		default:
			if start >= 0 {
				tokens = append(tokens, string(buf))
				start = -1
			}
		}
	}
	if start >= 0 {
		tokens = append(tokens, string(buf))
	}
	return tokens
}

// TermFrequencies tallies token counts for a single document.
func TermFrequencies(text string) map[string]uint32 {
	freqs := make(map[string]uint32)
	for _, tok := range Tokenize(text) {
		freqs[tok]++
	}
	return freqs
}

// IsWordByte reports whether c belongs to a token. Used by the snippet
// generator for whole-word matching.
func IsWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
