package search

import (
	"strings"
	"testing"
)

func TestSnippetWholeWordMatch(t *testing.T) {
	content := []byte("The catalog lists many items. The cat sat on the mat.")
	got := Snippet(content, []string{"cat"})
	// "catalog" must not match; the snippet centers on the real "cat".
	if !strings.Contains(got, "cat sat on the mat") {
		t.Errorf("snippet = %q, should contain the whole-word match context", got)
	}
}

func TestSnippetCaseInsensitive(t *testing.T) {
	content := []byte("Bridges of the world. The Manhattan Bridge is a suspension bridge.")
	got := Snippet(content, []string{"MANHATTAN"})
	if !strings.Contains(got, "Manhattan Bridge") {
		t.Errorf("snippet = %q, should match case-insensitively", got)
	}
}

func TestSnippetNoMatchReturnsHead(t *testing.T) {
	long := strings.Repeat("alpha beta gamma delta ", 20) // > 200 bytes
	got := Snippet([]byte(long), []string{"zzz"})
	if len(got) > 210 {
		t.Errorf("head snippet too long: %d bytes", len(got))
	}
	if !strings.HasPrefix(got, "alpha beta") {
		t.Errorf("snippet = %q, should start at the head", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %q, should end with ellipsis", got)
	}
	// Trimmed at a word boundary: no split token before the ellipsis.
	body := strings.TrimSuffix(got, "...")
	last := body[strings.LastIndex(body, " ")+1:]
	switch last {
	case "alpha", "beta", "gamma", "delta":
	default:
		t.Errorf("snippet cut mid-word: %q", last)
	}
}

func TestSnippetShortContent(t *testing.T) {
	content := []byte("short passage")
	if got := Snippet(content, []string{"zzz"}); got != "short passage" {
		t.Errorf("snippet = %q, want the full short content", got)
	}
	if got := Snippet(content, []string{"passage"}); got != "short passage" {
		t.Errorf("snippet = %q, want the full short content", got)
	}
}

func TestSnippetEllipses(t *testing.T) {
	pre := strings.Repeat("x ", 150)
	post := strings.Repeat("y ", 150)
	content := []byte(pre + "needle here" + " " + post)
	got := Snippet(content, []string{"needle"})
	if !strings.HasPrefix(got, "...") {
		t.Errorf("snippet = %q, should have a leading ellipsis", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("snippet = %q, should have a trailing ellipsis", got)
	}
	if !strings.Contains(got, "needle here") {
		t.Errorf("snippet = %q, should contain the match", got)
	}
}

func TestSnippetSentenceBoundary(t *testing.T) {
	// The match sits 64 bytes in, so the 50-byte context window starts just
	// past the first sentence's terminator and snaps forward to it.
	content := []byte("Old news ends. Padding words fill this space out to sixty bytes needle appears here and trailing text continues afterwards.")
	got := Snippet(content, []string{"needle"})
	if strings.Contains(got, "Old news") {
		t.Errorf("snippet = %q, should start after the previous sentence terminator", got)
	}
	if !strings.HasPrefix(got, "...Padding words") {
		t.Errorf("snippet = %q, should begin at the sentence start", got)
	}
}

func TestSnippetEarliestTermWins(t *testing.T) {
	content := []byte("zebra appears first in this text, while aardvark shows up later on in the passage.")
	got := Snippet(content, []string{"aardvark", "zebra"})
	if !strings.Contains(got, "zebra appears first") {
		t.Errorf("snippet = %q, should anchor on the earliest match", got)
	}
}

func TestSnippetEmptyInputs(t *testing.T) {
	if got := Snippet(nil, []string{"x"}); got != "" {
		t.Errorf("nil content gave %q", got)
	}
	if got := Snippet([]byte("some text"), nil); got != "some text" {
		t.Errorf("no terms gave %q", got)
	}
}

func TestHighlightWrapsMatches(t *testing.T) {
	got := Highlight("the cat sat", []string{"cat"})
	want := "the " + highlightOn + "cat" + highlightOff + " sat"
	if got != want {
		t.Errorf("Highlight = %q, want %q", got, want)
	}
}

func TestHighlightWholeWordOnly(t *testing.T) {
	got := Highlight("catalog of cat facts", []string{"cat"})
	if strings.Contains(got, highlightOn+"cat"+highlightOff+"alog") {
		t.Errorf("Highlight = %q, matched inside a word", got)
	}
	if !strings.Contains(got, highlightOn+"cat"+highlightOff+" facts") {
		t.Errorf("Highlight = %q, missed the whole word", got)
	}
}

func TestHighlightNoMatch(t *testing.T) {
	if got := Highlight("nothing to see", []string{"xyzzy"}); got != "nothing to see" {
		t.Errorf("Highlight = %q, want unchanged", got)
	}
}

func TestHighlightOverlappingTerms(t *testing.T) {
	got := Highlight("big bigger biggest", []string{"big", "bigger"})
	// Each word highlighted at most once, no nested codes.
	if strings.Count(got, highlightOn) != 2 {
		t.Errorf("Highlight = %q, want exactly 2 highlights", got)
	}
}

func TestFindWholeWord(t *testing.T) {
	content := []byte("a cat, a catalog, a CAT")
	if pos := findWholeWord(content, "cat", 0); pos != 2 {
		t.Errorf("first match at %d, want 2", pos)
	}
	if pos := findWholeWord(content, "cat", 3); pos != 20 {
		t.Errorf("second match at %d, want 20 (skipping catalog)", pos)
	}
	if pos := findWholeWord(content, "missing", 0); pos != -1 {
		t.Errorf("missing term matched at %d", pos)
	}
}
