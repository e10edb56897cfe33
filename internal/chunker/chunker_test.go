package chunker_test

import (
	"strings"
	"testing"

	"lectern/internal/chunker"
)

func TestSplitReturnsShortTextUnchanged(t *testing.T) {
	chunks := chunker.Split("Hello there.", 50)
	if len(chunks) != 1 || chunks[0] != "Hello there." {
		t.Fatalf("unexpected chunks %q", chunks)
	}
	if got := chunker.Split("   ", 10); got != nil {
		t.Fatalf("expected no chunks for blank text, got %q", got)
	}
}

func TestSplitPrefersSentenceBoundaries(t *testing.T) {
	text := `He said "Stop." Then he left, slowly. Nobody followed him home that night.`
	chunks := chunker.Split(text, 40)
	if chunks[0] != `He said "Stop." Then he left, slowly.` {
		t.Fatalf("expected split after closing quote sentence, got %q", chunks)
	}
}

func TestSplitFallbackOrder(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		max   int
		first string
	}{
		{"paragraph", "alpha beta gamma\n\ndelta epsilon zeta", 22, "alpha beta gamma"},
		{"comma", "alpha beta, gamma delta epsilon", 20, "alpha beta,"},
		{"space", "alpha beta gamma delta", 13, "alpha beta"},
		{"hard", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"decimal is not a sentence end", "pi is 3.14 and e is 2.71 ok", 12, "pi is 3.14"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := chunker.Split(tc.text, tc.max)
			if chunks[0] != tc.first {
				t.Fatalf("first chunk %q, want %q (all %q)", chunks[0], tc.first, chunks)
			}
		})
	}
}

func TestSplitInvariants(t *testing.T) {
	texts := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40),
		strings.Repeat("word ", 300),
		strings.Repeat("Ünïcödé façade, naïve café! ", 50),
		"Short. " + strings.Repeat("x", 120) + " tail end.",
	}
	for _, text := range texts {
		for _, max := range []int{7, 25, 80, 200} {
			chunks := chunker.Split(text, max)
			for i, chunk := range chunks {
				if chunk == "" {
					t.Fatalf("max %d: empty chunk at %d", max, i)
				}
				if chunker.Len(chunk) > max {
					t.Fatalf("max %d: chunk %d has %d runes", max, i, chunker.Len(chunk))
				}
			}
			if !hasLongWord(text, max) {
				if got, want := strings.Fields(chunker.Join(chunks)), strings.Fields(text); strings.Join(got, " ") != strings.Join(want, " ") {
					t.Fatalf("max %d: word sequence changed", max)
				}
			}
		}
	}
}

func hasLongWord(text string, max int) bool {
	for _, w := range strings.Fields(text) {
		if chunker.Len(w) > max {
			return true
		}
	}
	return false
}

func TestWithContextLimitsNeighbourText(t *testing.T) {
	long := strings.Repeat("a", 800)
	chunks := chunker.WithContext([]string{long, "middle", long})

	if chunks[0].PreviousText != "" {
		t.Fatal("first chunk must not carry previous context")
	}
	if chunks[0].NextText != "middle" {
		t.Fatalf("unexpected next context %q", chunks[0].NextText)
	}
	if chunker.Len(chunks[1].PreviousText) != chunker.ContextChars || chunker.Len(chunks[1].NextText) != chunker.ContextChars {
		t.Fatalf("context must be capped at %d runes", chunker.ContextChars)
	}
	if chunks[2].NextText != "" || chunks[2].Index != 2 {
		t.Fatalf("unexpected last chunk %+v", chunks[2])
	}
}

func TestNormalize(t *testing.T) {
	in := "  Café   au\tlait \n \n\n  second   paragraph\nline  "
	want := "Café au lait\n\nsecond paragraph line"
	if got := chunker.Normalize(in); got != want {
		t.Fatalf("Normalize = %q, want %q", got, want)
	}
}
