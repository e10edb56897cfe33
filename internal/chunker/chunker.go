package chunker

import (
	"strings"
	"unicode"
)

// ContextChars is the maximum number of runes of neighbouring text attached
// to a chunk as previous/next context.
const ContextChars = 500

// Chunk is one provider request worth of text together with its context hints.
type Chunk struct {
	Text         string
	Index        int
	PreviousText string
	NextText     string
}

// Split breaks text into chunks of at most max runes. Text that fits is
// returned unchanged as a single chunk. Chunks are trimmed and never empty.
// A max of zero or less disables splitting.
func Split(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = appendTrimmed(chunks, runes)
			break
		}
		cut := breakPoint(runes, max)
		chunks = appendTrimmed(chunks, runes[:cut])
		runes = trimLeftSpace(runes[cut:])
	}
	return chunks
}

// breakPoint returns the exclusive end of the next chunk inside runes[:max].
func breakPoint(runes []rune, max int) int {
	if cut := lastSentenceEnd(runes, max); cut > 0 {
		return cut
	}
	if cut := lastParagraphBreak(runes, max); cut > 0 {
		return cut
	}
	if cut := lastComma(runes, max); cut > 0 {
		return cut
	}
	if cut := lastSpace(runes, max); cut > 0 {
		return cut
	}
	return max
}

func lastSentenceEnd(runes []rune, max int) int {
	for i := max - 1; i >= 0; i-- {
		if !isTerminator(runes[i]) {
			continue
		}
		end := i + 1
		for end < max && isCloser(runes[end]) {
			end++
		}
		if end == len(runes) || unicode.IsSpace(runes[end]) {
			return end
		}
	}
	return 0
}

func lastParagraphBreak(runes []rune, max int) int {
	for i := max - 2; i > 0; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i
		}
	}
	return 0
}

func lastComma(runes []rune, max int) int {
	for i := max - 1; i >= 0; i-- {
		if runes[i] != ',' {
			continue
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}
	return 0
}

func lastSpace(runes []rune, max int) int {
	// A space at max itself is a clean break too.
	if max < len(runes) && unicode.IsSpace(runes[max]) {
		return max
	}
	for i := max - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return 0
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']':
		return true
	default:
		return false
	}
}

func appendTrimmed(chunks []string, runes []rune) []string {
	chunk := strings.TrimSpace(string(runes))
	if chunk == "" {
		return chunks
	}
	return append(chunks, chunk)
}

func trimLeftSpace(runes []rune) []rune {
	for len(runes) > 0 && unicode.IsSpace(runes[0]) {
		runes = runes[1:]
	}
	return runes
}

// WithContext attaches previous/next context to each chunk.
func WithContext(chunks []string) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, text := range chunks {
		out[i] = Chunk{Text: text, Index: i}
		if i > 0 {
			out[i].PreviousText = Tail(chunks[i-1], ContextChars)
		}
		if i+1 < len(chunks) {
			out[i].NextText = Head(chunks[i+1], ContextChars)
		}
	}
	return out
}

// Join rejoins chunks with single spaces.
func Join(chunks []string) string {
	return strings.Join(chunks, " ")
}

// Head returns at most n leading runes of text.
func Head(text string, n int) string {
	runes := []rune(text)
	if n <= 0 {
		return ""
	}
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// Tail returns at most n trailing runes of text.
func Tail(text string, n int) string {
	runes := []rune(text)
	if n <= 0 {
		return ""
	}
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// Len returns the length of text in runes, the unit every limit in this
// package is measured in.
func Len(text string) int {
	return len([]rune(text))
}
