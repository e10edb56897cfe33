package chunker

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n\s*`)

// Normalize converts text to Unicode NFC and collapses whitespace runs to a
// single space while keeping paragraph breaks as a blank line.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	paragraphs := paragraphBreak.Split(text, -1)
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if collapsed := strings.Join(strings.Fields(p), " "); collapsed != "" {
			kept = append(kept, collapsed)
		}
	}
	return strings.Join(kept, "\n\n")
}
