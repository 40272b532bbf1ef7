package text

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Normalize collapses runs of whitespace into single spaces and trims the ends.
func Normalize(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Split cuts text into overlapping windows of at most size runes, stepping
// size-overlap runes between window starts so that adjacent windows share
// context. Windows prefer to end on a paragraph, sentence or word boundary
// found in the back half of the window; a window with no such boundary is cut
// hard at size. The result is deterministic for identical input, and any text
// with non-whitespace content yields at least one chunk. Whitespace-only text
// is treated as empty.
func Split(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := pos + size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakPoint(runes, pos, end)
		}

		chunk := strings.TrimSpace(string(runes[pos:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}

		next := end - overlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}

	return chunks
}

// breakPoint searches the back half of the window [start, hardEnd) for the
// best place to cut: end of paragraph, then end of sentence, then any space.
func breakPoint(runes []rune, start, hardEnd int) int {
	floor := start + (hardEnd-start)/2

	window := string(runes[floor:hardEnd])
	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return floor + len([]rune(window[:i]))
	}
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.LastIndex(window, sep); i >= 0 {
			return floor + len([]rune(window[:i+1]))
		}
	}
	if i := strings.LastIndex(window, " "); i >= 0 {
		return floor + len([]rune(window[:i]))
	}
	return hardEnd
}
