package chunking

import "unicode/utf8"

func isSentencePunct(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isBoundarySpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	default:
		return false
	}
}

// sentenceBreaks calls fn with the offset of the whitespace run and the offset
// of the upper-case letter for every ". X" style boundary in text.
func sentenceBreaks(text string, fn func(spaceStart, letter int) bool) {
	for i := 0; i < len(text); i++ {
		if !isSentencePunct(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && isBoundarySpace(text[j]) {
			j++
		}
		if j == i+1 || j >= len(text) {
			continue
		}
		if text[j] >= 'A' && text[j] <= 'Z' {
			if !fn(i+1, j) {
				return
			}
		}
		i = j - 1
	}
}

// lastSentenceStart returns the offset of the letter opening the last sentence
// boundary in text, or -1.
func lastSentenceStart(text string) int {
	last := -1
	sentenceBreaks(text, func(_, letter int) bool {
		last = letter
		return true
	})
	return last
}

// firstSentenceBreak returns the offset of the whitespace before the first
// sentence boundary in text, or -1.
func firstSentenceBreak(text string) int {
	first := -1
	sentenceBreaks(text, func(spaceStart, _ int) bool {
		first = spaceStart
		return false
	})
	return first
}

func runeFloor(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	if i <= 0 {
		return 0
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
