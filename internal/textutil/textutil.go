// Package textutil normalises studio input text and estimates how long it
// takes to speak.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

// WordsPerSecond is the speaking rate behind EstimateDuration (150 wpm).
const WordsPerSecond = 2.5

const minimumDuration = 0.5

var whitespacePattern = regexp.MustCompile(`\s+`)

var punctuationReplacer = strings.NewReplacer(
	"—", ", ",
	"–", "-",
	"…", "...",
	"\r\n", "\n",
)

// Normalize collapses runs of whitespace, folds typographic dashes and
// ellipses into plain forms and trims the result.
func Normalize(text string) string {
	if text == "" {
		return text
	}

	text = punctuationReplacer.Replace(text)
	text = whitespacePattern.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// IsBlank reports whether text has no printable content.
func IsBlank(text string) bool {
	return strings.TrimFunc(text, unicode.IsSpace) == ""
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// EstimateDuration returns the expected spoken length of text in seconds.
// Blank text is zero; anything else is at least half a second.
func EstimateDuration(text string) float64 {
	words := WordCount(text)
	if words == 0 {
		return 0
	}

	seconds := float64(words) / WordsPerSecond
	if seconds < minimumDuration {
		return minimumDuration
	}

	return seconds
}

// Truncate shortens text to at most limit runes, appending "..." when cut.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}

	const ellipsis = "..."

	if limit <= len(ellipsis) {
		return string(runes[:limit])
	}

	return string(runes[:limit-len(ellipsis)]) + ellipsis
}
