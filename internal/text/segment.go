package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations are words whose trailing period does not end a
// sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {},
	"sr": {}, "jr": {}, "st": {},
	"etc": {}, "vs": {}, "e.g": {}, "i.e": {},
	"inc": {}, "ltd": {}, "co": {}, "corp": {},
	"no": {}, "fig": {}, "approx": {},
}

// SplitSentences splits prose into sentences on terminal punctuation,
// keeping abbreviations, initials, decimal numbers, and ellipses
// intact.
func SplitSentences(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if !isBoundary(runes, i) {
			continue
		}
		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}
	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}
	return sentences
}

func isBoundary(runes []rune, pos int) bool {
	r := runes[pos]
	if r != '.' && r != '!' && r != '?' {
		return false
	}
	if r == '.' && (isEllipsis(runes, pos) || isDecimal(runes, pos) || isAbbreviation(runes, pos)) {
		return false
	}
	if pos == len(runes)-1 {
		return true
	}
	return unicode.IsSpace(runes[pos+1])
}

func isEllipsis(runes []rune, pos int) bool {
	if pos > 0 && runes[pos-1] == '.' {
		return true
	}
	return pos+1 < len(runes) && runes[pos+1] == '.'
}

func isDecimal(runes []rune, pos int) bool {
	return pos > 0 && pos+1 < len(runes) &&
		unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1])
}

func isAbbreviation(runes []rune, pos int) bool {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	start++
	if start >= pos {
		return false
	}
	word := string(runes[start:pos])

	// Single letters are initials, as in "J. Smith".
	if utf8.RuneCountInString(word) == 1 && unicode.IsLetter(runes[start]) {
		return true
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

// Segments packs prose into pieces of at most limit runes, cutting at
// sentence boundaries where possible and inside sentences on word
// boundaries only when a single sentence exceeds the limit.
func Segments(s string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var segments []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			segments = append(segments, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, sentence := range SplitSentences(s) {
		n := utf8.RuneCountInString(sentence)
		if n > limit {
			flush()
			segments = append(segments, splitOversized(sentence, limit)...)
			continue
		}
		if currentLen > 0 && currentLen+1+n > limit {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += n
	}
	flush()
	return segments
}

// splitOversized breaks one sentence on word boundaries, and on raw
// runes when a single word alone exceeds the limit.
func splitOversized(sentence string, limit int) []string {
	var out []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if currentLen > 0 {
			out = append(out, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(sentence) {
		n := utf8.RuneCountInString(word)
		if n > limit {
			flush()
			runes := []rune(word)
			for len(runes) > limit {
				out = append(out, string(runes[:limit]))
				runes = runes[limit:]
			}
			current.WriteString(string(runes))
			currentLen = len(runes)
			continue
		}
		if currentLen > 0 && currentLen+1+n > limit {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(word)
		currentLen += n
	}
	flush()
	return out
}
