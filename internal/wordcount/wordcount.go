// Package wordcount counts words in mixed CJK and Latin-script text.
//
// Each CJK ideograph (U+4E00..U+9FFF) is one word. Outside CJK spans a word
// is a maximal run of letters, digits, underscores and the joiners ^ - . '
// so "x^2", "sub-task" and "e.g." each count once. Other punctuation and
// whitespace (including the ideographic space U+3000) separate words and
// are never counted. Combining marks are not letters, so they split runs.
package wordcount

import "unicode"

// Counts breaks a word count into its CJK and non-CJK parts.
type Counts struct {
	CJK   int `json:"cjk"`
	Other int `json:"other"`
}

// Total returns the combined word count.
func (c Counts) Total() int {
	return c.CJK + c.Other
}

// Count returns the number of words in text.
func Count(text string) int {
	return Breakdown(text).Total()
}

// Breakdown returns the CJK and non-CJK word counts for text.
func Breakdown(text string) Counts {
	var c Counts
	inWord := false
	for _, r := range text {
		switch {
		case isCJK(r):
			c.CJK++
			inWord = false
		case isWordRune(r):
			if !inWord {
				c.Other++
				inWord = true
			}
		default:
			inWord = false
		}
	}
	return c
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

func isWordRune(r rune) bool {
	switch r {
	case '^', '-', '.', '\'', '_':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}
