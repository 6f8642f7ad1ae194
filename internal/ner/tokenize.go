package ner

import (
	"strings"
	"unicode"
)

// Token is a word or punctuation mark with half-open rune offsets
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into runs of letters and digits; every other
// non-space rune becomes its own token.
func Tokenize(text string) []Token {
	var tokens []Token
	runes := []rune(text)
	start := -1

	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Text: string(runes[start:end]), Start: start, End: end})
			start = -1
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			if start < 0 {
				start = i
			}
		case unicode.IsSpace(r):
			flush(i)
		default:
			flush(i)
			tokens = append(tokens, Token{Text: string(r), Start: i, End: i + 1})
		}
	}
	flush(len(runes))
	return tokens
}

// shape maps a word to its character classes, e.g. "Ab-12" -> "Xx-dd".
// Runs longer than four of the same class are collapsed.
func shape(word string) string {
	var b strings.Builder
	var last rune
	run := 0
	for _, r := range word {
		var c rune
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLower(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		default:
			c = r
		}
		if c == last {
			run++
		} else {
			run = 1
			last = c
		}
		if run <= 4 {
			b.WriteRune(c)
		}
	}
	return b.String()
}
