package speller

import (
	"unicode"
	"unicode/utf8"
)

// Token is a word in the input with its byte offsets.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits text into words. A word is a run of letters, digits and
// combining marks; an apostrophe or hyphen is kept when it sits between two
// word characters ("don't", "well-known"). Runs without any letter, such as
// bare numbers, are dropped.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	hasLetter := false

	flush := func(end int) {
		if start >= 0 && hasLetter {
			tokens = append(tokens, Token{Text: text[start:end], Start: start, End: end})
		}
		start = -1
		hasLetter = false
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
			if unicode.IsLetter(r) {
				hasLetter = true
			}
		case isJoiner(r) && start >= 0 && i+size < len(text):
			next, _ := utf8.DecodeRuneInString(text[i+size:])
			if !isWordRune(next) {
				flush(i)
			}
		default:
			flush(i)
		}
		i += size
	}
	flush(len(text))
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isJoiner(r rune) bool {
	switch r {
	case '\'', '’', '-', '‐':
		return true
	}
	return false
}
