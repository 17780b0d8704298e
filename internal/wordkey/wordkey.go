// Package wordkey turns raw Latin tokens into canonical dictionary lookup keys.
package wordkey

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ligatures are folded before decomposition; NFD leaves them intact.
var ligatures = strings.NewReplacer(
	"æ", "ae",
	"œ", "oe",
	"ſ", "s",
	"ﬁ", "fi",
	"ﬂ", "fl",
)

// Normalize returns the lookup key for token: lowercased, ligatures folded,
// diacritics stripped, and everything outside [a-z] removed.
// Normalize(Normalize(w)) == Normalize(w) for every w.
func Normalize(token string) string {
	if token == "" {
		return ""
	}

	s := ligatures.Replace(strings.ToLower(token))

	// A fresh transformer per call: transform.Chain is stateful and not safe to share.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TrimPunctuation strips leading and trailing punctuation from a display token.
// Callers trim before calling Normalize so that "terram," and "terram" match.
func TrimPunctuation(token string) string {
	return strings.TrimFunc(token, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Token is one whitespace-delimited word of display text with its key.
type Token struct {
	Text string // as displayed, punctuation included
	Key  string
}

// Tokens splits display text into tokens in reading order. Tokens that
// normalise to an empty key (bare punctuation, verse markers) are dropped.
func Tokens(text string) []Token {
	fields := strings.Fields(text)
	out := make([]Token, 0, len(fields))
	for _, f := range fields {
		key := Normalize(TrimPunctuation(f))
		if key == "" {
			continue
		}
		out = append(out, Token{Text: f, Key: key})
	}
	return out
}
