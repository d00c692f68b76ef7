package tfidf

import "strings"

// Tokenize lower-cases text and splits it on every run of non-word characters
// ([^A-Za-z0-9_]). Tokens shorter than two characters are dropped. Order and
// duplicates are preserved so the result can be counted as term frequency.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordChar(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_'
}
