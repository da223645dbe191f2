package service

import (
	"strings"
	"unicode"
)

const maxQueryKeywords = 5

// stopwords are skipped during keyword extraction. Question words carry no
// retrieval signal for substring matching.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "when": {}, "where": {}, "who": {}, "which": {},
	"and": {}, "for": {}, "with": {}, "does": {}, "can": {},
}

// ExtractKeywords pulls up to five significant terms from a query, lowercased,
// in order of appearance. Terms of length <= 2 and stopwords are skipped. An
// empty result degrades retrieval to vector-only mode.
func ExtractKeywords(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	keywords := make([]string, 0, maxQueryKeywords)
	seen := make(map[string]struct{}, maxQueryKeywords)
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, ok := stopwords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == maxQueryKeywords {
			break
		}
	}
	return keywords
}
