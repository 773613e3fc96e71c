package search

import "strings"

const punctCutset = ".,!?;:'\"-()[]{}"

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {},
}

// searchTerms splits text into lowercased words with surrounding
// punctuation trimmed and stop words removed. In-word punctuation is kept
// so addresses like "alice@example.com" stay one term.
func searchTerms(text string) []string {
	var terms []string
	for _, word := range strings.Fields(text) {
		term := strings.ToLower(strings.Trim(word, punctCutset))
		if term == "" {
			continue
		}
		if _, stop := stopWords[term]; stop {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// containsAllQueryWords reports whether every query term appears in the
// document text.
func containsAllQueryWords(document, query string) bool {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return false
	}

	seen := make(map[string]struct{})
	for _, term := range searchTerms(document) {
		seen[term] = struct{}{}
	}
	for _, term := range terms {
		if _, ok := seen[term]; !ok {
			return false
		}
	}
	return true
}
