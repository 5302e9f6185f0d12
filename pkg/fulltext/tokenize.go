// Package fulltext maintains the incrementally updated BM25 index: inverted
// postings, a live document-length table, and running corpus statistics, all
// inside the shared transactional store.
package fulltext

import (
	"strings"
	"unicode"
)

// Tokenize normalizes text for indexing and querying: lowercase, split on
// any non-alphanumeric rune, drop single-rune tokens and stop words.
func Tokenize(text string) []string {
	text = strings.ToLower(text)

	words := strings.FieldsFunc(text, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	})

	var tokens []string
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if stopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// WordCount reports the number of normalized words in text before stop-word
// filtering. Document length uses this count, so stop words still contribute
// to BM25 length normalization even though they carry no postings.
func WordCount(text string) int {
	return len(strings.FieldsFunc(strings.ToLower(text), func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c)
	}))
}

// termFrequencies folds a token stream into per-term counts.
func termFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

// stopWords is a fixed minimal list of generic words. Domain terms are
// deliberately not filtered.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "he": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"with": true, "this": true, "but": true, "they": true,
	"we": true, "you": true, "your": true, "my": true, "their": true,
	"been": true, "do": true, "does": true, "did": true,
}
