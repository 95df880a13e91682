// Package queryexpand implements the query expander (spec.md 4.7): a
// pure function that augments a short or ambiguous query with salient
// tokens carried over from the session's recent queries.
package queryexpand

import (
	"strings"

	"github.com/scrypster/memento/internal/session"
	"github.com/scrypster/memento/pkg/types"
)

// shortQueryWordThreshold is the word count at or below which a query is
// treated as "short or ambiguous" and eligible for expansion.
const shortQueryWordThreshold = 3

// maxAddedTokens bounds how many salient tokens from recent queries get
// spliced into the expansion, keeping the result well inside the
// 1000-char query bound.
const maxAddedTokens = 5

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"to": true, "for": true, "and": true, "or": true, "is": true, "it": true,
	"my": true, "this": true, "that": true, "with": true, "at": true,
}

// Expand returns the expanded query for currentQuery given the
// session's recent queries. If currentQuery has more than
// shortQueryWordThreshold words, it is returned unchanged. The result
// never introduces one of the disallowed injection patterns and is
// truncated to stay within types.MaxQueryChars.
func Expand(currentQuery string, recentQueries []session.RecentQuery) string {
	words := strings.Fields(currentQuery)
	if len(words) > shortQueryWordThreshold || len(recentQueries) == 0 {
		return currentQuery
	}

	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = true
	}

	var added []string
	for i := len(recentQueries) - 1; i >= 0 && len(added) < maxAddedTokens; i-- {
		for _, tok := range strings.Fields(recentQueries[i].QueryText) {
			lower := strings.ToLower(strings.Trim(tok, ".,!?;:\"'"))
			if lower == "" || stopwords[lower] || seen[lower] {
				continue
			}
			seen[lower] = true
			added = append(added, lower)
			if len(added) >= maxAddedTokens {
				break
			}
		}
	}

	if len(added) == 0 {
		return currentQuery
	}

	expanded := currentQuery + " " + strings.Join(added, " ")

	if len(types.MatchedInjectionPatterns(expanded)) > 0 {
		return currentQuery
	}

	if len([]rune(expanded)) > types.MaxQueryChars {
		runes := []rune(expanded)
		expanded = string(runes[:types.MaxQueryChars])
	}

	return expanded
}
