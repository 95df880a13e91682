package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
)

// TextSearch supplements spec.md 4.4's vector-only retrieve with a lexical
// path used by the code-search/list-filtering surface (SPEC_FULL.md), since
// retrieve_memories itself takes a query vector, not text.
//
// The FTS5 virtual table (memories_fts) is kept in sync with the memories
// table via the INSERT/UPDATE/DELETE triggers defined in schema.go. FTS5
// rank values are negative (more negative is a better match), so ordering
// by rank ascending returns the best matches first.
const textSearchQuerySQL = `
	SELECT ` + memoryColumnsPrefixed + `
	FROM memories_fts fts
	JOIN memories m ON m.rowid = fts.rowid
	WHERE memories_fts MATCH ? AND m.deleted_at IS NULL %s
	ORDER BY rank
	LIMIT ? OFFSET ?
`

const memoryColumnsPrefixed = `
	m.id, m.content, m.category, m.context_level, m.scope, m.project_name, m.importance,
	m.embedding_model, m.created_at, m.updated_at, m.last_accessed, m.lifecycle_state,
	m.provenance_source, m.provenance_created_by, m.provenance_last_confirmed,
	m.provenance_confidence, m.provenance_verified, m.provenance_conversation_id,
	m.provenance_file_context, m.provenance_notes,
	m.tags, m.metadata, m.access_count, m.content_hash, m.deleted_at, m.superseded_by, m.supersedes
`

// TextSearch performs FTS5-backed full-text search over memory content,
// narrowed by filters, returning up to limit matches in FTS5 rank order.
func (s *MemoryStore) TextSearch(ctx context.Context, query string, filters storage.Filters, limit int) ([]storage.Scored, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	ftsQuery := sanitiseFTSQuery(query)

	where, args := buildFilterClause(filters)
	var extra string
	if len(where) > 0 {
		// buildFilterClause emits bare column names; qualify them for the join.
		qualified := make([]string, len(where))
		for i, c := range where {
			qualified[i] = "m." + c
		}
		extra = "AND " + strings.Join(qualified, " AND ")
	}

	sqlText := fmt.Sprintf(textSearchQuerySQL, extra)
	queryArgs := append([]interface{}{ftsQuery}, args...)
	queryArgs = append(queryArgs, limit, 0)

	rows, err := s.db.QueryContext(ctx, sqlText, queryArgs...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "full-text search failed")
	}
	defer rows.Close()

	var results []storage.Scored
	rank := 0
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "full-text search scan failed")
		}
		rank++
		// FTS5 rank isn't directly comparable to the [0,1] cosine scale used
		// by Retrieve; approximate a descending [0,1] score from result order.
		score := 1.0 / float64(rank)
		results = append(results, storage.Scored{Memory: m, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "full-text search rows error")
	}
	return results, nil
}

// sanitiseFTSQuery converts a free-form user query into a safe FTS5 MATCH
// expression. It strips FTS5-special characters, removes common stop words,
// and uses prefix matching (term*) for better recall.
//
// Example: "What is the deploy process?" -> "deploy* OR process*"
func sanitiseFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, ` `, `'`, ` `, `(`, ` `, `)`, ` `, `*`, ` `, `-`, ` `, `^`, ` `, `?`, ` `, `:`, ` `,
	)
	cleaned := replacer.Replace(query)
	words := strings.Fields(strings.ToLower(cleaned))

	stopWords := map[string]bool{
		"a": true, "an": true, "the": true,
		"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true,
		"do": true, "does": true, "did": true,
		"will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "shall": true, "can": true,
		"to": true, "of": true, "in": true, "on": true, "at": true,
		"by": true, "for": true, "with": true, "from": true, "as": true,
		"about": true, "into": true, "through": true, "during": true,
		"before": true, "after": true, "above": true, "below": true,
		"between": true, "out": true, "off": true, "over": true, "under": true,
		"what": true, "how": true, "when": true, "where": true, "why": true,
		"who": true, "which": true,
		"this": true, "that": true, "these": true, "those": true,
		"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
		"and": true, "or": true, "but": true, "if": true, "not": true,
		"s": true, "t": true,
	}

	var terms []string
	for _, w := range words {
		if !stopWords[w] && len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}
	if len(terms) == 0 {
		return strings.ToLower(strings.TrimSpace(cleaned))
	}
	return strings.Join(terms, " OR ")
}
