package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/vecenc"
	"github.com/scrypster/memento/pkg/types"
)

// vectorSearchMaxCandidates caps how many embeddings the fallback cosine
// scan loads into Go memory per Retrieve call, mirroring the sqlite
// adapter's cap. The pgvector path never needs this: the ivfflat index
// ranks server-side.
const vectorSearchMaxCandidates = 10_000

// Retrieve ranks memories by similarity to queryVector. When pgvector is
// available it delegates ranking to the ivfflat index via the <=> cosine
// distance operator; otherwise it falls back to loading embedding_cache
// rows and scoring them in-process, the same brute-force approach the
// sqlite adapter always uses.
func (s *MemoryStore) Retrieve(ctx context.Context, queryVector []float32, filters storage.Filters, limit int) ([]storage.Scored, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	if s.pgvectorAvailable {
		return s.retrieveViaPgvector(ctx, queryVector, filters, limit)
	}
	return s.retrieveViaFallback(ctx, queryVector, filters, limit)
}

func (s *MemoryStore) retrieveViaPgvector(ctx context.Context, queryVector []float32, filters storage.Filters, limit int) ([]storage.Scored, error) {
	where, args := buildFilterClause(filters, 2)
	where = append(where, "m.deleted_at IS NULL")

	query := `
		SELECT m.id, 1 - (e.embedding <=> $1) AS score
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.embedding <=> $1
		LIMIT $` + fmt.Sprint(len(args)+2) + `
	`
	pv := pgvector.NewVector(queryVector)
	allArgs := append([]interface{}{pv}, args...)
	allArgs = append(allArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "pgvector retrieve query failed")
	}
	defer rows.Close()

	var results []storage.Scored
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			continue
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		m, err := s.GetByID(ctx, id)
		if err != nil {
			continue
		}
		results = append(results, storage.Scored{Memory: m, Score: score})
	}
	return results, rows.Err()
}

func (s *MemoryStore) retrieveViaFallback(ctx context.Context, queryVector []float32, filters storage.Filters, limit int) ([]storage.Scored, error) {
	where, args := buildFilterClause(filters, 1)
	where = append(where, "m.deleted_at IS NULL")

	query := `
		SELECT m.id, c.embedding
		FROM embedding_cache c
		JOIN memories m ON m.id = substring(c.cache_key from 5)
		WHERE c.cache_key LIKE 'raw:%' AND ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_at DESC
		LIMIT $` + fmt.Sprint(len(args)+1) + `
	`
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "fallback retrieve query failed")
	}
	defer rows.Close()

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		vec := vecenc.Decode(blob)
		candidates = append(candidates, candidate{id, cosineSimilarity(queryVector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "fallback retrieve rows error")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]storage.Scored, 0, limit)
	for _, c := range candidates[:limit] {
		m, err := s.GetByID(ctx, c.id)
		if err != nil {
			continue
		}
		results = append(results, storage.Scored{Memory: m, Score: c.score})
	}
	return results, nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// float32 vectors, clamped to [0,1], same contract as the sqlite adapter.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// memoryColumnsPrefixed is memoryColumns with every column m.-qualified, for
// the tsvector join below.
const memoryColumnsPrefixed = `
	m.id, m.content, m.category, m.context_level, m.scope, m.project_name, m.importance,
	m.embedding_model, m.created_at, m.updated_at, m.last_accessed, m.lifecycle_state,
	m.provenance_source, m.provenance_created_by, m.provenance_last_confirmed,
	m.provenance_confidence, m.provenance_verified, m.provenance_conversation_id,
	m.provenance_file_context, m.provenance_notes,
	m.tags, m.metadata, m.access_count, m.content_hash, m.deleted_at, m.superseded_by, m.supersedes
`

// TextSearch is a SUPPLEMENTED lexical/code-search path layered on top of
// the vector-native retrieve_memories operation (spec.md 4.8.2 takes a
// query vector, not text): it ranks memories by PostgreSQL's tsvector
// rank against content_tsv.
func (s *MemoryStore) TextSearch(ctx context.Context, query string, filters storage.Filters, limit int) ([]storage.Scored, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	where, args := buildFilterClause(filters, 2)
	conditions := append([]string{"m.content_tsv @@ plainto_tsquery('english', $1)", "m.deleted_at IS NULL"}, where...)

	sqlQuery := `
		SELECT ` + memoryColumnsPrefixed + `, ts_rank(m.content_tsv, plainto_tsquery('english', $1)) AS rank
		FROM memories m
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY rank DESC
		LIMIT $` + fmt.Sprint(len(args)+2) + `
	`
	allArgs := append([]interface{}{query}, args...)
	allArgs = append(allArgs, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, allArgs...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "text search query failed")
	}
	defer rows.Close()

	var results []storage.Scored
	for rows.Next() {
		m, rank, err := scanMemoryRowWithRank(rows)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "text search scan failed")
		}
		results = append(results, storage.Scored{Memory: m, Score: rank})
	}
	return results, rows.Err()
}

// rankedRowScanner adapts scanMemory's Scan-based decoding to a row that
// carries one extra trailing rank column.
type rankedRowScanner struct {
	rows *sql.Rows
	rank float64
}

func (r *rankedRowScanner) Scan(dest ...interface{}) error {
	return r.rows.Scan(append(dest, &r.rank)...)
}

func scanMemoryRowWithRank(rows *sql.Rows) (*types.Memory, float64, error) {
	rs := &rankedRowScanner{rows: rows}
	m, err := scanMemory(rs)
	if err != nil {
		return nil, 0, err
	}
	return m, rs.rank, nil
}
