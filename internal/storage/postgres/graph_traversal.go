package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// Traverse performs a multi-hop BFS through the entity relationship graph
// starting from startMemoryID and returns up to limit connected memories
// reachable within maxHops. Same algorithm as the sqlite adapter: seed
// entities from memory_entities, expand the frontier hop by hop, sort
// results by hop distance ascending then importance descending.
func (s *MemoryStore) Traverse(ctx context.Context, startMemoryID string, maxHops int, limit int) ([]storage.TraversalResult, error) {
	if startMemoryID == "" {
		return nil, fmt.Errorf("postgres: Traverse: startMemoryID is required")
	}
	if maxHops < 1 {
		maxHops = 2
	}
	if limit < 1 {
		limit = 10
	}

	db := s.DB()

	startEntities, err := s.getEntityIDsForMemory(ctx, db, startMemoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: Traverse: seed entities: %w", err)
	}
	if len(startEntities) == 0 {
		return nil, nil
	}

	visitedEntities := make(map[string]bool, len(startEntities))
	for _, eid := range startEntities {
		visitedEntities[eid] = true
	}

	type discovered struct {
		hop   int
		names []string
	}
	foundMemories := make(map[string]discovered)
	seenMemories := map[string]bool{startMemoryID: true}

	entityNameCache, err := s.getEntityNamesByIDs(ctx, db, startEntities)
	if err != nil {
		return nil, fmt.Errorf("postgres: Traverse: seed entity names: %w", err)
	}

	frontier := startEntities

	for hop := 1; hop <= maxHops; hop++ {
		if len(frontier) == 0 {
			break
		}

		for _, eid := range frontier {
			memIDs, err := s.getMemoryIDsForEntity(ctx, db, eid)
			if err != nil {
				return nil, fmt.Errorf("postgres: Traverse hop %d entity %s: %w", hop, eid, err)
			}
			name := entityNameCache[eid]
			if name == "" {
				name = eid
			}
			for _, mid := range memIDs {
				if seenMemories[mid] {
					continue
				}
				seenMemories[mid] = true
				existing := foundMemories[mid]
				if existing.hop == 0 {
					existing.hop = hop
				}
				existing.names = append(existing.names, name)
				foundMemories[mid] = existing
			}
		}

		neighbourEntities, entityNames, err := s.getNeighbourEntities(ctx, db, frontier, visitedEntities)
		if err != nil {
			return nil, fmt.Errorf("postgres: Traverse hop %d expand: %w", hop, err)
		}

		for id, name := range entityNames {
			entityNameCache[id] = name
		}
		for _, eid := range neighbourEntities {
			visitedEntities[eid] = true
		}

		frontier = neighbourEntities
	}

	if len(foundMemories) == 0 {
		return nil, nil
	}

	memIDs := make([]string, 0, len(foundMemories))
	for mid := range foundMemories {
		memIDs = append(memIDs, mid)
	}

	memories, err := s.getMemoriesByIDs(ctx, memIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: Traverse: fetch memories: %w", err)
	}

	results := make([]storage.TraversalResult, 0, len(memories))
	for i := range memories {
		mem := memories[i]
		d := foundMemories[mem.ID]
		results = append(results, storage.TraversalResult{
			Memory:         &mem,
			HopDistance:    d.hop,
			SharedEntities: uniqueStrings(d.names),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].HopDistance != results[j].HopDistance {
			return results[i].HopDistance < results[j].HopDistance
		}
		return results[i].Memory.Importance > results[j].Memory.Importance
	})

	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// GetRelatedMemories returns the ids of memories sharing at least one entity
// with memoryID (1-hop).
func (s *MemoryStore) GetRelatedMemories(ctx context.Context, memoryID string) ([]string, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("postgres: GetRelatedMemories: memoryID is required")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT me2.memory_id
		FROM memory_entities me1
		JOIN memory_entities me2 ON me2.entity_id = me1.entity_id
		WHERE me1.memory_id = $1 AND me2.memory_id != $1
	`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: GetRelatedMemories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: GetRelatedMemories scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetMemoryEntities returns the entities associated with a specific memory.
func (s *MemoryStore) GetMemoryEntities(ctx context.Context, memoryID string) ([]*types.Entity, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("postgres: GetMemoryEntities: memoryID is required")
	}

	query := `
		SELECT e.id, e.name, e.type, e.description, e.created_at, e.updated_at
		FROM entities e
		JOIN memory_entities me ON e.id = me.entity_id
		WHERE me.memory_id = $1
		ORDER BY e.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres: GetMemoryEntities: %w", err)
	}
	defer rows.Close()

	var entities []*types.Entity
	for rows.Next() {
		e := &types.Entity{}
		var desc sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &desc, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: GetMemoryEntities scan: %w", err)
		}
		if desc.Valid {
			e.Description = desc.String
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: GetMemoryEntities rows: %w", err)
	}
	return entities, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (s *MemoryStore) getEntityNamesByIDs(ctx context.Context, db *sql.DB, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return make(map[string]string), nil
	}
	inClause, args := buildInClause(ids, 1)
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT id, name FROM entities WHERE id IN (%s)", inClause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		result[id] = name
	}
	return result, rows.Err()
}

func (s *MemoryStore) getEntityIDsForMemory(ctx context.Context, db *sql.DB, memoryID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT entity_id FROM memory_entities WHERE memory_id = $1`, memoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// getNeighbourEntities returns entity IDs reachable from the given frontier
// entities via memory_entities co-membership, excluding already-visited
// entity IDs. Mirrors the sqlite adapter: the relationships table links
// memories, not entities, for this domain's advisory relationship detector
// (spec.md 4.9), so entity-graph expansion hops through memory_entities
// co-membership instead, treating two entities as adjacent when they
// co-occur on a shared memory.
func (s *MemoryStore) getNeighbourEntities(ctx context.Context, db *sql.DB, frontier []string, visited map[string]bool) ([]string, map[string]string, error) {
	if len(frontier) == 0 {
		return nil, nil, nil
	}

	inClause, args := buildInClause(frontier, 1)

	query := fmt.Sprintf(`
		SELECT DISTINCT me2.entity_id, e.name
		FROM memory_entities me1
		JOIN memory_entities me2 ON me2.memory_id = me1.memory_id AND me2.entity_id != me1.entity_id
		JOIN entities e ON e.id = me2.entity_id
		WHERE me1.entity_id IN (%s)
	`, inClause)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	newEntities := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, nil, err
		}
		if !visited[id] {
			newEntities[id] = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(newEntities))
	for id := range newEntities {
		ids = append(ids, id)
	}
	return ids, newEntities, nil
}

func (s *MemoryStore) getMemoryIDsForEntity(ctx context.Context, db *sql.DB, entityID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT memory_id FROM memory_entities WHERE entity_id = $1`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// getMemoriesByIDs fetches Memory objects for a list of IDs, excluding
// soft-deleted rows.
func (s *MemoryStore) getMemoriesByIDs(ctx context.Context, ids []string) ([]types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	inClause, args := buildInClause(ids, 1)
	query := fmt.Sprintf(`SELECT `+memoryColumns+` FROM memories WHERE id IN (%s) AND deleted_at IS NULL`, inClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []types.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

// buildInClause returns a comma-separated string of $N placeholders
// starting at startIdx, plus the matching args in ids order.
func buildInClause(ids []string, startIdx int) (string, []interface{}) {
	placeholders := make([]byte, 0, len(ids)*4)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, []byte(fmt.Sprintf("$%d", startIdx+i))...)
		args[i] = id
	}
	return string(placeholders), args
}

// uniqueStrings deduplicates a string slice while preserving order.
func uniqueStrings(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
