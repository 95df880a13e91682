// Package engine provides bounded graph traversal algorithms for the memory
// graph: general BFS, confidence-scored path-finding, and a FindRelatedBounded
// helper with temporal filtering. These sit alongside, and are built from
// the same bounds model as, the adapter-level GraphProvider.Traverse.
package engine

import (
	"context"
	"fmt"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// graphStore is the minimal storage dependency GraphTraversal needs: a
// neighbor lookup (shared-entity adjacency) and a point lookup for
// temporal filtering. Any adapter implementing storage.GraphProvider plus
// storage.VectorStoreAdapter satisfies this structurally.
type graphStore interface {
	GetRelatedMemories(ctx context.Context, memoryID string) ([]string, error)
	GetByID(ctx context.Context, id string) (*types.Memory, error)
}

// GraphTraversal implements bounded graph algorithms over the shared-entity
// adjacency the storage layer exposes.
//
// All algorithms enforce GraphBounds to prevent combinatorial explosion:
//   - MaxHops: limits traversal depth
//   - MaxNodes: limits total nodes visited
//   - MaxEdges: limits total edges traversed
//   - Timeout: limits total execution time
type GraphTraversal struct {
	store graphStore
}

// PathResult represents a path between two memories in the graph.
type PathResult struct {
	// Path is the sequence of memory IDs from source to target.
	Path []string

	// Distance is the number of hops in the path (length - 1).
	Distance int

	// Confidence is the path confidence score (0.0 to 1.0).
	// Shorter paths have higher confidence.
	Confidence float64

	// Truncated indicates whether the path search was truncated due to bounds.
	Truncated bool
}

// NewGraphTraversal creates a new graph traversal engine.
func NewGraphTraversal(store graphStore) *GraphTraversal {
	return &GraphTraversal{store: store}
}

// BreadthFirstSearch performs bounded BFS starting from startID.
// The visitor function is called for each node visited and receives:
//   - memoryID: the ID of the current memory
//   - depth: the depth/distance from the start node
//
// The visitor should return true to continue traversal, false to stop.
//
// BFS respects all bounds (MaxHops, MaxNodes, MaxEdges, Timeout) and
// returns engineerr.ErrBoundsExceeded if any bound is hit.
func (g *GraphTraversal) BreadthFirstSearch(
	ctx context.Context,
	startID string,
	bounds storage.GraphBounds,
	visitor func(memoryID string, depth int) bool,
) error {
	bounds.Normalize()
	checker := NewBoundsChecker(bounds)

	type queueItem struct {
		id    string
		depth int
	}

	queue := []queueItem{{startID, 0}}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current.id] {
			continue
		}

		if err := checker.CanContinue(ctx, current.depth); err != nil {
			return err
		}

		visited[current.id] = true
		checker.RecordNode()

		if !visitor(current.id, current.depth) {
			break
		}

		if current.depth >= bounds.MaxHops {
			continue
		}

		neighbors, err := g.store.GetRelatedMemories(ctx, current.id)
		if err != nil {
			return fmt.Errorf("failed to get neighbors for %s: %w", current.id, err)
		}

		for _, neighborID := range neighbors {
			if !visited[neighborID] {
				checker.RecordEdge()
				queue = append(queue, queueItem{neighborID, current.depth + 1})
			}
		}
	}

	return nil
}

// FindPathsBounded finds all paths from sourceID to targetID within bounds.
// Uses depth-first search with path tracking to find multiple paths.
//
// Returns paths sorted by discovery order (shortest tends to surface
// first); if bounds are exceeded, Truncated is set on every found path and
// the partial result is returned without error.
func (g *GraphTraversal) FindPathsBounded(
	ctx context.Context,
	sourceID string,
	targetID string,
	bounds storage.GraphBounds,
) ([]PathResult, error) {
	bounds.Normalize()
	checker := NewBoundsChecker(bounds)

	var paths []PathResult
	visited := make(map[string]bool)

	if sourceID == targetID {
		return []PathResult{{
			Path:       []string{sourceID},
			Distance:   0,
			Confidence: 1.0,
			Truncated:  false,
		}}, nil
	}

	var dfs func(currentID string, path []string, depth int) error
	dfs = func(currentID string, path []string, depth int) error {
		if err := checker.CanContinue(ctx, depth); err != nil {
			return err
		}

		if visited[currentID] {
			return nil
		}

		visited[currentID] = true
		checker.RecordNode()
		path = append(path, currentID)

		if currentID == targetID {
			confidence := 1.0 / float64(depth+1)

			paths = append(paths, PathResult{
				Path:       append([]string{}, path...),
				Distance:   depth,
				Confidence: confidence,
				Truncated:  false,
			})

			visited[currentID] = false
			return nil
		}

		if depth < bounds.MaxHops {
			neighbors, err := g.store.GetRelatedMemories(ctx, currentID)
			if err != nil {
				return fmt.Errorf("failed to get neighbors for %s: %w", currentID, err)
			}

			for _, neighborID := range neighbors {
				checker.RecordEdge()
				if err := dfs(neighborID, path, depth+1); err != nil {
					return err
				}
			}
		}

		visited[currentID] = false
		return nil
	}

	err := dfs(sourceID, []string{}, 0)

	if err != nil {
		for i := range paths {
			paths[i].Truncated = true
		}
		return paths, nil
	}

	return paths, nil
}

// FindRelatedBounded finds all memories related to sourceID within bounds.
// Uses BFS to discover all reachable memories up to MaxHops distance.
//
// When bounds.CreatedAfter or bounds.CreatedBefore are set, each visited
// memory is fetched and its created_at timestamp is checked against the
// temporal window. Memories outside the window are excluded from the result
// but traversal continues through them so that temporally-valid nodes
// reachable via out-of-window intermediaries are still found.
func (g *GraphTraversal) FindRelatedBounded(
	ctx context.Context,
	sourceID string,
	bounds storage.GraphBounds,
) ([]string, error) {
	bounds.Normalize()

	hasTemporalBounds := !bounds.CreatedAfter.IsZero() || !bounds.CreatedBefore.IsZero()

	related := make([]string, 0)

	err := g.BreadthFirstSearch(ctx, sourceID, bounds, func(memoryID string, depth int) bool {
		if memoryID == sourceID {
			return true
		}

		if hasTemporalBounds {
			mem, fetchErr := g.store.GetByID(ctx, memoryID)
			if fetchErr != nil {
				return true
			}
			if !bounds.MatchesTemporalBounds(mem.CreatedAt) {
				return true
			}
		}

		related = append(related, memoryID)
		return true
	})

	if err != nil {
		return related, err
	}

	return related, nil
}
