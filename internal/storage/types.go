package storage

import (
	"time"

	"github.com/scrypster/memento/pkg/types"
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	HasMore  bool
}

// ListOptions provides pagination, sorting, and filtering for list_memories
// (spec.md 4.8.5).
type ListOptions struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string

	Category    types.MemoryCategory
	Scope       types.MemoryScope
	ProjectName string
	LifecycleState types.LifecycleState
	MinImportance  float64

	CreatedAfter  time.Time
	CreatedBefore time.Time

	IncludeDeleted bool
}

// Normalize applies defaults and whitelists SortBy/SortOrder to prevent
// building an injectable ORDER BY clause.
func (o *ListOptions) Normalize() {
	allowedSortFields := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"importance": true,
	}
	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}
	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// Filters narrows store/retrieve/delete operations to a payload predicate
// (spec.md 4.4). An unsupported predicate (handled at the adapter layer, not
// here) must produce a VALIDATION error rather than being silently dropped.
type Filters struct {
	Category       types.MemoryCategory
	Scope          types.MemoryScope
	ProjectName    string
	ContextLevel   types.ContextLevel
	LifecycleState types.LifecycleState
	Tags           []string
	MinImportance  float64
	SessionID      string
	CreatedAfter   time.Time
	CreatedBefore  time.Time
}

// SearchOptions provides options for vector retrieve operations.
type SearchOptions struct {
	Limit    int
	Offset   int
	MinScore float64
	Filters  Filters
}

// Normalize applies defaults and validates the SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.MinScore < 0.0 {
		o.MinScore = 0.0
	}
	if o.MinScore > 1.0 {
		o.MinScore = 1.0
	}
}

// Scored pairs a retrieved memory with its similarity score, clamped to
// [0,1] (spec.md 4.4's retrieve contract).
type Scored struct {
	Memory *types.Memory
	Score  float64
}

// DeleteBreakdown reports deletion counts grouped by the dimensions
// spec.md 4.4's delete_by_filter names.
type DeleteBreakdown struct {
	DeletedCount       int
	ByProject          map[string]int
	ByCategory         map[string]int
	ByLifecycle        map[string]int
}

// ProjectStats summarizes one project's memories for get_project_stats.
type ProjectStats struct {
	ProjectName     string
	MemoryCount     int
	CategoryCounts  map[string]int
	AvgImportance   float64
	LastUpdatedAt   time.Time
}

// GraphBounds prevents combinatorial explosion during graph traversal.
type GraphBounds struct {
	MaxHops  int
	MaxNodes int
	MaxEdges int
	Timeout  time.Duration

	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// Normalize applies defaults and validates the GraphBounds.
func (g *GraphBounds) Normalize() {
	if g.MaxHops < 1 {
		g.MaxHops = 3
	}
	if g.MaxHops > 10 {
		g.MaxHops = 10
	}
	if g.MaxNodes < 1 {
		g.MaxNodes = 100
	}
	if g.MaxNodes > 1000 {
		g.MaxNodes = 1000
	}
	if g.MaxEdges < 1 {
		g.MaxEdges = 500
	}
	if g.MaxEdges > 5000 {
		g.MaxEdges = 5000
	}
	if g.Timeout == 0 {
		g.Timeout = 30 * time.Second
	}
	if g.Timeout > 5*time.Minute {
		g.Timeout = 5 * time.Minute
	}
}

// MatchesTemporalBounds reports whether createdAt falls within the window
// defined by CreatedAfter/CreatedBefore. A zero bound is unconstrained.
func (g *GraphBounds) MatchesTemporalBounds(createdAt time.Time) bool {
	if !g.CreatedAfter.IsZero() && !createdAt.After(g.CreatedAfter) {
		return false
	}
	if !g.CreatedBefore.IsZero() && !createdAt.Before(g.CreatedBefore) {
		return false
	}
	return true
}

// GraphResult represents the result of a graph traversal operation.
type GraphResult struct {
	Nodes         []string
	Edges         []GraphEdge
	BoundsReached []string
}

// GraphEdge represents a directed edge in the memory graph.
type GraphEdge struct {
	From         string
	To           string
	RelationType string
	Weight       float64
}

// TraversalResult represents a memory found via graph traversal through the
// entity graph (memory -> entities -> co-occurring entities -> memory, via
// memory_entities).
type TraversalResult struct {
	Memory         *types.Memory
	HopDistance    int
	SharedEntities []string
}
