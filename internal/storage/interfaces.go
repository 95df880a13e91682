// Package storage provides the vector-store-adapter contract (spec.md 4.4)
// and its supporting graph/relationship interfaces. Implementations live in
// the sqlite and postgres subpackages.
package storage

import (
	"context"

	"github.com/scrypster/memento/pkg/types"
)

// VectorStoreAdapter exposes the logical KV+ANN interface spec.md 4.4
// describes: upsert, similarity retrieval, point lookup, atomic update,
// bounded delete, paginated listing, and basic fleet introspection.
type VectorStoreAdapter interface {
	// Store upserts a point: payload carries the full serialized Memory;
	// vector is its embedding. Returns the assigned id.
	Store(ctx context.Context, memory *types.Memory, vector []float32) (string, error)

	// BatchStore upserts every item at-least-once; re-running a batch with
	// the same provided ids is idempotent.
	BatchStore(ctx context.Context, memories []*types.Memory, vectors [][]float32) ([]string, error)

	// Retrieve runs similarity search against queryVector, returning
	// results in descending score order with scores in [0,1].
	// Unsupported filter predicates produce a VALIDATION-mapped error.
	Retrieve(ctx context.Context, queryVector []float32, filters Filters, limit int) ([]Scored, error)

	// GetByID returns a single point, or engineerr.ErrNotFound.
	GetByID(ctx context.Context, id string) (*types.Memory, error)

	// Update is atomic w.r.t. readers: a reader sees either the old or the
	// new point, never a merged record. newVector is optional (nil leaves
	// the stored embedding untouched).
	Update(ctx context.Context, id string, memory *types.Memory, newVector []float32) (bool, error)

	// Delete removes a single point.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteByFilter removes up to maxCount points matching filters,
	// returning a breakdown by project/category/lifecycle. maxCount is
	// hard-capped at 1000 regardless of the requested value.
	DeleteByFilter(ctx context.Context, filters Filters, maxCount int) (DeleteBreakdown, error)

	// ListMemories returns a paginated, sorted window.
	ListMemories(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// Count reports how many points match filters (zero value: all points).
	Count(ctx context.Context, filters Filters) (int, error)

	// GetAllProjects returns the distinct project names currently stored.
	GetAllProjects(ctx context.Context) ([]string, error)

	// GetProjectStats summarizes one project's memories.
	GetProjectStats(ctx context.Context, project string) (ProjectStats, error)

	// HealthCheck reports whether the backend is reachable and serving.
	HealthCheck(ctx context.Context) bool

	// Close releases any resources held by the adapter.
	Close() error
}

// GraphProvider provides bounded graph traversal through the entity
// relationship graph.
type GraphProvider interface {
	// Traverse finds memories connected to startMemoryID through shared
	// entities, up to maxHops hops, returning up to limit results sorted
	// by hop distance ascending then importance descending.
	Traverse(ctx context.Context, startMemoryID string, maxHops int, limit int) ([]TraversalResult, error)

	// GetRelatedMemories returns the ids of memories sharing at least one
	// entity with memoryID (1-hop).
	GetRelatedMemories(ctx context.Context, memoryID string) ([]string, error)

	// GetMemoryEntities returns the entities associated with a memory.
	GetMemoryEntities(ctx context.Context, memoryID string) ([]*types.Entity, error)
}

// RelationshipStore manages advisory MemoryRelationship records produced by
// the duplicate/relationship detector (spec.md 4.9): contradiction,
// duplicate, support, and supersession edges between two memory ids.
type RelationshipStore interface {
	CreateRelationship(ctx context.Context, rel *types.MemoryRelationship) error
	GetRelationships(ctx context.Context, memoryID string, limit int) ([]*types.MemoryRelationship, error)
	DeleteRelationship(ctx context.Context, sourceID, targetID string, relType types.RelationshipType) error

	StoreEntity(ctx context.Context, entity *types.Entity) error
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
}
