package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// fakeGraphStore is an in-memory graphStore: an adjacency map plus a flat
// memory table, enough to drive BFS/path-finding tests without a real adapter.
type fakeGraphStore struct {
	adjacency map[string][]string
	memories  map[string]*types.Memory
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{
		adjacency: make(map[string][]string),
		memories:  make(map[string]*types.Memory),
	}
}

func (f *fakeGraphStore) addMemory(id string, createdAt time.Time) {
	f.memories[id] = &types.Memory{ID: id, CreatedAt: createdAt}
}

func (f *fakeGraphStore) link(a, b string) {
	f.adjacency[a] = append(f.adjacency[a], b)
	f.adjacency[b] = append(f.adjacency[b], a)
}

func (f *fakeGraphStore) GetRelatedMemories(_ context.Context, memoryID string) ([]string, error) {
	return f.adjacency[memoryID], nil
}

func (f *fakeGraphStore) GetByID(_ context.Context, id string) (*types.Memory, error) {
	mem, ok := f.memories[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return mem, nil
}

func testBounds() storage.GraphBounds {
	return storage.GraphBounds{MaxHops: 3, MaxNodes: 100, MaxEdges: 500, Timeout: 30 * time.Second}
}

func TestBreadthFirstSearchSingleNode(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	store.addMemory("mem:start", time.Now())

	gt := NewGraphTraversal(store)
	visited := make(map[string]bool)

	err := gt.BreadthFirstSearch(ctx, "mem:start", testBounds(), func(memoryID string, depth int) bool {
		visited[memoryID] = true
		return true
	})

	require.NoError(t, err)
	assert.True(t, visited["mem:start"])
	assert.Len(t, visited, 1)
}

func TestBreadthFirstSearchVisitsNeighbors(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:b", now)
	store.addMemory("mem:c", now)
	store.link("mem:a", "mem:b")
	store.link("mem:b", "mem:c")

	gt := NewGraphTraversal(store)
	order := []string{}

	err := gt.BreadthFirstSearch(ctx, "mem:a", testBounds(), func(memoryID string, depth int) bool {
		order = append(order, memoryID)
		return true
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mem:a", "mem:b", "mem:c"}, order)
}

func TestBreadthFirstSearchVisitorStopEarly(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:b", now)
	store.link("mem:a", "mem:b")

	gt := NewGraphTraversal(store)
	visitCount := 0

	err := gt.BreadthFirstSearch(ctx, "mem:a", testBounds(), func(memoryID string, depth int) bool {
		visitCount++
		return false
	})

	require.NoError(t, err)
	assert.Equal(t, 1, visitCount)
}

func TestBreadthFirstSearchRespectsMaxHops(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	for _, id := range []string{"mem:a", "mem:b", "mem:c", "mem:d"} {
		store.addMemory(id, now)
	}
	store.link("mem:a", "mem:b")
	store.link("mem:b", "mem:c")
	store.link("mem:c", "mem:d")

	gt := NewGraphTraversal(store)
	visited := make(map[string]bool)

	bounds := testBounds()
	bounds.MaxHops = 1
	err := gt.BreadthFirstSearch(ctx, "mem:a", bounds, func(memoryID string, depth int) bool {
		visited[memoryID] = true
		return true
	})

	require.NoError(t, err)
	assert.True(t, visited["mem:a"])
	assert.True(t, visited["mem:b"])
	assert.False(t, visited["mem:c"])
	assert.False(t, visited["mem:d"])
}

func TestFindPathsBoundedSameNode(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	store.addMemory("mem:a", time.Now())

	gt := NewGraphTraversal(store)
	paths, err := gt.FindPathsBounded(ctx, "mem:a", "mem:a", testBounds())

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, 0, paths[0].Distance)
	assert.Equal(t, 1.0, paths[0].Confidence)
}

func TestFindPathsBoundedDirectLink(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:b", now)
	store.link("mem:a", "mem:b")

	gt := NewGraphTraversal(store)
	paths, err := gt.FindPathsBounded(ctx, "mem:a", "mem:b", testBounds())

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"mem:a", "mem:b"}, paths[0].Path)
	assert.Equal(t, 1, paths[0].Distance)
	assert.False(t, paths[0].Truncated)
}

func TestFindPathsBoundedNoPath(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:b", now)

	gt := NewGraphTraversal(store)
	paths, err := gt.FindPathsBounded(ctx, "mem:a", "mem:b", testBounds())

	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFindRelatedBoundedExcludesSource(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:b", now)
	store.addMemory("mem:c", now)
	store.link("mem:a", "mem:b")
	store.link("mem:a", "mem:c")

	gt := NewGraphTraversal(store)
	related, err := gt.FindRelatedBounded(ctx, "mem:a", testBounds())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mem:b", "mem:c"}, related)
}

func TestFindRelatedBoundedTemporalFilter(t *testing.T) {
	ctx := context.Background()
	store := newFakeGraphStore()
	now := time.Now()
	store.addMemory("mem:a", now)
	store.addMemory("mem:recent", now)
	store.addMemory("mem:stale", now.Add(-365*24*time.Hour))
	store.link("mem:a", "mem:recent")
	store.link("mem:a", "mem:stale")

	gt := NewGraphTraversal(store)
	bounds := testBounds()
	bounds.CreatedAfter = now.Add(-24 * time.Hour)

	related, err := gt.FindRelatedBounded(ctx, "mem:a", bounds)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mem:recent"}, related)
}
