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

// fakeInferenceStore is an in-memory inferenceStore for inference engine tests.
type fakeInferenceStore struct {
	memories map[string]*types.Memory
	entities map[string][]*types.Entity
}

func newFakeInferenceStore() *fakeInferenceStore {
	return &fakeInferenceStore{
		memories: make(map[string]*types.Memory),
		entities: make(map[string][]*types.Entity),
	}
}

func (f *fakeInferenceStore) add(mem *types.Memory, entities ...*types.Entity) {
	f.memories[mem.ID] = mem
	f.entities[mem.ID] = entities
}

func (f *fakeInferenceStore) GetByID(_ context.Context, id string) (*types.Memory, error) {
	mem, ok := f.memories[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return mem, nil
}

func (f *fakeInferenceStore) ListMemories(_ context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	items := make([]types.Memory, 0, len(f.memories))
	for _, mem := range f.memories {
		if opts.ProjectName != "" && mem.ProjectName != opts.ProjectName {
			continue
		}
		items = append(items, *mem)
	}
	return &storage.PaginatedResult[types.Memory]{Items: items, Total: len(items), Page: 1, PageSize: opts.Limit}, nil
}

func (f *fakeInferenceStore) GetMemoryEntities(_ context.Context, memoryID string) ([]*types.Entity, error) {
	return f.entities[memoryID], nil
}

func inferenceTestMemory(id string) *types.Memory {
	now := time.Now()
	return &types.Memory{ID: id, Content: "content for " + id, Category: types.CategoryFact, CreatedAt: now, UpdatedAt: now}
}

func entityRef(id, name string) *types.Entity {
	return &types.Entity{ID: id, Name: name, Type: "person"}
}

func TestInferConnectionsDirectViaSharedEntity(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:alice", "Alice"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:alice", "Alice"))

	engine := NewInferenceEngine(store)
	results, err := engine.InferConnections(context.Background(), "mem:a", InferenceOptions{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "direct", results[0].Type)
	assert.Equal(t, []string{"mem:a", "mem:b"}, results[0].Path)
	assert.Greater(t, results[0].Confidence, 0.0)
}

func TestInferConnectionsNoSharedEntities(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:alice", "Alice"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:bob", "Bob"))

	engine := NewInferenceEngine(store)
	results, err := engine.InferConnections(context.Background(), "mem:a", InferenceOptions{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInferConnectionsTransitive(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:alice", "Alice"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:alice", "Alice"), entityRef("ent:bob", "Bob"))
	store.add(inferenceTestMemory("mem:c"), entityRef("ent:bob", "Bob"))

	engine := NewInferenceEngine(store)
	results, err := engine.InferConnections(context.Background(), "mem:a", InferenceOptions{MaxDepth: 2})

	require.NoError(t, err)

	var sawTransitive bool
	for _, r := range results {
		if r.Type == "transitive" {
			sawTransitive = true
			assert.Equal(t, []string{"mem:a", "mem:b", "mem:c"}, r.Path)
		}
	}
	assert.True(t, sawTransitive, "expected a transitive connection through mem:b")
}

func TestInferConnectionsRespectsConfidenceMin(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:alice", "Alice"), entityRef("ent:x1", "X1"), entityRef("ent:x2", "X2"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:alice", "Alice"))

	engine := NewInferenceEngine(store)
	results, err := engine.InferConnections(context.Background(), "mem:a", InferenceOptions{ConfidenceMin: 0.9})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInferConnectionsIncludesReasoningWhenRequested(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:alice", "Alice"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:alice", "Alice"))

	engine := NewInferenceEngine(store)
	results, err := engine.InferConnections(context.Background(), "mem:a", InferenceOptions{IncludeReason: true})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Reasoning)
}

func TestFindPatternsEntityCluster(t *testing.T) {
	store := newFakeInferenceStore()
	for _, id := range []string{"mem:a", "mem:b", "mem:c"} {
		store.add(inferenceTestMemory(id), entityRef("ent:shared", "Shared"))
	}

	engine := NewInferenceEngine(store)
	patterns, err := engine.FindPatterns(context.Background(), "")

	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	assert.Equal(t, "cluster", patterns[0].Type)
	assert.Equal(t, 3, patterns[0].Frequency)
}

func TestFindPatternsTagCluster(t *testing.T) {
	store := newFakeInferenceStore()
	for _, id := range []string{"mem:a", "mem:b", "mem:c"} {
		mem := inferenceTestMemory(id)
		mem.Tags = []string{"deploy"}
		store.add(mem)
	}

	engine := NewInferenceEngine(store)
	patterns, err := engine.FindPatterns(context.Background(), "")

	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	assert.Contains(t, patterns[0].Description, "deploy")
}

func TestFindPatternsBelowThresholdProducesNoCluster(t *testing.T) {
	store := newFakeInferenceStore()
	store.add(inferenceTestMemory("mem:a"), entityRef("ent:shared", "Shared"))
	store.add(inferenceTestMemory("mem:b"), entityRef("ent:shared", "Shared"))

	engine := NewInferenceEngine(store)
	patterns, err := engine.FindPatterns(context.Background(), "")

	require.NoError(t, err)
	assert.Empty(t, patterns)
}
