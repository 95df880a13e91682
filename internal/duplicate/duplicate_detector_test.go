package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// fakeDuplicateStore is an in-memory duplicateStore. scores maps a query
// memory id to its candidate scores, letting each test wire up exactly the
// pairwise similarities it needs without a real vector index. Since
// Retrieve only receives an embedding vector, textVectorKey round-trips a
// query vector back to the memory id that produced it.
type fakeDuplicateStore struct {
	memories   map[string]*types.Memory
	scores     map[string]map[string]float64
	idByVecKey map[float32]string
}

func newFakeDuplicateStore() *fakeDuplicateStore {
	return &fakeDuplicateStore{
		memories:   make(map[string]*types.Memory),
		scores:     make(map[string]map[string]float64),
		idByVecKey: make(map[float32]string),
	}
}

func (f *fakeDuplicateStore) add(mem *types.Memory) {
	f.memories[mem.ID] = mem
	f.idByVecKey[textVectorKey(mem.Content)] = mem.ID
}

// setScore wires a symmetric similarity score between two memory ids.
func (f *fakeDuplicateStore) setScore(a, b string, score float64) {
	if f.scores[a] == nil {
		f.scores[a] = make(map[string]float64)
	}
	if f.scores[b] == nil {
		f.scores[b] = make(map[string]float64)
	}
	f.scores[a][b] = score
	f.scores[b][a] = score
}

func (f *fakeDuplicateStore) Retrieve(_ context.Context, queryVector []float32, _ storage.Filters, limit int) ([]storage.Scored, error) {
	queryID := f.idByVecKey[queryVector[0]]
	var results []storage.Scored
	for id, score := range f.scores[queryID] {
		mem := f.memories[id]
		if mem == nil {
			continue
		}
		results = append(results, storage.Scored{Memory: mem, Score: score})
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeDuplicateStore) ListMemories(_ context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	var all []types.Memory
	for _, mem := range f.memories {
		all = append(all, *mem)
	}
	return &storage.PaginatedResult[types.Memory]{Items: all, Total: len(all), Page: 1, PageSize: opts.Limit}, nil
}

type fakeDuplicateEmbedder struct{}

func (fakeDuplicateEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{textVectorKey(text)}, nil
}

func (fakeDuplicateEmbedder) GetModel() string { return "fake" }

// textVectorKey deterministically maps text to a float32 fingerprint,
// unique enough across the small corpora these tests construct.
func textVectorKey(text string) float32 {
	var sum int
	for _, r := range text {
		sum += int(r)
	}
	return float32(sum)
}

func duplicateTestMemory(id string) *types.Memory {
	now := time.Now()
	return &types.Memory{
		ID: id, Content: "content " + id, Category: types.CategoryCode,
		Scope: types.ScopeGlobal, CreatedAt: now, UpdatedAt: now,
	}
}

func TestFindDuplicatesFiltersBelowThreshold(t *testing.T) {
	store := newFakeDuplicateStore()
	a := duplicateTestMemory("mem:a")
	b := duplicateTestMemory("mem:b")
	c := duplicateTestMemory("mem:c")
	store.add(a)
	store.add(b)
	store.add(c)
	store.setScore("mem:a", "mem:b", 0.9)
	store.setScore("mem:a", "mem:c", 0.5)

	det := NewDetector(store, fakeDuplicateEmbedder{}, DefaultThresholds)
	results, err := det.FindDuplicates(context.Background(), a, 0.8)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem:b", results[0].Memory.ID)
}

func TestClassifySimilarity(t *testing.T) {
	det := NewDetector(newFakeDuplicateStore(), fakeDuplicateEmbedder{}, DefaultThresholds)

	assert.Equal(t, "high", det.ClassifySimilarity(0.97))
	assert.Equal(t, "medium", det.ClassifySimilarity(0.9))
	assert.Equal(t, "low", det.ClassifySimilarity(0.8))
	assert.Equal(t, "none", det.ClassifySimilarity(0.5))
}

func TestThresholdsValidateRejectsOutOfOrder(t *testing.T) {
	err := Thresholds{High: 0.5, Medium: 0.9, Low: 0.1}.Validate()
	assert.Error(t, err)
}

func TestFindAllClustersGroupsTransitively(t *testing.T) {
	store := newFakeDuplicateStore()
	a := duplicateTestMemory("mem:a")
	b := duplicateTestMemory("mem:b")
	c := duplicateTestMemory("mem:c")
	store.add(a)
	store.add(b)
	store.add(c)
	store.setScore("mem:a", "mem:b", 0.9)
	store.setScore("mem:b", "mem:c", 0.92)

	det := NewDetector(store, fakeDuplicateEmbedder{}, DefaultThresholds)
	clusters, err := det.FindAllClusters(context.Background(), storage.Filters{}, 0.85)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Size)
}

func TestFindAllClustersPrefersDocumentedCanonical(t *testing.T) {
	store := newFakeDuplicateStore()
	a := duplicateTestMemory("mem:a")
	a.Metadata = map[string]interface{}{"has_documentation": false, "line_count": 10}
	b := duplicateTestMemory("mem:b")
	b.Metadata = map[string]interface{}{"has_documentation": true, "line_count": 50}
	store.add(a)
	store.add(b)
	store.setScore("mem:a", "mem:b", 0.9)

	det := NewDetector(store, fakeDuplicateEmbedder{}, DefaultThresholds)
	clusters, err := det.FindAllClusters(context.Background(), storage.Filters{}, 0.85)

	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "mem:b", clusters[0].CanonicalID)
}

func TestGetAutoMergeCandidatesRequiresAllHigh(t *testing.T) {
	store := newFakeDuplicateStore()
	a := duplicateTestMemory("mem:a")
	b := duplicateTestMemory("mem:b")
	store.add(a)
	store.add(b)
	store.setScore("mem:a", "mem:b", 0.99)

	det := NewDetector(store, fakeDuplicateEmbedder{}, DefaultThresholds)
	clusters, err := det.GetAutoMergeCandidates(context.Background(), storage.Filters{})

	require.NoError(t, err)
	require.Len(t, clusters, 1)
}

func TestGetUserReviewCandidatesRequiresMediumNotHigh(t *testing.T) {
	store := newFakeDuplicateStore()
	a := duplicateTestMemory("mem:a")
	b := duplicateTestMemory("mem:b")
	store.add(a)
	store.add(b)
	store.setScore("mem:a", "mem:b", 0.88)

	det := NewDetector(store, fakeDuplicateEmbedder{}, DefaultThresholds)
	clusters, err := det.GetUserReviewCandidates(context.Background(), storage.Filters{})

	require.NoError(t, err)
	require.Len(t, clusters, 1)
}
