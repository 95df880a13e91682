package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// fakeSearchAdapter is a minimal storage.VectorStoreAdapter for search
// orchestrator tests: Retrieve returns a project-filtered, pre-wired
// candidate list; every other method is an unused stub.
type fakeSearchAdapter struct {
	byProject map[string][]storage.Scored
	failFor   map[string]bool
}

func newFakeSearchAdapter() *fakeSearchAdapter {
	return &fakeSearchAdapter{byProject: make(map[string][]storage.Scored), failFor: make(map[string]bool)}
}

func (f *fakeSearchAdapter) seed(project string, scored ...storage.Scored) {
	f.byProject[project] = append(f.byProject[project], scored...)
}

func (f *fakeSearchAdapter) Store(_ context.Context, _ *types.Memory, _ []float32) (string, error) {
	return "", nil
}
func (f *fakeSearchAdapter) BatchStore(_ context.Context, _ []*types.Memory, _ [][]float32) ([]string, error) {
	return nil, nil
}

func (f *fakeSearchAdapter) Retrieve(_ context.Context, _ []float32, filters storage.Filters, limit int) ([]storage.Scored, error) {
	if f.failFor[filters.ProjectName] {
		return nil, fmt.Errorf("simulated adapter failure for %s", filters.ProjectName)
	}
	results := f.byProject[filters.ProjectName]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeSearchAdapter) GetByID(_ context.Context, _ string) (*types.Memory, error) { return nil, nil }
func (f *fakeSearchAdapter) Update(_ context.Context, _ string, _ *types.Memory, _ []float32) (bool, error) {
	return true, nil
}
func (f *fakeSearchAdapter) Delete(_ context.Context, _ string) (bool, error) { return true, nil }
func (f *fakeSearchAdapter) DeleteByFilter(_ context.Context, _ storage.Filters, _ int) (storage.DeleteBreakdown, error) {
	return storage.DeleteBreakdown{}, nil
}
func (f *fakeSearchAdapter) ListMemories(_ context.Context, _ storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	return &storage.PaginatedResult[types.Memory]{}, nil
}
func (f *fakeSearchAdapter) Count(_ context.Context, _ storage.Filters) (int, error) { return 0, nil }
func (f *fakeSearchAdapter) GetAllProjects(_ context.Context) ([]string, error)       { return nil, nil }
func (f *fakeSearchAdapter) GetProjectStats(_ context.Context, _ string) (storage.ProjectStats, error) {
	return storage.ProjectStats{}, nil
}
func (f *fakeSearchAdapter) HealthCheck(_ context.Context) bool { return true }
func (f *fakeSearchAdapter) Close() error                       { return nil }

type fakeSearchEmbedder struct{}

func (fakeSearchEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeSearchEmbedder) GetModel() string { return "fake-search-embedder" }

func searchTestMemory(id, project string) *types.Memory {
	return &types.Memory{
		ID: id, Content: "content for " + id, Category: types.CategoryFact,
		Scope: types.ScopeProject, ProjectName: project,
	}
}

func TestRetrieveMemoriesReturnsAdapterResults(t *testing.T) {
	adapter := newFakeSearchAdapter()
	adapter.seed("P1", storage.Scored{Memory: searchTestMemory("mem:a", "P1"), Score: 0.9})

	orch := NewSearchOrchestrator(adapter, fakeSearchEmbedder{}, nil, nil, nil)
	orch.UsageTrackingEnabled = false

	res, err := orch.RetrieveMemories(context.Background(), types.QueryRequest{Query: "find this", Limit: 10, ProjectName: "P1"})

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "mem:a", res.Results[0].Memory.ID)
}

func TestRetrieveMemoriesRejectsEmptyQuery(t *testing.T) {
	orch := NewSearchOrchestrator(newFakeSearchAdapter(), fakeSearchEmbedder{}, nil, nil, nil)

	_, err := orch.RetrieveMemories(context.Background(), types.QueryRequest{Query: "", Limit: 10})

	assert.Error(t, err)
}

func TestSearchAllProjectsWithNoOptInsReturnsEmpty(t *testing.T) {
	orch := NewSearchOrchestrator(newFakeSearchAdapter(), fakeSearchEmbedder{}, nil, nil, nil)

	res, err := orch.SearchAllProjects(context.Background(), fakeRegistry{}, types.QueryRequest{Query: "x", Limit: 10})

	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Empty(t, res.ProjectsSearched)
}

func TestSearchAllProjectsMergesAndSortsAcrossProjects(t *testing.T) {
	adapter := newFakeSearchAdapter()
	adapter.seed("P1", storage.Scored{Memory: searchTestMemory("mem:p1", "P1"), Score: 0.5})
	adapter.seed("P2", storage.Scored{Memory: searchTestMemory("mem:p2", "P2"), Score: 0.9})

	orch := NewSearchOrchestrator(adapter, fakeSearchEmbedder{}, nil, nil, nil)
	orch.UsageTrackingEnabled = false

	res, err := orch.SearchAllProjects(context.Background(), fakeRegistry{"P1", "P2"}, types.QueryRequest{Query: "x", Limit: 10})

	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "mem:p2", res.Results[0].Memory.ID)
	assert.Equal(t, "P2", res.Results[0].Project)
	assert.ElementsMatch(t, []string{"P1", "P2"}, res.ProjectsSearched)
	assert.Empty(t, res.FailedProjects)
}

func TestSearchAllProjectsTruncatesToLimit(t *testing.T) {
	adapter := newFakeSearchAdapter()
	adapter.seed("P1", storage.Scored{Memory: searchTestMemory("mem:p1", "P1"), Score: 0.5})
	adapter.seed("P2", storage.Scored{Memory: searchTestMemory("mem:p2", "P2"), Score: 0.9})

	orch := NewSearchOrchestrator(adapter, fakeSearchEmbedder{}, nil, nil, nil)
	orch.UsageTrackingEnabled = false

	res, err := orch.SearchAllProjects(context.Background(), fakeRegistry{"P1", "P2"}, types.QueryRequest{Query: "x", Limit: 1})

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "mem:p2", res.Results[0].Memory.ID)
}

func TestSearchAllProjectsReportsPartialFailureWithoutAborting(t *testing.T) {
	adapter := newFakeSearchAdapter()
	adapter.seed("P1", storage.Scored{Memory: searchTestMemory("mem:p1", "P1"), Score: 0.5})
	adapter.failFor["P2"] = true

	orch := NewSearchOrchestrator(adapter, fakeSearchEmbedder{}, nil, nil, nil)
	orch.UsageTrackingEnabled = false

	res, err := orch.SearchAllProjects(context.Background(), fakeRegistry{"P1", "P2"}, types.QueryRequest{Query: "x", Limit: 10})

	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "mem:p1", res.Results[0].Memory.ID)
	require.Len(t, res.FailedProjects, 1)
	assert.Equal(t, "P2", res.FailedProjects[0].Project)
}

type fakeRegistry []string

func (f fakeRegistry) OptedInProjects() []string { return []string(f) }
