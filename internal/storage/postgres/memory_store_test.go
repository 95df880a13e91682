package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/storage/postgres"
	"github.com/scrypster/memento/pkg/types"
)

// postgresTestDSN returns the DSN for the test database. These are
// integration tests against a live server, so they are skipped unless
// POSTGRES_TEST_DSN is set.
func postgresTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.MemoryStore {
	t.Helper()
	dsn := postgresTestDSN(t)

	store, err := postgres.NewMemoryStore(dsn)
	require.NoError(t, err, "NewMemoryStore should succeed")

	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { store.Close() })

	return store
}

func testMemory(id string) *types.Memory {
	return &types.Memory{
		ID:       id,
		Content:  "test memory content for " + id,
		Category: types.CategoryFact,
		Scope:    types.ScopeProject,
		Provenance: types.Provenance{
			Source:     types.ProvenanceExplicit,
			Confidence: 0.9,
		},
	}
}

func TestStoreAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem:pg:1")
	id, err := store.Store(ctx, m, []float32{0.1, 0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, "mem:pg:1", id)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Category, got.Category)
}

func TestGetByID_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetByID(context.Background(), "mem:pg:missing")
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestUpdate_AtomicReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem:pg:upd")
	_, err := store.Store(ctx, m, nil)
	require.NoError(t, err)

	replacement := testMemory("mem:pg:upd")
	replacement.Content = "replaced content"
	ok, err := store.Update(ctx, "mem:pg:upd", replacement, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetByID(ctx, "mem:pg:upd")
	require.NoError(t, err)
	assert.Equal(t, "replaced content", got.Content)
}

func TestUpdate_MissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update(context.Background(), "mem:pg:nope", testMemory("mem:pg:nope"), nil)
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestDelete_SoftDeletesAndHidesFromGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem:pg:del")
	_, err := store.Store(ctx, m, nil)
	require.NoError(t, err)

	ok, err := store.Delete(ctx, "mem:pg:del")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.GetByID(ctx, "mem:pg:del")
	assert.ErrorIs(t, err, engineerr.ErrNotFound)
}

func TestDeleteByFilter_Breakdown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := testMemory("mem:pg:bulk:" + string(rune('a'+i)))
		m.ProjectName = "proj-x"
		_, err := store.Store(ctx, m, nil)
		require.NoError(t, err)
	}

	breakdown, err := store.DeleteByFilter(ctx, storage.Filters{ProjectName: "proj-x"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, breakdown.DeletedCount)
	assert.Equal(t, 3, breakdown.ByProject["proj-x"])
}

func TestDeleteByFilter_CapsAtOneThousandRegardlessOfRequest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem:pg:cap")
	_, err := store.Store(ctx, m, nil)
	require.NoError(t, err)

	breakdown, err := store.DeleteByFilter(ctx, storage.Filters{}, 5_000_000)
	require.NoError(t, err)
	assert.LessOrEqual(t, breakdown.DeletedCount, 1000)
}

func TestListMemories_PaginationAndSort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m := testMemory("mem:pg:list:" + string(rune('a'+i)))
		m.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		_, err := store.Store(ctx, m, nil)
		require.NoError(t, err)
	}

	page, err := store.ListMemories(ctx, storage.ListOptions{Page: 1, Limit: 2, SortBy: "created_at", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)
}

func TestListMemories_RejectsUnknownSortField(t *testing.T) {
	store := newTestStore(t)
	opts := storage.ListOptions{SortBy: "'; DROP TABLE memories; --"}
	opts.Normalize()
	assert.Equal(t, "created_at", opts.SortBy)

	_, err := store.ListMemories(context.Background(), opts)
	require.NoError(t, err)
}

func TestGetAllProjectsAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := testMemory("mem:pg:proj")
	m.ProjectName = "acme"
	_, err := store.Store(ctx, m, nil)
	require.NoError(t, err)

	projects, err := store.GetAllProjects(ctx)
	require.NoError(t, err)
	assert.Contains(t, projects, "acme")

	stats, err := store.GetProjectStats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MemoryCount)
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	assert.True(t, store.HealthCheck(context.Background()))
}

func TestRetrieve_RanksBySimilarityDescending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, testMemory("mem:pg:vec:close"), []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = store.Store(ctx, testMemory("mem:pg:vec:far"), []float32{0, 1, 0})
	require.NoError(t, err)

	results, err := store.Retrieve(ctx, []float32{1, 0, 0}, storage.Filters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "mem:pg:vec:close", results[0].Memory.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[len(results)-1].Score)
}

func TestBatchStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	memories := []*types.Memory{testMemory("mem:pg:batch:1"), testMemory("mem:pg:batch:2")}
	vectors := [][]float32{{0.1, 0.2}, {0.3, 0.4}}

	ids, err := store.BatchStore(ctx, memories, vectors)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	got, err := store.GetByID(ctx, "mem:pg:batch:2")
	require.NoError(t, err)
	assert.Equal(t, memories[1].Content, got.Content)
}
