package sqlite

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing. NewMemoryStore
// applies the full Schema, so no additional DDL is required in tests.
func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testMemory(id string) *types.Memory {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Memory{
		ID:             id,
		Content:        "the deploy pipeline retries three times before paging oncall",
		Category:       types.CategoryWorkflow,
		ContextLevel:   types.ContextProjectContext,
		Scope:          types.ScopeProject,
		ProjectName:    "infra",
		Importance:     0.7,
		EmbeddingModel: "nomic-embed-text",
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessed:   now,
		LifecycleState: types.LifecycleActive,
		Provenance:     types.NewProvenance(types.ProvenanceUserExplicit, "agent:claude"),
		Tags:           []string{"deploy", "oncall"},
	}
}

func TestStoreAndGetByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := testMemory("mem:test:store-1")
	vec := []float32{0.1, 0.2, 0.3}

	id, err := store.Store(ctx, mem, vec)
	if err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if id != mem.ID {
		t.Fatalf("Store() id = %q, want %q", id, mem.ID)
	}

	got, err := store.GetByID(ctx, mem.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Content != mem.Content {
		t.Errorf("Content = %q, want %q", got.Content, mem.Content)
	}
	if got.Category != mem.Category {
		t.Errorf("Category = %q, want %q", got.Category, mem.Category)
	}
	if got.ProjectName != mem.ProjectName {
		t.Errorf("ProjectName = %q, want %q", got.ProjectName, mem.ProjectName)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", got.Tags)
	}
	if got.Provenance.CreatedBy != "agent:claude" {
		t.Errorf("Provenance.CreatedBy = %q, want %q", got.Provenance.CreatedBy, "agent:claude")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetByID(context.Background(), "mem:does-not-exist")
	if err != engineerr.ErrNotFound {
		t.Fatalf("GetByID() err = %v, want engineerr.ErrNotFound", err)
	}
}

func TestUpdate_AtomicReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := testMemory("mem:test:update-1")
	if _, err := store.Store(ctx, mem, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	updated := testMemory(mem.ID)
	updated.Content = "the deploy pipeline now retries five times"
	updated.Importance = 0.9

	ok, err := store.Update(ctx, mem.ID, updated, nil)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if !ok {
		t.Fatal("Update() returned false for an existing memory")
	}

	got, err := store.GetByID(ctx, mem.ID)
	if err != nil {
		t.Fatalf("GetByID() after update failed: %v", err)
	}
	if got.Content != updated.Content {
		t.Errorf("Content = %q, want %q", got.Content, updated.Content)
	}
	if got.Importance != 0.9 {
		t.Errorf("Importance = %v, want 0.9", got.Importance)
	}
}

func TestUpdate_MissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Update(context.Background(), "mem:missing", testMemory("mem:missing"), nil)
	if err != engineerr.ErrNotFound {
		t.Fatalf("Update() err = %v, want engineerr.ErrNotFound", err)
	}
}

func TestDelete_SoftDeletesAndHidesFromGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := testMemory("mem:test:delete-1")
	if _, err := store.Store(ctx, mem, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	ok, err := store.Delete(ctx, mem.ID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if !ok {
		t.Fatal("Delete() returned false for an existing memory")
	}

	if _, err := store.GetByID(ctx, mem.ID); err != engineerr.ErrNotFound {
		t.Fatalf("GetByID() after delete err = %v, want engineerr.ErrNotFound", err)
	}
}

func TestDeleteByFilter_HardCapAndBreakdown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mem := testMemory("mem:test:bulk-" + string(rune('a'+i)))
		mem.ProjectName = "bulk-project"
		if _, err := store.Store(ctx, mem, nil); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	breakdown, err := store.DeleteByFilter(ctx, storage.Filters{ProjectName: "bulk-project"}, 3)
	if err != nil {
		t.Fatalf("DeleteByFilter() failed: %v", err)
	}
	if breakdown.DeletedCount != 3 {
		t.Errorf("DeletedCount = %d, want 3", breakdown.DeletedCount)
	}
	if breakdown.ByProject["bulk-project"] != 3 {
		t.Errorf("ByProject[bulk-project] = %d, want 3", breakdown.ByProject["bulk-project"])
	}

	count, err := store.Count(ctx, storage.Filters{ProjectName: "bulk-project"})
	if err != nil {
		t.Fatalf("Count() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after delete = %d, want 2", count)
	}
}

func TestDeleteByFilter_CapsAtOneThousandRegardlessOfRequest(t *testing.T) {
	store := newTestStore(t)
	breakdown, err := store.DeleteByFilter(context.Background(), storage.Filters{}, 50_000)
	if err != nil {
		t.Fatalf("DeleteByFilter() failed: %v", err)
	}
	if breakdown.DeletedCount > 1000 {
		t.Errorf("DeletedCount = %d, must never exceed 1000", breakdown.DeletedCount)
	}
}

func TestListMemories_PaginationAndSort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		mem := testMemory("mem:test:list-" + string(rune('a'+i)))
		mem.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		mem.UpdatedAt = mem.CreatedAt
		if _, err := store.Store(ctx, mem, nil); err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}

	opts := storage.ListOptions{Page: 1, Limit: 10, SortBy: "created_at", SortOrder: "desc"}
	result, err := store.ListMemories(ctx, opts)
	if err != nil {
		t.Fatalf("ListMemories() failed: %v", err)
	}
	if len(result.Items) != 10 {
		t.Fatalf("len(Items) = %d, want 10", len(result.Items))
	}
	if result.Total != 15 {
		t.Errorf("Total = %d, want 15", result.Total)
	}
	if !result.HasMore {
		t.Error("HasMore = false, want true")
	}
	for i := 1; i < len(result.Items); i++ {
		if result.Items[i].CreatedAt.After(result.Items[i-1].CreatedAt) {
			t.Fatalf("items not sorted descending by created_at at index %d", i)
		}
	}
}

func TestListMemories_RejectsUnknownSortField(t *testing.T) {
	store := newTestStore(t)
	opts := storage.ListOptions{SortBy: "content; DROP TABLE memories;--"}
	opts.Normalize()
	if opts.SortBy != "created_at" {
		t.Fatalf("Normalize() did not fall back from an unwhitelisted sort field: got %q", opts.SortBy)
	}
}

func TestGetAllProjectsAndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem1 := testMemory("mem:test:proj-1")
	mem1.ProjectName = "alpha"
	mem1.Importance = 0.4
	mem2 := testMemory("mem:test:proj-2")
	mem2.ProjectName = "alpha"
	mem2.Importance = 0.8

	if _, err := store.Store(ctx, mem1, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := store.Store(ctx, mem2, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	projects, err := store.GetAllProjects(ctx)
	if err != nil {
		t.Fatalf("GetAllProjects() failed: %v", err)
	}
	found := false
	for _, p := range projects {
		if p == "alpha" {
			found = true
		}
	}
	if !found {
		t.Fatalf("GetAllProjects() = %v, want to contain %q", projects, "alpha")
	}

	stats, err := store.GetProjectStats(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetProjectStats() failed: %v", err)
	}
	if stats.MemoryCount != 2 {
		t.Errorf("MemoryCount = %d, want 2", stats.MemoryCount)
	}
	if math.Abs(stats.AvgImportance-0.6) > 1e-9 {
		t.Errorf("AvgImportance = %v, want 0.6", stats.AvgImportance)
	}
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	if !store.HealthCheck(context.Background()) {
		t.Fatal("HealthCheck() = false for a freshly opened store")
	}
}

func TestRetrieve_RanksBySimilarityDescending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	close := testMemory("mem:test:retrieve-close")
	far := testMemory("mem:test:retrieve-far")

	if _, err := store.Store(ctx, close, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := store.Store(ctx, far, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	results, err := store.Retrieve(ctx, []float32{1, 0, 0}, storage.Filters{}, 10)
	if err != nil {
		t.Fatalf("Retrieve() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Memory.ID != close.ID {
		t.Errorf("results[0].Memory.ID = %q, want %q", results[0].Memory.ID, close.ID)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not in descending score order: %v", results)
	}
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v out of [0,1] bounds", r.Score)
		}
	}
}

func TestRetrieve_AppliesFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alpha := testMemory("mem:test:retrieve-alpha")
	alpha.ProjectName = "alpha"
	beta := testMemory("mem:test:retrieve-beta")
	beta.ProjectName = "beta"

	if _, err := store.Store(ctx, alpha, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := store.Store(ctx, beta, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	results, err := store.Retrieve(ctx, []float32{1, 0, 0}, storage.Filters{ProjectName: "alpha"}, 10)
	if err != nil {
		t.Fatalf("Retrieve() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Memory.ID != alpha.ID {
		t.Errorf("results[0].Memory.ID = %q, want %q", results[0].Memory.ID, alpha.ID)
	}
}

func TestBatchStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	memories := []*types.Memory{
		testMemory("mem:test:batch-1"),
		testMemory("mem:test:batch-2"),
	}
	vectors := [][]float32{{1, 0}, {0, 1}}

	ids, err := store.BatchStore(ctx, memories, vectors)
	if err != nil {
		t.Fatalf("BatchStore() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}

	for _, m := range memories {
		if _, err := store.GetByID(ctx, m.ID); err != nil {
			t.Errorf("GetByID(%q) failed after BatchStore: %v", m.ID, err)
		}
	}
}
