package sqlite

import (
	"context"
	"testing"

	"github.com/scrypster/memento/internal/storage"
)

func TestTextSearch_MatchesContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := testMemory("mem:test:fts-1")
	mem.Content = "the deploy pipeline retries three times before paging oncall"
	if _, err := store.Store(ctx, mem, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	results, err := store.TextSearch(ctx, "deploy pipeline", storage.Filters{}, 10)
	if err != nil {
		t.Fatalf("TextSearch() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Memory.ID != mem.ID {
		t.Errorf("results[0].Memory.ID = %q, want %q", results[0].Memory.ID, mem.ID)
	}
}

func TestTextSearch_NoMatchReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := testMemory("mem:test:fts-2")
	mem.Content = "the deploy pipeline retries three times before paging oncall"
	if _, err := store.Store(ctx, mem, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	results, err := store.TextSearch(ctx, "unrelated gibberish query", storage.Filters{}, 10)
	if err != nil {
		t.Fatalf("TextSearch() failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestTextSearch_AppliesProjectFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alpha := testMemory("mem:test:fts-alpha")
	alpha.ProjectName = "alpha"
	alpha.Content = "alpha project deploy notes"
	beta := testMemory("mem:test:fts-beta")
	beta.ProjectName = "beta"
	beta.Content = "beta project deploy notes"

	if _, err := store.Store(ctx, alpha, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	if _, err := store.Store(ctx, beta, nil); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}

	results, err := store.TextSearch(ctx, "deploy notes", storage.Filters{ProjectName: "alpha"}, 10)
	if err != nil {
		t.Fatalf("TextSearch() failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Memory.ID != alpha.ID {
		t.Errorf("results[0].Memory.ID = %q, want %q", results[0].Memory.ID, alpha.ID)
	}
}

func TestSanitiseFTSQuery_StripsStopWordsAndSpecials(t *testing.T) {
	got := sanitiseFTSQuery(`What is the deploy process?`)
	want := "deploy* OR process*"
	if got != want {
		t.Fatalf("sanitiseFTSQuery() = %q, want %q", got, want)
	}
}
