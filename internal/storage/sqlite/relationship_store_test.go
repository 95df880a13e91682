package sqlite

import (
	"context"
	"testing"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/pkg/types"
)

func TestCreateAndGetRelationship(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	storeTestMemory(t, store, "mem:rel:a")
	storeTestMemory(t, store, "mem:rel:b")

	rel := types.NewAutoRelationship("mem:rel:a", "mem:rel:b", types.RelationDuplicate, 0.92, "near-identical content")
	if err := store.CreateRelationship(ctx, &rel); err != nil {
		t.Fatalf("CreateRelationship() failed: %v", err)
	}

	rels, err := store.GetRelationships(ctx, "mem:rel:a", 10)
	if err != nil {
		t.Fatalf("GetRelationships() failed: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("len(rels) = %d, want 1", len(rels))
	}
	if rels[0].RelationshipType != types.RelationDuplicate {
		t.Errorf("RelationshipType = %q, want %q", rels[0].RelationshipType, types.RelationDuplicate)
	}
	if rels[0].DetectedBy != "auto" {
		t.Errorf("DetectedBy = %q, want auto", rels[0].DetectedBy)
	}
}

func TestDeleteRelationship(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	storeTestMemory(t, store, "mem:rel:x")
	storeTestMemory(t, store, "mem:rel:y")

	rel := types.NewAutoRelationship("mem:rel:x", "mem:rel:y", types.RelationContradicts, 0.8, "")
	if err := store.CreateRelationship(ctx, &rel); err != nil {
		t.Fatalf("CreateRelationship() failed: %v", err)
	}

	if err := store.DeleteRelationship(ctx, "mem:rel:x", "mem:rel:y", types.RelationContradicts); err != nil {
		t.Fatalf("DeleteRelationship() failed: %v", err)
	}

	rels, err := store.GetRelationships(ctx, "mem:rel:x", 10)
	if err != nil {
		t.Fatalf("GetRelationships() failed: %v", err)
	}
	if len(rels) != 0 {
		t.Fatalf("len(rels) = %d, want 0 after delete", len(rels))
	}

	if err := store.DeleteRelationship(ctx, "mem:rel:x", "mem:rel:y", types.RelationContradicts); err != engineerr.ErrNotFound {
		t.Fatalf("DeleteRelationship() on missing edge err = %v, want engineerr.ErrNotFound", err)
	}
}

func TestStoreAndGetEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := &types.Entity{ID: "ent:concept:deploy", Name: "deploy", Type: "concept", Description: "release process"}
	if err := store.StoreEntity(ctx, entity); err != nil {
		t.Fatalf("StoreEntity() failed: %v", err)
	}

	got, err := store.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity() failed: %v", err)
	}
	if got.Name != "deploy" || got.Description != "release process" {
		t.Fatalf("GetEntity() = %+v, want matching name/description", got)
	}
}

func TestGetEntity_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetEntity(context.Background(), "ent:missing")
	if err != engineerr.ErrNotFound {
		t.Fatalf("GetEntity() err = %v, want engineerr.ErrNotFound", err)
	}
}
