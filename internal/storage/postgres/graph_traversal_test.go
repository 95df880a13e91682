package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/pkg/types"
)

func insertEntity(t *testing.T, store interface {
	StoreEntity(ctx context.Context, e *types.Entity) error
}, id, name, typ string) {
	t.Helper()
	require.NoError(t, store.StoreEntity(context.Background(), &types.Entity{ID: id, Name: name, Type: typ}))
}

func TestGetMemoryEntities_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, testMemory("mem:pg:ent:1"), nil)
	require.NoError(t, err)
	insertEntity(t, store, "ent:pg:deploy", "deploy", "concept")

	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO memory_entities (memory_id, entity_id) VALUES ($1, $2)`, "mem:pg:ent:1", "ent:pg:deploy")
	require.NoError(t, err)

	entities, err := store.GetMemoryEntities(ctx, "mem:pg:ent:1")
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "deploy", entities[0].Name)
}

func TestGetRelatedMemories_SharesEntity_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, testMemory("mem:pg:rel:a"), nil)
	require.NoError(t, err)
	_, err = store.Store(ctx, testMemory("mem:pg:rel:b"), nil)
	require.NoError(t, err)
	insertEntity(t, store, "ent:pg:shared", "shared", "concept")

	_, err = store.DB().ExecContext(ctx,
		`INSERT INTO memory_entities (memory_id, entity_id) VALUES ($1, $2), ($3, $2)`,
		"mem:pg:rel:a", "ent:pg:shared", "mem:pg:rel:b")
	require.NoError(t, err)

	related, err := store.GetRelatedMemories(ctx, "mem:pg:rel:a")
	require.NoError(t, err)
	assert.Contains(t, related, "mem:pg:rel:b")
}

func TestTraverse_NoEntitiesReturnsEmpty_Postgres(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Store(ctx, testMemory("mem:pg:lonely"), nil)
	require.NoError(t, err)

	results, err := store.Traverse(ctx, "mem:pg:lonely", 2, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
