package embedcache_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrypster/memento/internal/embedcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE embedding_cache (
			cache_key  TEXT PRIMARY KEY,
			model      TEXT NOT NULL,
			embedding  BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err)
	return db
}

type countingGenerator struct {
	calls int32
	vec   []float32
	delay time.Duration
}

func (g *countingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.vec, nil
}

func TestCache_MissThenHit(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	c, err := embedcache.New(db, 100, time.Hour)
	require.NoError(t, err)

	gen := &countingGenerator{vec: []float32{0.1, 0.2, 0.3}}
	ctx := context.Background()

	vec, err := c.Get(ctx, "nomic-embed-text", "hello world", gen)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.EqualValues(t, 1, gen.calls)

	vec2, err := c.Get(ctx, "nomic-embed-text", "hello world", gen)
	require.NoError(t, err)
	assert.Equal(t, vec, vec2)
	assert.EqualValues(t, 1, gen.calls, "second Get must not call the generator again")
}

func TestCache_DistinctTextsDoNotCollide(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	c, err := embedcache.New(db, 100, time.Hour)
	require.NoError(t, err)

	gen := &countingGenerator{vec: []float32{1, 2}}
	ctx := context.Background()

	_, err = c.Get(ctx, "m", "text a", gen)
	require.NoError(t, err)
	_, err = c.Get(ctx, "m", "text b", gen)
	require.NoError(t, err)
	assert.EqualValues(t, 2, gen.calls)
}

func TestCache_ExpiredEntryRecomputes(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	c, err := embedcache.New(db, 100, time.Millisecond)
	require.NoError(t, err)

	gen := &countingGenerator{vec: []float32{9}}
	ctx := context.Background()

	_, err = c.Get(ctx, "m", "text", gen)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = c.Get(ctx, "m", "text", gen)
	require.NoError(t, err)
	assert.EqualValues(t, 2, gen.calls, "expired entry must be recomputed")
}

func TestCache_ConcurrentFillIsDeduplicated(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	c, err := embedcache.New(db, 100, time.Hour)
	require.NoError(t, err)

	gen := &countingGenerator{vec: []float32{1}, delay: 20 * time.Millisecond}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(ctx, "m", "shared text", gen)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, gen.calls, "concurrent fills for the same key must be de-duplicated (P7)")
}

func TestKey_DeterministicAndModelSensitive(t *testing.T) {
	a := embedcache.Key("model-a", "hello")
	b := embedcache.Key("model-a", "hello")
	c := embedcache.Key("model-b", "hello")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
