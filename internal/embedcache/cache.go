// Package embedcache implements the content-addressed embedding cache
// described in spec.md 4.2: a persistent cache keyed by
// SHA-256(model || 0x1F || text), with a TTL, an in-process LRU hot
// layer, and a singleflight group so concurrent requests for the same
// (model, text) pair never issue more than one upstream embedding call
// (spec.md 4.3 P7, the one "required" concurrency property of this
// repo).
package embedcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/vecenc"
)

// Key returns the cache key for (model, text): the hex-encoded
// SHA-256 of model, a 0x1F separator byte, and text.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0x1F})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Generator is the minimal embedding-producing dependency the cache
// wraps; satisfied by internal/llm.EmbeddingGenerator.
type Generator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache is a two-layer (LRU + SQLite) content-addressed embedding
// cache with TTL eviction and de-duplicated concurrent fills.
type Cache struct {
	db    *sql.DB
	hot   *lru.Cache[string, []float32]
	group singleflight.Group
	ttl   time.Duration
}

// New builds a Cache backed by db (expected to already have the
// embedding_cache table from the schema migrations) with a hot LRU
// layer of hotSize entries and the given entry TTL.
func New(db *sql.DB, hotSize int, ttl time.Duration) (*Cache, error) {
	if hotSize <= 0 {
		hotSize = 1000
	}
	hot, err := lru.New[string, []float32](hotSize)
	if err != nil {
		return nil, fmt.Errorf("embedcache: building LRU layer: %w", err)
	}
	return &Cache{db: db, hot: hot, ttl: ttl}, nil
}

// Get fetches or computes the embedding for (model, text), using gen to
// fill on a cache miss. Concurrent calls with the same key share a
// single in-flight computation (P7).
func (c *Cache) Get(ctx context.Context, model, text string, gen Generator) ([]float32, error) {
	key := Key(model, text)

	if vec, ok := c.hot.Get(key); ok {
		return vec, nil
	}

	if vec, ok, err := c.lookupDB(ctx, key); err != nil {
		return nil, err
	} else if ok {
		c.hot.Add(key, vec)
		return vec, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check now that we hold the singleflight slot: another
		// caller may have just filled it while we were queued.
		if vec, ok, err := c.lookupDB(ctx, key); err != nil {
			return nil, err
		} else if ok {
			return vec, nil
		}

		vec, err := gen.Embed(ctx, text)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "embedding generation failed")
		}
		if err := c.store(ctx, key, model, vec); err != nil {
			return nil, err
		}
		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	vec := v.([]float32)
	c.hot.Add(key, vec)
	return vec, nil
}

// Hit reports whether (model, text) is already present in the cache,
// without triggering generation on a miss. Callers use this immediately
// before Get to report whether a retrieval used a cached embedding
// (spec.md 4.8.2 step 8's used_cache field).
func (c *Cache) Hit(ctx context.Context, model, text string) bool {
	key := Key(model, text)
	if _, ok := c.hot.Get(key); ok {
		return true
	}
	_, ok, err := c.lookupDB(ctx, key)
	return err == nil && ok
}

func (c *Cache) lookupDB(ctx context.Context, key string) ([]float32, bool, error) {
	var blob []byte
	var createdAt time.Time
	err := c.db.QueryRowContext(ctx,
		`SELECT embedding, created_at FROM embedding_cache WHERE cache_key = ?`,
		key,
	).Scan(&blob, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "embedding cache lookup failed")
	}
	if c.ttl > 0 && time.Since(createdAt) > c.ttl {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE cache_key = ?`, key)
		return nil, false, nil
	}
	return vecenc.Decode(blob), true, nil
}

func (c *Cache) store(ctx context.Context, key, model string, vec []float32) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (cache_key, model, embedding, created_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(cache_key) DO UPDATE SET
			embedding = excluded.embedding,
			model = excluded.model,
			created_at = CURRENT_TIMESTAMP
	`, key, model, vecenc.Encode(vec))
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "embedding cache write failed")
	}
	return nil
}
