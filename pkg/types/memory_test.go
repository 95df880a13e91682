package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/memento/pkg/types"
)

func TestMemoryTouch(t *testing.T) {
	m := &types.Memory{
		LifecycleState: types.LifecycleStale,
		AccessCount:    4,
	}
	now := time.Now()
	m.Touch(now)

	assert.Equal(t, now, m.LastAccessed)
	assert.Equal(t, types.LifecycleActive, m.LifecycleState)
	assert.Equal(t, 5, m.AccessCount)
}

func TestMemoryRefreshLifecycle(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m := &types.Memory{
		LastAccessed: now.Add(-200 * 24 * time.Hour),
		AccessCount:  10,
	}
	m.RefreshLifecycle(now)

	assert.Equal(t, types.LifecycleStale, m.LifecycleState)
	// RefreshLifecycle must not count as an access.
	assert.Equal(t, 10, m.AccessCount)
}

func TestContentHashDeterministic(t *testing.T) {
	a := types.ContentHash("hello world")
	b := types.ContentHash("hello world")
	c := types.ContentHash("hello World")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex-encoded SHA-256
}

func TestNewProvenanceDefaults(t *testing.T) {
	p := types.NewProvenance(types.ProvenanceUserExplicit, "alice")

	assert.Equal(t, types.ProvenanceUserExplicit, p.Source)
	assert.Equal(t, "alice", p.CreatedBy)
	assert.Equal(t, types.DefaultConfidence, p.Confidence)
	assert.False(t, p.Verified)
}
