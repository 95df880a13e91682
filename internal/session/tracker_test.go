package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/session"
)

func TestTracker_TrackQueryAndRecall(t *testing.T) {
	tr := session.New(time.Hour)
	tr.TrackQuery("s1", "first query", nil, []string{"mem:1", "mem:2"})
	tr.TrackQuery("s1", "second query", nil, []string{"mem:3"})

	recent := tr.GetRecentQueries("s1")
	require.Len(t, recent, 2)
	assert.Equal(t, "first query", recent[0].QueryText)
	assert.Equal(t, "second query", recent[1].QueryText)

	shown := tr.GetShownMemoryIDs("s1")
	assert.Contains(t, shown, "mem:1")
	assert.Contains(t, shown, "mem:2")
	assert.Contains(t, shown, "mem:3")
}

func TestTracker_RecentQueriesFIFOCapped(t *testing.T) {
	tr := session.New(time.Hour)
	for i := 0; i < 15; i++ {
		tr.TrackQuery("s1", "query", nil, nil)
	}
	assert.Len(t, tr.GetRecentQueries("s1"), 10)
}

func TestTracker_ShownIDsLRUCapped(t *testing.T) {
	tr := session.New(time.Hour)
	ids := make([]string, 0, 1500)
	for i := 0; i < 1500; i++ {
		ids = append(ids, string(rune('a'+i%26))+string(rune(i)))
	}
	tr.TrackQuery("s1", "q", nil, ids)
	assert.LessOrEqual(t, len(tr.GetShownMemoryIDs("s1")), 1000)
}

func TestTracker_SessionsAreIndependent(t *testing.T) {
	tr := session.New(time.Hour)
	tr.TrackQuery("s1", "a", nil, []string{"x"})
	tr.TrackQuery("s2", "b", nil, []string{"y"})

	assert.Len(t, tr.GetRecentQueries("s1"), 1)
	assert.Len(t, tr.GetRecentQueries("s2"), 1)
	assert.NotContains(t, tr.GetShownMemoryIDs("s1"), "y")
}

func TestTracker_ExpiredSessionIsReset(t *testing.T) {
	tr := session.New(10 * time.Millisecond)
	tr.TrackQuery("s1", "a", nil, []string{"x"})
	time.Sleep(20 * time.Millisecond)

	// Touching any session triggers eviction sweep; s1 should come back empty.
	tr.TrackQuery("s2", "b", nil, nil)
	assert.Empty(t, tr.GetRecentQueries("s1"))
}
