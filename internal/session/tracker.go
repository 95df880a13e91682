// Package session implements the per-session conversation tracker
// (spec.md 4.6): a bounded FIFO of recent queries and an LRU-capped set
// of memory ids already surfaced this session, expiring after a
// configurable TTL since last touch.
package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultRecentQueriesCap is N in spec.md 4.6's recent_queries FIFO.
const defaultRecentQueriesCap = 10

// defaultShownIDsCap is the LRU cap on shown_memory_ids.
const defaultShownIDsCap = 1000

// RecentQuery is one entry of the recent_queries FIFO.
type RecentQuery struct {
	QueryText   string
	QueryVector []float32
	Timestamp   time.Time
}

// session holds one session's tracked state plus its last-touch time for
// TTL expiry.
type session struct {
	mu            sync.Mutex
	recentQueries []RecentQuery
	shownIDs      *lru.Cache[string, struct{}]
	lastTouch     time.Time
}

// Tracker owns all active sessions, evicting those idle past ttl.
type Tracker struct {
	mu              sync.Mutex
	sessions        map[string]*session
	ttl             time.Duration
	recentQueriesN  int
	shownIDsCap     int
}

// New builds a Tracker with the given session TTL (spec.md 4.6: default
// 48h since last touch).
func New(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &Tracker{
		sessions:       make(map[string]*session),
		ttl:            ttl,
		recentQueriesN: defaultRecentQueriesCap,
		shownIDsCap:    defaultShownIDsCap,
	}
}

func (t *Tracker) get(id string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked()

	s, ok := t.sessions[id]
	if !ok {
		shown, _ := lru.New[string, struct{}](t.shownIDsCap)
		s = &session{shownIDs: shown, lastTouch: time.Now()}
		t.sessions[id] = s
	}
	return s
}

// evictLocked drops sessions whose last touch is older than ttl. Caller
// must hold t.mu.
func (t *Tracker) evictLocked() {
	now := time.Now()
	for id, s := range t.sessions {
		s.mu.Lock()
		expired := now.Sub(s.lastTouch) > t.ttl
		s.mu.Unlock()
		if expired {
			delete(t.sessions, id)
		}
	}
}

// GetRecentQueries returns session's recent_queries, oldest first.
func (t *Tracker) GetRecentQueries(sessionID string) []RecentQuery {
	s := t.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecentQuery, len(s.recentQueries))
	copy(out, s.recentQueries)
	return out
}

// GetShownMemoryIDs returns the set of memory ids already surfaced this
// session.
func (t *Tracker) GetShownMemoryIDs(sessionID string) map[string]struct{} {
	s := t.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{}, s.shownIDs.Len())
	for _, k := range s.shownIDs.Keys() {
		out[k] = struct{}{}
	}
	return out
}

// TrackQuery appends query to the session's recent_queries FIFO
// (evicting the oldest entry past the cap) and records resultsShown in
// the shown_memory_ids LRU.
func (t *Tracker) TrackQuery(sessionID, query string, queryVector []float32, resultsShown []string) {
	s := t.get(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTouch = time.Now()
	s.recentQueries = append(s.recentQueries, RecentQuery{
		QueryText:   query,
		QueryVector: queryVector,
		Timestamp:   s.lastTouch,
	})
	if len(s.recentQueries) > t.recentQueriesN {
		s.recentQueries = s.recentQueries[len(s.recentQueries)-t.recentQueriesN:]
	}

	for _, id := range resultsShown {
		s.shownIDs.Add(id, struct{}{})
	}
}
