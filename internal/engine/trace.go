package engine

import (
	"context"
	"time"
)

// contextKey is an unexported type for context keys owned by this package.
type contextKey string

const traceKey contextKey = "recall_trace"

// TraceEventKind classifies each trace event by type.
type TraceEventKind string

const (
	// KindSearchStarted is emitted at the beginning of a retrieval.
	KindSearchStarted TraceEventKind = "search_started"

	// KindCandidatesFound is emitted after the adapter's retrieve call
	// returns its candidate set.
	KindCandidatesFound TraceEventKind = "candidates_found"

	// KindScoredCandidate is emitted once per candidate that survived
	// session deduplication and received a composite score.
	KindScoredCandidate TraceEventKind = "scored_candidate"

	// KindFilteredOut is emitted for every candidate dropped by session
	// deduplication (spec.md 4.8.2 step 6).
	KindFilteredOut TraceEventKind = "filtered_out"

	// KindResultsReturned is emitted after pagination to record the final set.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during a retrieve_memories
// call, collected to serve explain_reasoning.
type TraceEvent struct {
	Kind TraceEventKind `json:"kind"`
	At   time.Time      `json:"at"`

	// MemoryID is populated for per-memory events.
	MemoryID string `json:"memory_id,omitempty"`

	// Source names the retrieval backend ("vector").
	Source string `json:"source,omitempty"`

	// Count is used by candidates_found and results_returned.
	Count int `json:"count,omitempty"`

	// Scores holds the composite-score breakdown for scored_candidate events.
	Scores *ScoreComponents `json:"scores,omitempty"`

	// TotalScore is the clamped composite score for scored_candidate events.
	TotalScore float64 `json:"total_score,omitempty"`

	// FilterReason explains a filtered_out event.
	FilterReason string `json:"filter_reason,omitempty"`

	// Query is the expanded query, populated in search_started.
	Query string `json:"query,omitempty"`

	// Filters captures the active filter options for search_started events.
	Filters map[string]string `json:"filters,omitempty"`

	// MemoryIDs lists all returned ids for results_returned events.
	MemoryIDs []string `json:"memory_ids,omitempty"`
}

func newTraceEvent(kind TraceEventKind) TraceEvent {
	return TraceEvent{Kind: kind, At: time.Now()}
}

// EventSearchStarted creates a search_started trace event.
func EventSearchStarted(query string, filters map[string]string) TraceEvent {
	e := newTraceEvent(KindSearchStarted)
	e.Query = query
	e.Filters = filters
	return e
}

// EventCandidatesFound creates a candidates_found trace event.
func EventCandidatesFound(count int, source string) TraceEvent {
	e := newTraceEvent(KindCandidatesFound)
	e.Count = count
	e.Source = source
	return e
}

// EventScoredCandidate creates a scored_candidate trace event.
func EventScoredCandidate(memoryID string, components ScoreComponents, total float64) TraceEvent {
	e := newTraceEvent(KindScoredCandidate)
	e.MemoryID = memoryID
	e.TotalScore = total
	e.Scores = &components
	return e
}

// EventFilteredOut creates a filtered_out trace event.
func EventFilteredOut(memoryID, reason string) TraceEvent {
	e := newTraceEvent(KindFilteredOut)
	e.MemoryID = memoryID
	e.FilterReason = reason
	return e
}

// EventResultsReturned creates a results_returned trace event.
func EventResultsReturned(memoryIDs []string) TraceEvent {
	e := newTraceEvent(KindResultsReturned)
	e.MemoryIDs = memoryIDs
	e.Count = len(memoryIDs)
	return e
}

// TraceCollector accumulates TraceEvents for a single retrieve_memories call.
type TraceCollector struct {
	events    []TraceEvent
	startedAt time.Time
}

// NewTraceCollector returns a fresh collector.
func NewTraceCollector() *TraceCollector {
	return &TraceCollector{startedAt: time.Now()}
}

// Emit appends an event to the collector.
func (tc *TraceCollector) Emit(e TraceEvent) {
	tc.events = append(tc.events, e)
}

// Events returns the collected events in emission order.
func (tc *TraceCollector) Events() []TraceEvent {
	return tc.events
}

// ElapsedMS returns the elapsed time since the collector was created, in milliseconds.
func (tc *TraceCollector) ElapsedMS() int64 {
	return time.Since(tc.startedAt).Milliseconds()
}

// WithTraceCollector stores a collector in the context.
func WithTraceCollector(ctx context.Context, tc *TraceCollector) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// TraceCollectorFromContext retrieves the collector from the context.
// Returns (nil, false) if none is present.
func TraceCollectorFromContext(ctx context.Context) (*TraceCollector, bool) {
	tc, ok := ctx.Value(traceKey).(*TraceCollector)
	return tc, ok
}

// emitToContext emits e only when a collector is present in ctx, letting
// RetrieveMemories call this unconditionally without branching on whether
// explain_reasoning was requested.
func emitToContext(ctx context.Context, e TraceEvent) {
	if tc, ok := TraceCollectorFromContext(ctx); ok {
		tc.Emit(e)
	}
}

// ExplainResult is the structured response returned by explain_reasoning.
type ExplainResult struct {
	QueryParams     map[string]string `json:"query_params"`
	CandidatesFound int               `json:"candidates_found"`
	ScoredResults   []ScoredEntry     `json:"scored_results"`
	FilteredOut     []FilteredEntry   `json:"filtered_out"`
	Returned        []string          `json:"returned"`
	TimingMS        int64             `json:"timing_ms"`
}

// ScoredEntry represents a candidate that passed session deduplication and
// was composite-scored.
type ScoredEntry struct {
	MemoryID string          `json:"memory_id"`
	Scores   ScoreComponents `json:"scores"`
	Total    float64         `json:"total"`
}

// FilteredEntry represents a candidate dropped during session deduplication.
type FilteredEntry struct {
	MemoryID string `json:"memory_id"`
	Reason   string `json:"reason"`
}

// BuildExplainResult converts collected trace events into an ExplainResult.
func BuildExplainResult(events []TraceEvent, elapsedMS int64) *ExplainResult {
	result := &ExplainResult{
		QueryParams: make(map[string]string),
		TimingMS:    elapsedMS,
	}

	for _, e := range events {
		switch e.Kind {
		case KindSearchStarted:
			result.QueryParams["query"] = e.Query
			for k, v := range e.Filters {
				result.QueryParams[k] = v
			}
		case KindCandidatesFound:
			result.CandidatesFound += e.Count
		case KindScoredCandidate:
			if e.Scores != nil {
				result.ScoredResults = append(result.ScoredResults, ScoredEntry{
					MemoryID: e.MemoryID,
					Scores:   *e.Scores,
					Total:    e.TotalScore,
				})
			}
		case KindFilteredOut:
			result.FilteredOut = append(result.FilteredOut, FilteredEntry{
				MemoryID: e.MemoryID,
				Reason:   e.FilterReason,
			})
		case KindResultsReturned:
			result.Returned = e.MemoryIDs
		}
	}

	if result.ScoredResults == nil {
		result.ScoredResults = []ScoredEntry{}
	}
	if result.FilteredOut == nil {
		result.FilteredOut = []FilteredEntry{}
	}
	if result.Returned == nil {
		result.Returned = []string{}
	}

	return result
}
