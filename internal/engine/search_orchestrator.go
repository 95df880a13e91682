package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/scrypster/memento/internal/embedcache"
	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/queryexpand"
	"github.com/scrypster/memento/internal/session"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/tracing"
	"github.com/scrypster/memento/pkg/types"
)

// recencyHalfLifeDays is the exponential half-life applied to a memory's
// last_accessed age when computing the composite score's recency term.
// Adapted from the teacher's access-decay half-life (60 days).
const recencyHalfLifeDays = 60.0

// DefaultCompositeWeights is the default (w_s, w_r, w_u, w_l) weighting
// from spec.md 4.8.2 step 7. Weights sum to 1.0.
var DefaultCompositeWeights = CompositeWeights{
	Similarity: 0.6,
	Recency:    0.2,
	Usage:      0.1,
	Lifecycle:  0.1,
}

// CompositeWeights controls how similarity, recency, usage, and lifecycle
// state are blended into a single ranking score.
type CompositeWeights struct {
	Similarity float64
	Recency    float64
	Usage      float64
	Lifecycle  float64
}

// ScoreComponents breaks a composite score down into its four inputs, used
// both for internal reasoning and for explain_reasoning trace output.
type ScoreComponents struct {
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Usage      float64 `json:"usage"`
	Lifecycle  float64 `json:"lifecycle"`
}

// SearchOrchestrator implements retrieve_memories (spec.md 4.8.2): query
// expansion, cache-or-generate embedding, adapter retrieval, session
// deduplication, and composite re-ranking.
type SearchOrchestrator struct {
	adapter  storage.VectorStoreAdapter
	embedder llm.EmbeddingGenerator
	cache    *embedcache.Cache
	tracker  *session.Tracker
	logger   *tracing.Logger

	// DedupMultiplier is the fetch_limit multiplier applied in step 4 when
	// a session is active (spec.md 4.8.2 step 4, default 3).
	DedupMultiplier int

	// UsageTrackingEnabled gates the composite re-rank of step 7; when
	// false, adapter similarity order is preserved as-is.
	UsageTrackingEnabled bool

	// Weights are the composite weighting in effect.
	Weights CompositeWeights

	// Metrics records latency, cache-hit, and error outcomes for
	// get_performance_metrics/get_health_score (internal/health). Nil
	// disables recording.
	Metrics metricsRecorder
}

// metricsRecorder is the minimal dependency the orchestrator needs from
// internal/health.Collector.
type metricsRecorder interface {
	RecordQuery(operation string, latencyMS int64, usedCache bool, err error)
}

// NewSearchOrchestrator builds a SearchOrchestrator. tracker may be nil to
// disable conversation tracking/session deduplication entirely.
func NewSearchOrchestrator(adapter storage.VectorStoreAdapter, embedder llm.EmbeddingGenerator, cache *embedcache.Cache, tracker *session.Tracker, logger *tracing.Logger) *SearchOrchestrator {
	return &SearchOrchestrator{
		adapter:              adapter,
		embedder:             embedder,
		cache:                cache,
		tracker:              tracker,
		logger:               logger,
		DedupMultiplier:      3,
		UsageTrackingEnabled: true,
		Weights:              DefaultCompositeWeights,
	}
}

// RetrieveResult is the response shape of retrieve_memories (spec.md
// 4.8.2 step 8).
type RetrieveResult struct {
	Results     []ScoredMemory
	TotalFound  int
	QueryTimeMS int64
	UsedCache   bool
}

// ScoredMemory pairs a memory with its final, clamped-to-[0,1] score.
type ScoredMemory struct {
	Memory *types.Memory
	Score  float64
}

// RetrieveMemories implements spec.md 4.8.2's nine-step algorithm.
func (s *SearchOrchestrator) RetrieveMemories(ctx context.Context, req types.QueryRequest) (result *RetrieveResult, err error) {
	start := time.Now()
	var usedCache bool
	if s.Metrics != nil {
		defer func() {
			s.Metrics.RecordQuery("retrieve_memories", time.Since(start).Milliseconds(), usedCache, err)
		}()
	}

	// Step 1: validate and construct SearchFilters.
	if errs := req.Normalize(); len(errs) > 0 {
		return nil, engineerr.New(engineerr.KindValidation, types.ValidationErrors(errs).Error())
	}
	filters := buildFilters(req)

	// Step 2: session-aware query expansion.
	query := req.Query
	dedupActive := req.SessionID != "" && s.tracker != nil
	if dedupActive {
		recent := s.tracker.GetRecentQueries(req.SessionID)
		query = queryexpand.Expand(req.Query, recent)
	}

	emitToContext(ctx, EventSearchStarted(query, filterLogFields(filters)))

	// Step 3: cache-or-generate embedding.
	usedCache = s.cache != nil && s.cache.Hit(ctx, s.embedder.GetModel(), query)
	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Step 4: fetch_limit.
	fetchLimit := req.Limit
	if dedupActive {
		mult := s.DedupMultiplier
		if mult <= 0 {
			mult = 3
		}
		fetchLimit = req.Limit * mult
	}

	// Step 5: adapter retrieve under the 30-second ceiling.
	retrieveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	candidates, err := s.adapter.Retrieve(retrieveCtx, vector, filters, fetchLimit)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "retrieve_memories: adapter retrieval failed")
	}
	emitToContext(ctx, EventCandidatesFound(len(candidates), "vector"))
	totalFound := len(candidates)

	// Step 6: drop already-shown ids, preserving order, then truncate.
	if dedupActive {
		shown := s.tracker.GetShownMemoryIDs(req.SessionID)
		if len(shown) > 0 {
			kept := candidates[:0]
			for _, c := range candidates {
				if _, ok := shown[c.Memory.ID]; ok {
					emitToContext(ctx, EventFilteredOut(c.Memory.ID, "already shown this session"))
					continue
				}
				kept = append(kept, c)
			}
			candidates = kept
		}
		if len(candidates) > req.Limit {
			candidates = candidates[:req.Limit]
		}
	}

	// Step 7: composite re-rank.
	now := time.Now()
	results := make([]ScoredMemory, 0, len(candidates))
	if s.UsageTrackingEnabled {
		for _, c := range candidates {
			components := ScoreComponents{
				Similarity: c.Score,
				Recency:    recencyScore(c.Memory.LastAccessed, now),
				Usage:      math.Log(1 + float64(c.Memory.AccessCount)),
				Lifecycle:  types.LifecycleDecayWeight(c.Memory.LifecycleState),
			}
			composite := s.Weights.Similarity*components.Similarity +
				s.Weights.Recency*components.Recency +
				s.Weights.Usage*components.Usage +
				s.Weights.Lifecycle*components.Lifecycle
			composite = clamp01(composite)
			emitToContext(ctx, EventScoredCandidate(c.Memory.ID, components, composite))
			results = append(results, ScoredMemory{Memory: c.Memory, Score: composite})
		}
		sort.SliceStable(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			if !results[i].Memory.CreatedAt.Equal(results[j].Memory.CreatedAt) {
				return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
			}
			return results[i].Memory.ID < results[j].Memory.ID
		})
	} else {
		for _, c := range candidates {
			results = append(results, ScoredMemory{Memory: c.Memory, Score: clamp01(c.Score)})
		}
	}

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	// Step 8: record usage. Per-item failures are logged, not fatal
	// (spec.md 7: partial-batch operations never abort on one failure).
	resultIDs := make([]string, len(results))
	for i, r := range results {
		resultIDs[i] = r.Memory.ID
		r.Memory.Touch(now)
		if _, err := s.adapter.Update(ctx, r.Memory.ID, r.Memory, nil); err != nil && s.logger != nil {
			s.logger.Warn(ctx, "retrieve_memories: usage update failed", "memory_id", r.Memory.ID, "error", err)
		}
	}
	emitToContext(ctx, EventResultsReturned(resultIDs))

	// Step 9: update session tracker.
	if dedupActive {
		s.tracker.TrackQuery(req.SessionID, req.Query, vector, resultIDs)
	}

	return &RetrieveResult{
		Results:     results,
		TotalFound:  totalFound,
		QueryTimeMS: time.Since(start).Milliseconds(),
		UsedCache:   usedCache,
	}, nil
}

func (s *SearchOrchestrator) embed(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, s.embedder.GetModel(), text, s.embedder)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "embedding generation failed")
	}
	return vec, nil
}

// buildFilters translates a validated QueryRequest into the adapter's
// filter predicate shape.
func buildFilters(req types.QueryRequest) storage.Filters {
	f := storage.Filters{
		Category:      req.Category,
		Scope:         req.Scope,
		ProjectName:   req.ProjectName,
		ContextLevel:  req.ContextLevel,
		Tags:          req.Tags,
		MinImportance: req.MinImportance,
		SessionID:     req.SessionID,
	}
	if req.AdvancedFilters != nil {
		adv := req.AdvancedFilters
		f.CreatedAfter = adv.CreatedAfter
		f.CreatedBefore = adv.CreatedBefore
		if len(adv.LifecycleStates) == 1 {
			f.LifecycleState = adv.LifecycleStates[0]
		}
	}
	return f
}

func filterLogFields(f storage.Filters) map[string]string {
	out := map[string]string{}
	if f.Category != "" {
		out["category"] = string(f.Category)
	}
	if f.Scope != "" {
		out["scope"] = string(f.Scope)
	}
	if f.ProjectName != "" {
		out["project_name"] = f.ProjectName
	}
	return out
}

// recencyScore computes an exponential-decay recency term in [0,1] from
// the age of lastAccessed relative to now.
func recencyScore(lastAccessed, now time.Time) float64 {
	if lastAccessed.IsZero() {
		return 0
	}
	ageDays := now.Sub(lastAccessed).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(2, -ageDays/recencyHalfLifeDays)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
