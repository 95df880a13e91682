package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scrypster/memento/internal/storage"
)

// Insight is one rule-based observation surfaced by get_active_alerts, ordered
// by Priority ascending (lower is more urgent).
type Insight struct {
	Priority int
	Kind     string
	Message  string
}

// projectStatsSource is the minimal dependency insight generation needs
// from a storage.VectorStoreAdapter.
type projectStatsSource interface {
	GetAllProjects(ctx context.Context) ([]string, error)
	GetProjectStats(ctx context.Context, project string) (storage.ProjectStats, error)
}

const (
	staleProjectAge    = 30 * 24 * time.Hour
	lowDensityMemories = 5
)

// Insights generates spec.md 4.11's rule-based summaries: low cache,
// high latency, stale projects, low memory density, and overall health,
// each carrying an integer priority (lower = more urgent). now is passed
// in rather than read from time.Now() so staleness checks are
// deterministic in tests.
func Insights(ctx context.Context, snap Snapshot, score int, store projectStatsSource, now time.Time) []Insight {
	var insights []Insight

	if snap.CacheHitRate < 0.5 {
		insights = append(insights, Insight{
			Priority: 2,
			Kind:     "low_cache_hit_rate",
			Message:  fmt.Sprintf("Embedding cache hit rate is %.0f%%, below the 50%% target.", snap.CacheHitRate*100),
		})
	}

	if snap.SearchLatencyP95 > 100 {
		insights = append(insights, Insight{
			Priority: 1,
			Kind:     "high_search_latency",
			Message:  fmt.Sprintf("p95 search latency is %.0fms, above the 100ms threshold.", snap.SearchLatencyP95),
		})
	} else if snap.SearchLatencyP95 > 50 {
		insights = append(insights, Insight{
			Priority: 3,
			Kind:     "elevated_search_latency",
			Message:  fmt.Sprintf("p95 search latency is %.0fms, above the 50ms comfort threshold.", snap.SearchLatencyP95),
		})
	}

	if store != nil {
		projects, err := store.GetAllProjects(ctx)
		if err == nil {
			for _, name := range projects {
				stats, err := store.GetProjectStats(ctx, name)
				if err != nil {
					continue
				}
				if !stats.LastUpdatedAt.IsZero() && now.Sub(stats.LastUpdatedAt) > staleProjectAge {
					insights = append(insights, Insight{
						Priority: 4,
						Kind:     "stale_project",
						Message:  fmt.Sprintf("Project %q has had no new memories in over %d days.", name, int(staleProjectAge.Hours()/24)),
					})
				}
				if stats.MemoryCount > 0 && stats.MemoryCount < lowDensityMemories {
					insights = append(insights, Insight{
						Priority: 5,
						Kind:     "low_memory_density",
						Message:  fmt.Sprintf("Project %q has only %d stored memories.", name, stats.MemoryCount),
					})
				}
			}
		}
	}

	status := StatusFor(score)
	if status != StatusHealthy {
		insights = append(insights, Insight{
			Priority: 0,
			Kind:     "overall_health",
			Message:  fmt.Sprintf("Overall health is %s (score %d/100).", status, score),
		})
	}

	sort.SliceStable(insights, func(i, j int) bool { return insights[i].Priority < insights[j].Priority })
	return insights
}
