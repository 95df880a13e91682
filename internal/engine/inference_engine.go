package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// inferenceStore is the minimal storage dependency InferenceEngine needs:
// point lookup, paginated listing, and entity lookup for a memory.
type inferenceStore interface {
	GetByID(ctx context.Context, id string) (*types.Memory, error)
	ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error)
	GetMemoryEntities(ctx context.Context, memoryID string) ([]*types.Entity, error)
}

// InferenceEngine performs reasoning and pattern discovery across memories.
// It discovers implicit connections through shared entities and tags, and
// identifies recurring clusters in memory networks.
type InferenceEngine struct {
	store inferenceStore
}

// NewInferenceEngine creates a new inference engine.
func NewInferenceEngine(store inferenceStore) *InferenceEngine {
	return &InferenceEngine{store: store}
}

// InferenceOptions configures inference behavior.
type InferenceOptions struct {
	// MaxDepth is the maximum traversal depth for graph searches.
	MaxDepth int

	// MaxResults is the maximum number of results to return.
	MaxResults int

	// ConfidenceMin is the minimum confidence threshold (0.0 to 1.0).
	ConfidenceMin float64

	// IncludeReason includes step-by-step reasoning in results.
	IncludeReason bool
}

func (o *InferenceOptions) normalize() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = 3
	}
	if o.MaxDepth > 10 {
		o.MaxDepth = 10
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.ConfidenceMin < 0 {
		o.ConfidenceMin = 0.0
	}
}

// InferenceResult represents an inferred connection between memories.
type InferenceResult struct {
	Path       []string
	Confidence float64
	Reasoning  []string
	Type       string // "direct", "transitive"
}

// Pattern represents a discovered pattern across memories.
type Pattern struct {
	Type        string // "cluster"
	Memories    []string
	Frequency   int
	Confidence  float64
	Description string
}

// InferConnections discovers implicit connections between memories through
// shared entities, bounded by opts.MaxDepth hops of transitivity.
func (i *InferenceEngine) InferConnections(ctx context.Context, memoryID string, opts InferenceOptions) ([]InferenceResult, error) {
	opts.normalize()

	source, err := i.store.GetByID(ctx, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source memory: %w", err)
	}

	var results []InferenceResult

	directConnections, err := i.findDirectConnections(ctx, source, opts)
	if err != nil {
		return nil, err
	}
	results = append(results, directConnections...)

	if opts.MaxDepth > 1 {
		transitiveConnections, err := i.findTransitiveConnections(ctx, source, directConnections, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, transitiveConnections...)
	}

	filtered := results[:0]
	for _, result := range results {
		if result.Confidence >= opts.ConfidenceMin {
			filtered = append(filtered, result)
		}
	}

	sort.SliceStable(filtered, func(a, b int) bool { return filtered[a].Confidence > filtered[b].Confidence })

	if len(filtered) > opts.MaxResults {
		filtered = filtered[:opts.MaxResults]
	}

	return filtered, nil
}

// findDirectConnections finds memories directly connected through shared entities.
func (i *InferenceEngine) findDirectConnections(ctx context.Context, source *types.Memory, opts InferenceOptions) ([]InferenceResult, error) {
	var results []InferenceResult

	sourceEntities, err := i.store.GetMemoryEntities(ctx, source.ID)
	if err != nil || len(sourceEntities) == 0 {
		return results, nil
	}

	listOpts := storage.ListOptions{Page: 1, Limit: 100, SortBy: "created_at", SortOrder: "desc"}
	memResult, err := i.store.ListMemories(ctx, listOpts)
	if err != nil {
		return nil, err
	}

	for idx := range memResult.Items {
		memory := &memResult.Items[idx]
		if memory.ID == source.ID {
			continue
		}

		targetEntities, err := i.store.GetMemoryEntities(ctx, memory.ID)
		if err != nil || len(targetEntities) == 0 {
			continue
		}

		shared := sharedEntityIDs(sourceEntities, targetEntities)
		if len(shared) == 0 {
			continue
		}

		confidence := entityOverlapConfidence(sourceEntities, targetEntities, shared)

		var reasoning []string
		if opts.IncludeReason {
			reasoning = append(reasoning, fmt.Sprintf("shares %d entities: %v", len(shared), shared))
			reasoning = append(reasoning, fmt.Sprintf("confidence: %.2f", confidence))
		}

		results = append(results, InferenceResult{
			Path:       []string{source.ID, memory.ID},
			Confidence: confidence,
			Reasoning:  reasoning,
			Type:       "direct",
		})
	}

	return results, nil
}

// findTransitiveConnections finds connections through one intermediate memory.
func (i *InferenceEngine) findTransitiveConnections(ctx context.Context, source *types.Memory, directConnections []InferenceResult, opts InferenceOptions) ([]InferenceResult, error) {
	var results []InferenceResult

	visited := make(map[string]bool)
	visited[source.ID] = true

	for _, direct := range directConnections {
		if len(direct.Path) < 2 {
			continue
		}

		intermediateID := direct.Path[1]
		if visited[intermediateID] {
			continue
		}
		visited[intermediateID] = true

		intermediate, err := i.store.GetByID(ctx, intermediateID)
		if err != nil {
			continue
		}

		nextHop, err := i.findDirectConnections(ctx, intermediate, opts)
		if err != nil {
			continue
		}

		for _, hop := range nextHop {
			if len(hop.Path) < 2 {
				continue
			}

			targetID := hop.Path[1]
			if visited[targetID] || targetID == source.ID {
				continue
			}

			path := []string{source.ID, intermediateID, targetID}
			confidence := direct.Confidence * hop.Confidence * 0.7 // 30% decay per extra hop

			var reasoning []string
			if opts.IncludeReason {
				reasoning = append(reasoning, fmt.Sprintf("path: %s -> %s -> %s", source.ID, intermediateID, targetID))
				reasoning = append(reasoning, fmt.Sprintf("transitive confidence: %.2f", confidence))
			}

			results = append(results, InferenceResult{
				Path:       path,
				Confidence: confidence,
				Reasoning:  reasoning,
				Type:       "transitive",
			})
		}
	}

	return results, nil
}

// FindPatterns identifies recurring entity and tag clusters across a project.
func (i *InferenceEngine) FindPatterns(ctx context.Context, projectName string) ([]Pattern, error) {
	listOpts := storage.ListOptions{Page: 1, Limit: 100, SortBy: "created_at", SortOrder: "desc", ProjectName: projectName}

	result, err := i.store.ListMemories(ctx, listOpts)
	if err != nil {
		return nil, err
	}

	var patterns []Pattern
	patterns = append(patterns, i.findEntityClusters(ctx, result.Items)...)
	patterns = append(patterns, findTagPatterns(result.Items)...)
	return patterns, nil
}

// findEntityClusters groups memories sharing an entity into cluster patterns.
func (i *InferenceEngine) findEntityClusters(ctx context.Context, memories []types.Memory) []Pattern {
	entityGroups := make(map[string][]string)

	for idx := range memories {
		memory := &memories[idx]
		entities, err := i.store.GetMemoryEntities(ctx, memory.ID)
		if err != nil {
			continue
		}
		for _, e := range entities {
			entityGroups[e.Name] = append(entityGroups[e.Name], memory.ID)
		}
	}

	var patterns []Pattern
	for entity, memoryIDs := range entityGroups {
		if len(memoryIDs) < 3 {
			continue
		}
		patterns = append(patterns, Pattern{
			Type:        "cluster",
			Memories:    memoryIDs,
			Frequency:   len(memoryIDs),
			Confidence:  clusterConfidence(len(memoryIDs)),
			Description: fmt.Sprintf("cluster of %d memories related to entity %s", len(memoryIDs), entity),
		})
	}
	return patterns
}

// findTagPatterns groups memories sharing a tag into cluster patterns.
func findTagPatterns(memories []types.Memory) []Pattern {
	tagGroups := make(map[string][]string)

	for idx := range memories {
		memory := &memories[idx]
		for _, tag := range memory.Tags {
			tagGroups[tag] = append(tagGroups[tag], memory.ID)
		}
	}

	var patterns []Pattern
	for tag, memoryIDs := range tagGroups {
		if len(memoryIDs) < 3 {
			continue
		}
		patterns = append(patterns, Pattern{
			Type:        "cluster",
			Memories:    memoryIDs,
			Frequency:   len(memoryIDs),
			Confidence:  clusterConfidence(len(memoryIDs)),
			Description: fmt.Sprintf("cluster of %d memories tagged with '%s'", len(memoryIDs), tag),
		})
	}
	return patterns
}

func clusterConfidence(size int) float64 {
	return clamp01(float64(size) / 10.0)
}

func sharedEntityIDs(a, b []*types.Entity) []string {
	present := make(map[string]bool, len(a))
	for _, e := range a {
		present[e.ID] = true
	}

	var shared []string
	for _, e := range b {
		if present[e.ID] {
			shared = append(shared, e.ID)
		}
	}
	return shared
}

// entityOverlapConfidence is the Jaccard similarity of two entity sets.
func entityOverlapConfidence(a, b []*types.Entity, shared []string) float64 {
	union := len(a) + len(b) - len(shared)
	if union == 0 {
		return 0.0
	}
	return float64(len(shared)) / float64(union)
}
