package engine

import (
	"context"
	"sort"
	"time"

	"github.com/scrypster/memento/internal/attribution"
	"github.com/scrypster/memento/internal/classifier"
	"github.com/scrypster/memento/internal/embedcache"
	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/tracing"
	"github.com/scrypster/memento/pkg/types"
)

// maxDeleteCount is the hard cap delete_memories_by_query enforces
// regardless of the requested max_count (spec.md 4.8.4).
const maxDeleteCount = 1000

// highImportanceThreshold triggers a warning on delete_memories_by_query
// when any matched candidate meets or exceeds it (spec.md 4.8.4).
const highImportanceThreshold = 0.8

// MemoryService implements the synchronous store/retrieve/update/delete/
// list/merge operation surface (spec.md 4.8) against a single
// storage.VectorStoreAdapter. Retrieval itself is delegated to
// SearchOrchestrator; this type owns the write path and list/merge.
type MemoryService struct {
	adapter  storage.VectorStoreAdapter
	embedder llm.EmbeddingGenerator
	cache    *embedcache.Cache
	logger   *tracing.Logger
	readOnly bool
}

// NewMemoryService builds a MemoryService. readOnly mirrors
// config.SecurityConfig.ReadOnlyMode.
func NewMemoryService(adapter storage.VectorStoreAdapter, embedder llm.EmbeddingGenerator, cache *embedcache.Cache, logger *tracing.Logger, readOnly bool) *MemoryService {
	return &MemoryService{adapter: adapter, embedder: embedder, cache: cache, logger: logger, readOnly: readOnly}
}

func (s *MemoryService) embed(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, s.embedder.GetModel(), text, s.embedder)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "embedding generation failed")
	}
	return vec, nil
}

func (s *MemoryService) checkWritable() error {
	if s.readOnly {
		return engineerr.New(engineerr.KindReadOnly, "engine is in read-only mode").
			WithSolution("disable read_only_mode to perform mutating operations")
	}
	return nil
}

// StoreInput is the input to store_memory (spec.md 4.8.1).
type StoreInput struct {
	Content      string
	Category     types.MemoryCategory
	Scope        types.MemoryScope
	ProjectName  string
	Importance   float64
	Tags         []string
	Metadata     map[string]interface{}
	ContextLevel types.ContextLevel
}

// StoreMemory implements spec.md 4.8.1: validate, auto-classify context
// level if absent, embed, write, return (id, context_level).
func (s *MemoryService) StoreMemory(ctx context.Context, in StoreInput) (string, types.ContextLevel, error) {
	if err := s.checkWritable(); err != nil {
		return "", "", err
	}

	now := time.Now()
	mem := &types.Memory{
		ID:             GenerateMemoryID(),
		Content:        in.Content,
		Category:       in.Category,
		Scope:          in.Scope,
		ProjectName:    in.ProjectName,
		Importance:     in.Importance,
		Tags:           in.Tags,
		Metadata:       in.Metadata,
		ContextLevel:   in.ContextLevel,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessed:   now,
		LifecycleState: types.LifecycleActive,
		Provenance:     types.NewProvenance(types.ProvenanceUserExplicit, attribution.DetectAgent()),
	}

	if errs := mem.Validate(); len(errs) > 0 {
		return "", "", engineerr.New(engineerr.KindValidation, errs.Error())
	}

	if mem.ContextLevel == "" {
		mem.ContextLevel = classifier.ClassifyContextLevel(mem.Content, mem.Category)
	}

	mem.ContentHash = types.ContentHash(mem.Content)

	vector, err := s.embed(ctx, mem.Content)
	if err != nil {
		return "", "", err
	}
	mem.EmbeddingModel = s.embedder.GetModel()

	id, err := s.adapter.Store(ctx, mem, vector)
	if err != nil {
		return "", "", engineerr.FromSentinel(err, "store_memory: adapter write failed")
	}

	return id, mem.ContextLevel, nil
}

// UpdateInput is the input to update_memory (spec.md 4.8.3). Nil pointer
// fields (and a nil Tags slice) are left unchanged.
type UpdateInput struct {
	ID                  string
	Content             *string
	Category            *types.MemoryCategory
	Scope               *types.MemoryScope
	ProjectName         *string
	Importance          *float64
	Tags                []string
	Metadata            map[string]interface{}
	RegenerateEmbedding bool
	PreserveTimestamps  *bool
}

// UpdateMemory implements spec.md 4.8.3.
func (s *MemoryService) UpdateMemory(ctx context.Context, in UpdateInput) (*types.Memory, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}

	if in.Content == nil && in.Category == nil && in.Scope == nil && in.ProjectName == nil &&
		in.Importance == nil && in.Tags == nil && in.Metadata == nil {
		return nil, engineerr.New(engineerr.KindValidation, "update_memory requires at least one field besides id")
	}

	mem, err := s.adapter.GetByID(ctx, in.ID)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "update_memory: memory not found")
	}

	originalCreatedAt := mem.CreatedAt
	contentChanged := in.Content != nil && *in.Content != mem.Content

	if in.Content != nil {
		mem.Content = *in.Content
	}
	if in.Category != nil {
		mem.Category = *in.Category
	}
	if in.Scope != nil {
		mem.Scope = *in.Scope
	}
	if in.ProjectName != nil {
		mem.ProjectName = *in.ProjectName
	}
	if in.Importance != nil {
		mem.Importance = *in.Importance
	}
	if in.Tags != nil {
		mem.Tags = in.Tags
	}
	if in.Metadata != nil {
		mem.Metadata = in.Metadata
	}

	preserveTimestamps := true
	if in.PreserveTimestamps != nil {
		preserveTimestamps = *in.PreserveTimestamps
	}
	mem.UpdatedAt = time.Now()
	if preserveTimestamps {
		mem.CreatedAt = originalCreatedAt
	}

	if errs := mem.Validate(); len(errs) > 0 {
		return nil, engineerr.New(engineerr.KindValidation, errs.Error())
	}

	var newVector []float32
	if contentChanged {
		mem.ContentHash = types.ContentHash(mem.Content)
		if in.RegenerateEmbedding {
			newVector, err = s.embed(ctx, mem.Content)
			if err != nil {
				return nil, err
			}
			mem.EmbeddingModel = s.embedder.GetModel()
		}
	}

	if _, err := s.adapter.Update(ctx, in.ID, mem, newVector); err != nil {
		return nil, engineerr.FromSentinel(err, "update_memory: adapter write failed")
	}

	return mem, nil
}

// DeleteStatus is the status field of delete_memory's response.
type DeleteStatus string

const (
	DeleteStatusSuccess  DeleteStatus = "success"
	DeleteStatusNotFound DeleteStatus = "not_found"
)

// DeleteMemory implements the single-id half of spec.md 4.8.4.
func (s *MemoryService) DeleteMemory(ctx context.Context, id string) (DeleteStatus, error) {
	if err := s.checkWritable(); err != nil {
		return "", err
	}

	ok, err := s.adapter.Delete(ctx, id)
	if err != nil {
		return "", engineerr.FromSentinel(err, "delete_memory: adapter delete failed")
	}
	if !ok {
		return DeleteStatusNotFound, nil
	}
	return DeleteStatusSuccess, nil
}

// DeleteByQueryResult is the response shape of delete_memories_by_query.
type DeleteByQueryResult struct {
	Preview      bool
	DeletedCount int
	TotalMatches int
	Breakdown    storage.DeleteBreakdown
	Warning      string
}

// DeleteMemoriesByQuery implements the query-based half of spec.md 4.8.4:
// dry_run preview, 1000-record cap, read-only refusal on actual mutation,
// and a warning for high-importance or multi-project candidates.
func (s *MemoryService) DeleteMemoriesByQuery(ctx context.Context, filters storage.Filters, maxCount int, dryRun bool) (*DeleteByQueryResult, error) {
	if maxCount <= 0 || maxCount > maxDeleteCount {
		maxCount = maxDeleteCount
	}

	totalMatches, err := s.adapter.Count(ctx, filters)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "delete_memories_by_query: count failed")
	}

	if dryRun {
		return &DeleteByQueryResult{Preview: true, TotalMatches: totalMatches}, nil
	}

	if err := s.checkWritable(); err != nil {
		return nil, err
	}

	highImportanceFilters := filters
	highImportanceFilters.MinImportance = highImportanceThreshold
	highCount, err := s.adapter.Count(ctx, highImportanceFilters)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "delete_memories_by_query: high-importance count failed")
	}

	breakdown, err := s.adapter.DeleteByFilter(ctx, filters, maxCount)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "delete_memories_by_query: adapter delete failed")
	}

	warning := ""
	if highCount > 0 {
		warning = "candidates include high-importance memories (>= 0.8)"
	}
	if len(breakdown.ByProject) > 1 {
		if warning != "" {
			warning += "; "
		}
		warning += "candidates span multiple projects"
	}

	return &DeleteByQueryResult{
		DeletedCount: breakdown.DeletedCount,
		TotalMatches: totalMatches,
		Breakdown:    breakdown,
		Warning:      warning,
	}, nil
}

// ListResult is the response shape of list_memories (spec.md 4.8.5).
type ListResult struct {
	Memories      []types.Memory
	TotalCount    int
	ReturnedCount int
	Offset        int
	Limit         int
	HasMore       bool
}

// ListMemories implements spec.md 4.8.5.
func (s *MemoryService) ListMemories(ctx context.Context, opts storage.ListOptions) (*ListResult, error) {
	opts.Normalize()

	page, err := s.adapter.ListMemories(ctx, opts)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "list_memories: adapter list failed")
	}

	now := time.Now()
	for i := range page.Items {
		page.Items[i].RefreshLifecycle(now)
	}

	return &ListResult{
		Memories:      page.Items,
		TotalCount:    page.Total,
		ReturnedCount: len(page.Items),
		Offset:        opts.Offset(),
		Limit:         opts.Limit,
		HasMore:       page.HasMore,
	}, nil
}

// MergeMemories implements spec.md 4.8.6: select or synthesize the
// surviving record per strategy, absorb the others into its metadata, and
// delete the absorbed ids.
func (s *MemoryService) MergeMemories(ctx context.Context, memoryIDs []string, keepID string, strategy types.MergeStrategy) (*types.Memory, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	if len(memoryIDs) < 2 {
		return nil, engineerr.New(engineerr.KindValidation, "merge_memories requires at least two memory_ids")
	}
	if !types.IsValidMergeStrategy(strategy) {
		return nil, engineerr.New(engineerr.KindValidation, "merge_memories: invalid merge strategy")
	}

	mems := make([]*types.Memory, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		m, err := s.adapter.GetByID(ctx, id)
		if err != nil {
			return nil, engineerr.FromSentinel(err, "merge_memories: memory not found")
		}
		mems = append(mems, m)
	}

	survivor := selectMergeSurvivor(mems, keepID, strategy)

	absorbedIDs := make([]string, 0, len(mems)-1)
	tagSet := make(map[string]struct{}, len(survivor.Tags))
	for _, t := range survivor.Tags {
		tagSet[t] = struct{}{}
	}

	var contentBlocks []string
	if strategy == types.MergeContent {
		contentBlocks = append(contentBlocks, survivor.Content)
	}

	for _, m := range mems {
		if m.ID == survivor.ID {
			continue
		}
		absorbedIDs = append(absorbedIDs, m.ID)
		for _, t := range m.Tags {
			if _, ok := tagSet[t]; !ok {
				tagSet[t] = struct{}{}
				survivor.Tags = append(survivor.Tags, t)
			}
		}
		if strategy == types.MergeContent {
			contentBlocks = append(contentBlocks, m.Content)
		}
	}

	if strategy == types.MergeContent && len(contentBlocks) > 1 {
		merged := contentBlocks[0]
		for _, block := range contentBlocks[1:] {
			merged += "\n\n" + block
		}
		survivor.Content = merged
		survivor.ContentHash = types.ContentHash(survivor.Content)
	}

	if survivor.Metadata == nil {
		survivor.Metadata = map[string]interface{}{}
	}
	survivor.Metadata["merged_from"] = absorbedIDs
	survivor.Metadata["merge_strategy"] = string(strategy)
	survivor.UpdatedAt = time.Now()

	if errs := survivor.Validate(); len(errs) > 0 {
		return nil, engineerr.New(engineerr.KindValidation, errs.Error())
	}

	var newVector []float32
	if strategy == types.MergeContent {
		vec, err := s.embed(ctx, survivor.Content)
		if err != nil {
			return nil, err
		}
		newVector = vec
		survivor.EmbeddingModel = s.embedder.GetModel()
	}

	if _, err := s.adapter.Update(ctx, survivor.ID, survivor, newVector); err != nil {
		return nil, engineerr.FromSentinel(err, "merge_memories: survivor update failed")
	}

	for _, id := range absorbedIDs {
		if _, err := s.adapter.Delete(ctx, id); err != nil && s.logger != nil {
			s.logger.Warn(ctx, "merge_memories: failed to delete absorbed memory", "memory_id", id, "error", err)
		}
	}

	return survivor, nil
}

func selectMergeSurvivor(mems []*types.Memory, keepID string, strategy types.MergeStrategy) *types.Memory {
	if keepID != "" {
		for _, m := range mems {
			if m.ID == keepID {
				return m
			}
		}
	}

	ranked := make([]*types.Memory, len(mems))
	copy(ranked, mems)

	switch strategy {
	case types.MergeKeepHighestImportance:
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Importance > ranked[j].Importance })
	case types.MergeKeepMostAccessed:
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].AccessCount > ranked[j].AccessCount })
	default: // MergeKeepMostRecent, MergeContent, MergeUserSelected without keep_id
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].CreatedAt.After(ranked[j].CreatedAt) })
	}

	return ranked[0]
}
