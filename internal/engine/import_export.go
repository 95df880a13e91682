package engine

import (
	"context"
	"time"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// exportFormatVersion is the export document's own format version, bumped
// when the document's top-level shape changes.
const exportFormatVersion = "1.0.0"

// exportSchemaVersion tracks the MemoryUnit schema the exported records
// conform to.
const exportSchemaVersion = "3.0.0"

// exportPageSize paginates the adapter scan backing export_memories so a
// large corpus is never held as a single oversized ListMemories call.
const exportPageSize = 200

// ExportDocument is the versioned export format produced by export_memories
// and consumed by import_memories (spec.md 4.8.7).
type ExportDocument struct {
	Version       string          `json:"version"`
	SchemaVersion string          `json:"schema_version"`
	ExportDate    time.Time       `json:"export_date"`
	ExportType    string          `json:"export_type"` // "full" | "filtered"
	Filters       storage.Filters `json:"filters,omitempty"`
	MemoryCount   int             `json:"memory_count"`
	Memories      []types.Memory  `json:"memories"`
}

// ExportMemories builds an ExportDocument. An empty filters value combined
// with full=true produces an export_type "full" document (every memory);
// otherwise export_type is "filtered" and filters is recorded in the
// document for provenance.
func (s *MemoryService) ExportMemories(ctx context.Context, filters storage.Filters, full bool) (*ExportDocument, error) {
	exportType := "filtered"
	if full {
		exportType = "full"
		filters = storage.Filters{}
	}

	var memories []types.Memory
	page := 1
	for {
		opts := storage.ListOptions{
			Page:           page,
			Limit:          exportPageSize,
			SortBy:         "created_at",
			SortOrder:      "asc",
			Category:       filters.Category,
			Scope:          filters.Scope,
			ProjectName:    filters.ProjectName,
			LifecycleState: filters.LifecycleState,
			MinImportance:  filters.MinImportance,
			CreatedAfter:   filters.CreatedAfter,
			CreatedBefore:  filters.CreatedBefore,
		}

		result, err := s.adapter.ListMemories(ctx, opts)
		if err != nil {
			return nil, engineerr.FromSentinel(err, "export_memories: adapter list failed")
		}

		memories = append(memories, result.Items...)
		if !result.HasMore {
			break
		}
		page++
	}

	return &ExportDocument{
		Version:       exportFormatVersion,
		SchemaVersion: exportSchemaVersion,
		ExportDate:    time.Now(),
		ExportType:    exportType,
		Filters:       filters,
		MemoryCount:   len(memories),
		Memories:      memories,
	}, nil
}

// ConflictMode controls how import_memories handles a record whose id
// already exists in the target store.
type ConflictMode string

const (
	ConflictSkip      ConflictMode = "SKIP"
	ConflictOverwrite ConflictMode = "OVERWRITE"
	ConflictMerge     ConflictMode = "MERGE"
)

// ImportRecordOutcome reports what happened to a single record during
// import_memories, so a single bad record never aborts the batch.
type ImportRecordOutcome struct {
	MemoryID string `json:"memory_id"`
	Status   string `json:"status"` // "created" | "updated" | "skipped" | "error"
	Error    string `json:"error,omitempty"`
}

// ImportResult is the response shape of import_memories.
type ImportResult struct {
	DryRun   bool                  `json:"dry_run"`
	Created  int                   `json:"created"`
	Updated  int                   `json:"updated"`
	Skipped  int                   `json:"skipped"`
	Errored  int                   `json:"errored"`
	Outcomes []ImportRecordOutcome `json:"outcomes"`
}

// ImportMemories applies an ExportDocument's records to the store under the
// given conflict mode. dry_run reports what would happen without mutating
// anything. Per-record validation failures are collected, never abort the
// batch (spec.md 4.8.7).
func (s *MemoryService) ImportMemories(ctx context.Context, doc *ExportDocument, mode ConflictMode, dryRun bool) (*ImportResult, error) {
	if !dryRun {
		if err := s.checkWritable(); err != nil {
			return nil, err
		}
	}

	result := &ImportResult{DryRun: dryRun, Outcomes: make([]ImportRecordOutcome, 0, len(doc.Memories))}

	for i := range doc.Memories {
		record := doc.Memories[i]
		outcome := s.importRecord(ctx, &record, mode, dryRun)
		result.Outcomes = append(result.Outcomes, outcome)

		switch outcome.Status {
		case "created":
			result.Created++
		case "updated":
			result.Updated++
		case "skipped":
			result.Skipped++
		case "error":
			result.Errored++
		}
	}

	return result, nil
}

func (s *MemoryService) importRecord(ctx context.Context, record *types.Memory, mode ConflictMode, dryRun bool) ImportRecordOutcome {
	var exists bool
	existing, err := s.adapter.GetByID(ctx, record.ID)
	switch {
	case err == nil:
		exists = true
	case engineerr.IsKind(engineerr.FromSentinel(err, ""), engineerr.KindNotFound):
		exists = false
	default:
		return ImportRecordOutcome{MemoryID: record.ID, Status: "error", Error: err.Error()}
	}

	if exists && mode == ConflictSkip {
		return ImportRecordOutcome{MemoryID: record.ID, Status: "skipped"}
	}

	mem := *record
	if mem.ID == "" {
		mem.ID = GenerateMemoryID()
	}

	if exists && mode == ConflictMerge {
		mem = mergeImportedRecord(existing, &mem)
	}

	now := time.Now()
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = now
	}
	mem.UpdatedAt = now
	if mem.LastAccessed.IsZero() {
		mem.LastAccessed = now
	}
	if mem.LifecycleState == "" {
		mem.LifecycleState = types.LifecycleActive
	}
	mem.ContentHash = types.ContentHash(mem.Content)

	if errs := mem.Validate(); len(errs) > 0 {
		return ImportRecordOutcome{MemoryID: record.ID, Status: "error", Error: errs.Error()}
	}

	if dryRun {
		status := "created"
		if exists {
			status = "updated"
		}
		return ImportRecordOutcome{MemoryID: mem.ID, Status: status}
	}

	vector, err := s.embed(ctx, mem.Content)
	if err != nil {
		return ImportRecordOutcome{MemoryID: record.ID, Status: "error", Error: err.Error()}
	}
	mem.EmbeddingModel = s.embedder.GetModel()

	if exists {
		if _, err := s.adapter.Update(ctx, mem.ID, &mem, vector); err != nil {
			return ImportRecordOutcome{MemoryID: mem.ID, Status: "error", Error: err.Error()}
		}
		return ImportRecordOutcome{MemoryID: mem.ID, Status: "updated"}
	}

	if _, err := s.adapter.Store(ctx, &mem, vector); err != nil {
		return ImportRecordOutcome{MemoryID: mem.ID, Status: "error", Error: err.Error()}
	}
	return ImportRecordOutcome{MemoryID: mem.ID, Status: "created"}
}

// mergeImportedRecord folds an incoming record into the existing target for
// ConflictMerge: tags union, metadata overlaid by the incoming record,
// content/category/scope/importance taken from the incoming record (it is
// presumed newer), provenance and access history preserved from the target.
func mergeImportedRecord(existing, incoming *types.Memory) types.Memory {
	merged := *existing
	merged.Content = incoming.Content
	merged.Category = incoming.Category
	merged.Scope = incoming.Scope
	merged.ProjectName = incoming.ProjectName
	merged.Importance = incoming.Importance
	merged.ContextLevel = incoming.ContextLevel

	tagSet := make(map[string]struct{}, len(existing.Tags))
	for _, t := range existing.Tags {
		tagSet[t] = struct{}{}
	}
	merged.Tags = append([]string{}, existing.Tags...)
	for _, t := range incoming.Tags {
		if _, ok := tagSet[t]; !ok {
			tagSet[t] = struct{}{}
			merged.Tags = append(merged.Tags, t)
		}
	}

	if merged.Metadata == nil {
		merged.Metadata = map[string]interface{}{}
	}
	for k, v := range incoming.Metadata {
		merged.Metadata[k] = v
	}

	return merged
}
