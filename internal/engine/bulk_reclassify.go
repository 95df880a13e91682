package engine

import (
	"context"
	"time"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// bulkReclassifyPageSize paginates the scan bulk_reclassify performs before
// filtering by current context level, since storage.ListOptions (unlike
// storage.Filters) has no context_level axis to push the filter down to the
// adapter.
const bulkReclassifyPageSize = 200

// ReclassifyOutcome reports one memory's bulk_reclassify update.
type ReclassifyOutcome struct {
	MemoryID string `json:"memory_id"`
	Error    string `json:"error"`
}

// BulkReclassifyResult is the response shape of bulk_reclassify.
type BulkReclassifyResult struct {
	MatchedCount int
	UpdatedCount int
	Outcomes     []ReclassifyOutcome
}

// BulkReclassify implements bulk_reclassify: scan every memory in project
// (optionally narrowed by category) currently at fromLevel and move it to
// toLevel. A single memory's update failure is recorded, never aborts the
// batch (spec.md 7).
func (s *MemoryService) BulkReclassify(ctx context.Context, projectName string, category types.MemoryCategory, fromLevel, toLevel types.ContextLevel) (*BulkReclassifyResult, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	if !types.IsValidContextLevel(toLevel) {
		return nil, engineerr.New(engineerr.KindValidation, "bulk_reclassify: to_context_level must be a valid ContextLevel")
	}

	result := &BulkReclassifyResult{}
	page := 1
	for {
		opts := storage.ListOptions{
			Page: page, Limit: bulkReclassifyPageSize,
			ProjectName: projectName, Category: category,
		}
		listing, err := s.adapter.ListMemories(ctx, opts)
		if err != nil {
			return nil, engineerr.FromSentinel(err, "bulk_reclassify: list failed")
		}

		for i := range listing.Items {
			mem := &listing.Items[i]
			if fromLevel != "" && mem.ContextLevel != fromLevel {
				continue
			}
			result.MatchedCount++

			mem.ContextLevel = toLevel
			mem.UpdatedAt = time.Now()
			if _, err := s.adapter.Update(ctx, mem.ID, mem, nil); err != nil {
				result.Outcomes = append(result.Outcomes, ReclassifyOutcome{MemoryID: mem.ID, Error: err.Error()})
				continue
			}
			result.UpdatedCount++
		}

		if !listing.HasMore {
			break
		}
		page++
	}

	return result, nil
}
