package engine

import (
	"context"
	"time"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/pkg/types"
)

// memoryGetUpdater is the minimal storage dependency ConfidenceScorer needs:
// point lookup and atomic update, without the full VectorStoreAdapter.
type memoryGetUpdater interface {
	GetByID(ctx context.Context, id string) (*types.Memory, error)
	Update(ctx context.Context, id string, memory *types.Memory, newVector []float32) (bool, error)
}

// ConfidenceScorer estimates how much a memory or a derived relationship
// should be trusted, from provenance, verification state, and age.
type ConfidenceScorer struct {
	store memoryGetUpdater
}

// NewConfidenceScorer creates a new confidence scorer.
func NewConfidenceScorer(store memoryGetUpdater) *ConfidenceScorer {
	return &ConfidenceScorer{store: store}
}

// MemoryConfidence is the overall confidence score and its components.
type MemoryConfidence struct {
	Overall           float64
	ProvenanceScore   float64
	VerificationScore float64
	SourceScore       float64
	AgeScore          float64
}

// sourceReliability maps a provenance source to a base reliability score.
// User-explicit input is the most trusted; inferred and imported data less so.
var sourceReliability = map[types.ProvenanceSource]float64{
	types.ProvenanceUserExplicit:   1.0,
	types.ProvenanceDocumentation:  0.9,
	types.ProvenanceCodeIndexed:    0.85,
	types.ProvenanceAutoClassified: 0.7,
	types.ProvenanceImported:       0.65,
	types.ProvenanceClaudeInferred: 0.6,
	types.ProvenanceLegacy:         0.5,
}

// CalculateMemoryConfidence computes multi-factor confidence for a memory.
// Weights: Provenance=0.3, Verification=0.2, Source=0.3, Age=0.2
func (c *ConfidenceScorer) CalculateMemoryConfidence(memory *types.Memory) *MemoryConfidence {
	confidence := &MemoryConfidence{
		ProvenanceScore:   clamp01(memory.Provenance.Confidence),
		VerificationScore: c.calculateVerificationScore(memory),
		SourceScore:       c.calculateSourceScore(memory),
		AgeScore:          c.calculateAgeScore(memory),
	}

	confidence.Overall = clamp01(
		confidence.ProvenanceScore*0.3 +
			confidence.VerificationScore*0.2 +
			confidence.SourceScore*0.3 +
			confidence.AgeScore*0.2,
	)

	return confidence
}

// calculateVerificationScore rewards an explicitly verified or recently
// reconfirmed memory over one that has never been checked.
func (c *ConfidenceScorer) calculateVerificationScore(memory *types.Memory) float64 {
	if memory.Provenance.Verified {
		return 1.0
	}
	if memory.Provenance.LastConfirmed != nil {
		age := time.Since(*memory.Provenance.LastConfirmed)
		if age < 30*24*time.Hour {
			return 0.8
		}
		return 0.6
	}
	return 0.5
}

// calculateSourceScore looks up the reliability of a memory's provenance
// source, falling back to a neutral default for unknown sources.
func (c *ConfidenceScorer) calculateSourceScore(memory *types.Memory) float64 {
	if score, ok := sourceReliability[memory.Provenance.Source]; ok {
		return score
	}
	return 0.5
}

// calculateAgeScore calculates confidence based on memory age. Newer
// memories are generally more reliable since information may go stale.
func (c *ConfidenceScorer) calculateAgeScore(memory *types.Memory) float64 {
	age := time.Since(memory.CreatedAt)

	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.9
	case age < 30*24*time.Hour:
		return 0.8
	case age < 90*24*time.Hour:
		return 0.7
	case age < 180*24*time.Hour:
		return 0.6
	case age < 365*24*time.Hour:
		return 0.5
	default:
		return 0.4
	}
}

// CalculateRelationshipConfidence computes confidence for a derived
// relationship edge, from its strength, evidence count, and recency.
func (c *ConfidenceScorer) CalculateRelationshipConfidence(rel *types.Relationship) float64 {
	score := 0.5
	if rel.Strength > 0 {
		score = rel.Strength
	}

	if len(rel.Evidence) > 0 {
		evidenceBonus := min(0.3, float64(len(rel.Evidence))*0.1)
		score += evidenceBonus
	}

	if rel.IsBidirectional() {
		score += 0.1
	}

	age := time.Since(rel.CreatedAt)
	if age < 30*24*time.Hour {
		score += 0.1
	}

	return clamp01(score)
}

// UpdateConfidence recalculates and stores a memory's confidence score in
// its metadata under "confidence"/"confidence_components".
func (c *ConfidenceScorer) UpdateConfidence(ctx context.Context, memoryID string) error {
	memory, err := c.store.GetByID(ctx, memoryID)
	if err != nil {
		return engineerr.FromSentinel(err, "confidence: memory not found")
	}

	confidence := c.CalculateMemoryConfidence(memory)

	if memory.Metadata == nil {
		memory.Metadata = make(map[string]interface{})
	}
	memory.Metadata["confidence"] = confidence.Overall
	memory.Metadata["confidence_components"] = map[string]float64{
		"provenance":   confidence.ProvenanceScore,
		"verification": confidence.VerificationScore,
		"source":       confidence.SourceScore,
		"age":          confidence.AgeScore,
	}
	memory.UpdatedAt = time.Now()

	if _, err := c.store.Update(ctx, memoryID, memory, nil); err != nil {
		return engineerr.FromSentinel(err, "confidence: update failed")
	}

	return nil
}

// BatchUpdateConfidence updates confidence for multiple memories, silently
// skipping per-item failures rather than aborting the batch.
func (c *ConfidenceScorer) BatchUpdateConfidence(ctx context.Context, memoryIDs []string) int {
	updated := 0
	for _, id := range memoryIDs {
		if err := c.UpdateConfidence(ctx, id); err != nil {
			continue
		}
		updated++
	}
	return updated
}

// GetConfidence retrieves the stored confidence score for a memory,
// defaulting to 0.5 when none has been computed yet.
func (c *ConfidenceScorer) GetConfidence(ctx context.Context, memoryID string) (float64, error) {
	memory, err := c.store.GetByID(ctx, memoryID)
	if err != nil {
		return 0, engineerr.FromSentinel(err, "confidence: memory not found")
	}

	if memory.Metadata == nil {
		return 0.5, nil
	}

	confidence, ok := memory.Metadata["confidence"].(float64)
	if !ok {
		return 0.5, nil
	}

	return confidence, nil
}
