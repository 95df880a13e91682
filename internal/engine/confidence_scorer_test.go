package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/pkg/types"
)

// fakeMemoryGetUpdater is a minimal in-memory memoryGetUpdater for
// confidence scorer tests.
type fakeMemoryGetUpdater struct {
	memories map[string]*types.Memory
}

func newFakeMemoryGetUpdater() *fakeMemoryGetUpdater {
	return &fakeMemoryGetUpdater{memories: make(map[string]*types.Memory)}
}

func (f *fakeMemoryGetUpdater) add(mem *types.Memory) {
	f.memories[mem.ID] = mem
}

func (f *fakeMemoryGetUpdater) GetByID(_ context.Context, id string) (*types.Memory, error) {
	mem, ok := f.memories[id]
	if !ok {
		return nil, errNotFoundForTest
	}
	return mem, nil
}

func (f *fakeMemoryGetUpdater) Update(_ context.Context, id string, memory *types.Memory, _ []float32) (bool, error) {
	if _, ok := f.memories[id]; !ok {
		return false, errNotFoundForTest
	}
	f.memories[id] = memory
	return true, nil
}

var errNotFoundForTest = engineerr.ErrNotFound

func confidenceTestMemory(id string, source types.ProvenanceSource, createdAt time.Time) *types.Memory {
	return &types.Memory{
		ID:         id,
		Content:    "test memory content",
		Category:   types.CategoryFact,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
		Provenance: types.NewProvenance(source, "test"),
	}
}

func TestCalculateMemoryConfidenceInRange(t *testing.T) {
	scorer := NewConfidenceScorer(nil)
	memory := confidenceTestMemory("mem:1", types.ProvenanceUserExplicit, time.Now())

	confidence := scorer.CalculateMemoryConfidence(memory)

	assert.GreaterOrEqual(t, confidence.Overall, 0.0)
	assert.LessOrEqual(t, confidence.Overall, 1.0)
	assert.GreaterOrEqual(t, confidence.ProvenanceScore, 0.0)
	assert.GreaterOrEqual(t, confidence.SourceScore, 0.0)
	assert.GreaterOrEqual(t, confidence.AgeScore, 0.0)
}

func TestCalculateMemoryConfidenceVerifiedBoostsScore(t *testing.T) {
	scorer := NewConfidenceScorer(nil)

	unverified := confidenceTestMemory("mem:unverified", types.ProvenanceClaudeInferred, time.Now())
	verified := confidenceTestMemory("mem:verified", types.ProvenanceClaudeInferred, time.Now())
	verified.Provenance.Verified = true

	unverifiedScore := scorer.CalculateMemoryConfidence(unverified)
	verifiedScore := scorer.CalculateMemoryConfidence(verified)

	assert.Greater(t, verifiedScore.Overall, unverifiedScore.Overall)
}

func TestCalculateMemoryConfidenceSourceOrdering(t *testing.T) {
	scorer := NewConfidenceScorer(nil)
	now := time.Now()

	explicit := scorer.CalculateMemoryConfidence(confidenceTestMemory("mem:a", types.ProvenanceUserExplicit, now))
	legacy := scorer.CalculateMemoryConfidence(confidenceTestMemory("mem:b", types.ProvenanceLegacy, now))

	assert.Greater(t, explicit.SourceScore, legacy.SourceScore)
}

func TestCalculateMemoryConfidenceAgeDecays(t *testing.T) {
	scorer := NewConfidenceScorer(nil)

	fresh := scorer.CalculateMemoryConfidence(confidenceTestMemory("mem:fresh", types.ProvenanceUserExplicit, time.Now()))
	old := scorer.CalculateMemoryConfidence(confidenceTestMemory("mem:old", types.ProvenanceUserExplicit, time.Now().Add(-400*24*time.Hour)))

	assert.Greater(t, fresh.AgeScore, old.AgeScore)
}

func TestCalculateRelationshipConfidence(t *testing.T) {
	scorer := NewConfidenceScorer(nil)

	rel := &types.Relationship{
		ID:        "rel:1",
		FromID:    "mem:a",
		ToID:      "mem:b",
		Type:      "relates_to",
		Strength:  0.6,
		CreatedAt: time.Now(),
		Evidence:  []string{"mem:a", "mem:b"},
	}

	score := scorer.CalculateRelationshipConfidence(rel)
	assert.GreaterOrEqual(t, score, 0.6)
	assert.LessOrEqual(t, score, 1.0)
}

func TestCalculateRelationshipConfidenceBidirectionalBonus(t *testing.T) {
	scorer := NewConfidenceScorer(nil)
	now := time.Now()

	uni := &types.Relationship{Strength: 0.5, CreatedAt: now}
	bi := &types.Relationship{Strength: 0.5, CreatedAt: now, RelationshipMetadata: types.RelationshipMetadata{Bidirectional: true}}

	assert.Greater(t, scorer.CalculateRelationshipConfidence(bi), scorer.CalculateRelationshipConfidence(uni))
}

func TestUpdateConfidenceStoresComponents(t *testing.T) {
	store := newFakeMemoryGetUpdater()
	mem := confidenceTestMemory("mem:1", types.ProvenanceUserExplicit, time.Now())
	store.add(mem)

	scorer := NewConfidenceScorer(store)
	require.NoError(t, scorer.UpdateConfidence(context.Background(), "mem:1"))

	updated, err := store.GetByID(context.Background(), "mem:1")
	require.NoError(t, err)
	require.NotNil(t, updated.Metadata)
	assert.Contains(t, updated.Metadata, "confidence")
	assert.Contains(t, updated.Metadata, "confidence_components")
}

func TestGetConfidenceDefaultsWhenUnset(t *testing.T) {
	store := newFakeMemoryGetUpdater()
	mem := confidenceTestMemory("mem:1", types.ProvenanceUserExplicit, time.Now())
	store.add(mem)

	scorer := NewConfidenceScorer(store)
	score, err := scorer.GetConfidence(context.Background(), "mem:1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
}

func TestBatchUpdateConfidenceSkipsMissingRecords(t *testing.T) {
	store := newFakeMemoryGetUpdater()
	mem := confidenceTestMemory("mem:1", types.ProvenanceUserExplicit, time.Now())
	store.add(mem)

	scorer := NewConfidenceScorer(store)
	updated := scorer.BatchUpdateConfidence(context.Background(), []string{"mem:1", "mem:missing"})
	assert.Equal(t, 1, updated)
}
