package duplicate

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// supportBandLow/supportBandHigh bound the "supporting evidence" relation:
// similar enough to reinforce, not similar enough to be a duplicate
// (spec.md 4.9).
const (
	supportBandLow  = 0.7
	supportBandHigh = 0.85
)

// defaultDuplicateThreshold is detect_duplicates' own similarity floor,
// distinct from (and tighter than) Thresholds.Low used by the cluster scan.
const defaultDuplicateThreshold = 0.9

// contradictionTemporalGapDays is the minimum gap between two conflicting
// preferences before the conflict is treated as a genuine change of mind
// rather than noise.
const contradictionTemporalGapDays = 30

// RelationshipDetector computes advisory MemoryRelationship edges for a
// single new memory against its existing neighborhood: contradictions,
// duplicates, support, and supersession. Every result carries
// detected_by="auto" and is never used to mutate a memory directly.
type RelationshipDetector struct {
	store    duplicateStore
	embedder llm.EmbeddingGenerator
}

// NewRelationshipDetector builds a RelationshipDetector.
func NewRelationshipDetector(store duplicateStore, embedder llm.EmbeddingGenerator) *RelationshipDetector {
	return &RelationshipDetector{store: store, embedder: embedder}
}

// preferencePatterns extract a stated preference's subject from free text.
var preferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:i\s+)?prefer\s+(\w+(?:\s+\w+)?)`),
	regexp.MustCompile(`(?:i\s+)?like\s+(\w+(?:\s+\w+)?)`),
	regexp.MustCompile(`(?:i\s+)?use\s+(\w+(?:\s+\w+)?)`),
	regexp.MustCompile(`always\s+use\s+(\w+(?:\s+\w+)?)`),
	regexp.MustCompile(`never\s+use\s+(\w+(?:\s+\w+)?)`),
	regexp.MustCompile(`(?:i\s+)?choose\s+(\w+(?:\s+\w+)?)`),
}

// frameworkGroups are closed sets of mutually exclusive tools: stating a
// preference for one member implicitly rules out the others in the same
// group (spec.md 4.9).
var frameworkGroups = map[string][]string{
	"frontend":        {"react", "vue", "angular", "svelte", "solid"},
	"backend":         {"express", "fastapi", "django", "flask", "nest"},
	"database":        {"postgres", "mysql", "mongodb", "sqlite"},
	"testing":         {"jest", "vitest", "mocha", "jasmine"},
	"bundler":         {"webpack", "vite", "rollup", "parcel", "esbuild"},
	"package_manager": {"npm", "yarn", "pnpm"},
}

// DetectContradictions checks a new PREFERENCE or FACT memory against its
// same-category/scope/project neighborhood for conflicting preferences. If
// existing is nil, the neighborhood is fetched by similarity search.
func (r *RelationshipDetector) DetectContradictions(ctx context.Context, newMemory *types.Memory, existing []*types.Memory) ([]types.MemoryRelationship, error) {
	if newMemory.Category != types.CategoryPreference && newMemory.Category != types.CategoryFact {
		return nil, nil
	}

	if existing == nil {
		var err error
		existing, err = r.neighborhood(ctx, newMemory, 50)
		if err != nil {
			return nil, err
		}
	}

	var contradictions []types.MemoryRelationship
	for _, other := range existing {
		if other.ID == newMemory.ID {
			continue
		}

		isContradiction, confidence, reason := detectPreferenceContradiction(newMemory, other)
		if !isContradiction {
			continue
		}

		contradictions = append(contradictions, types.NewAutoRelationship(
			newMemory.ID, other.ID, types.RelationContradicts, confidence, reason,
		))
	}

	return contradictions, nil
}

// detectPreferenceContradiction implements the heuristic: extract stated
// preferences from both memories' content, flag a conflict when they land
// in the same mutually-exclusive framework group with different members
// and a temporal gap suggests a genuine change, or when an explicit
// negation pattern ("I prefer X" / "I don't prefer X") is present.
func detectPreferenceContradiction(a, b *types.Memory) (bool, float64, string) {
	contentA := strings.ToLower(a.Content)
	contentB := strings.ToLower(b.Content)

	prefsA := extractPreferences(contentA)
	prefsB := extractPreferences(contentB)
	if len(prefsA) == 0 || len(prefsB) == 0 {
		return false, 0.0, "no_preferences_found"
	}

	if conflict, ok := checkFrameworkConflicts(prefsA, prefsB); ok {
		gapDays := math.Abs(a.CreatedAt.Sub(b.CreatedAt).Hours() / 24)
		if gapDays > contradictionTemporalGapDays {
			confidence := math.Min(0.9, 0.7+(gapDays/365)*0.2)
			return true, confidence, fmt.Sprintf("conflicting_preferences: %s", conflict)
		}
	}

	if term, ok := explicitNegation(contentA, contentB); ok {
		return true, 0.95, fmt.Sprintf("explicit_negation: %s", term)
	}

	return false, 0.0, "no_contradiction"
}

func extractPreferences(content string) []string {
	var prefs []string
	for _, pattern := range preferencePatterns {
		for _, match := range pattern.FindAllStringSubmatch(content, -1) {
			if len(match) > 1 {
				prefs = append(prefs, match[1])
			}
		}
	}
	return prefs
}

// checkFrameworkConflicts reports the first mutually-exclusive group where
// both sides named a different member.
func checkFrameworkConflicts(prefsA, prefsB []string) (string, bool) {
	for group, members := range frameworkGroups {
		foundA := firstContaining(members, prefsA)
		foundB := firstContaining(members, prefsB)
		if foundA != "" && foundB != "" && foundA != foundB {
			return fmt.Sprintf("%s: %s vs %s", group, foundA, foundB), true
		}
	}
	return "", false
}

func firstContaining(candidates []string, prefs []string) string {
	for _, c := range candidates {
		for _, p := range prefs {
			if strings.Contains(p, c) {
				return c
			}
		}
	}
	return ""
}

var negationPositive = regexp.MustCompile(`i\s+prefer\s+(\w+)`)
var negationAlwaysUse = regexp.MustCompile(`always\s+use\s+(\w+)`)

// explicitNegation looks for "I prefer X" / "always use X" in contentA
// matched by an explicit "don't prefer X" / "never use X" in contentB.
func explicitNegation(contentA, contentB string) (string, bool) {
	if m := negationPositive.FindStringSubmatch(contentA); m != nil {
		term := m[1]
		if regexp.MustCompile(`i\s+don't\s+(?:prefer|like)\s+` + regexp.QuoteMeta(term)).MatchString(contentB) {
			return term, true
		}
	}
	if m := negationAlwaysUse.FindStringSubmatch(contentA); m != nil {
		term := m[1]
		if regexp.MustCompile(`never\s+use\s+` + regexp.QuoteMeta(term)).MatchString(contentB) {
			return term, true
		}
	}
	return "", false
}

// DetectDuplicates finds memories near-identical to newMemory (default
// threshold 0.9, tighter than the cluster-scan Low band) and returns
// advisory DUPLICATE edges.
func (r *RelationshipDetector) DetectDuplicates(ctx context.Context, newMemory *types.Memory, threshold float64) ([]types.MemoryRelationship, error) {
	if threshold <= 0 {
		threshold = defaultDuplicateThreshold
	}

	similar, err := r.neighborhoodScored(ctx, newMemory, 20)
	if err != nil {
		return nil, err
	}

	var duplicates []types.MemoryRelationship
	for _, s := range similar {
		if s.Memory.ID == newMemory.ID || s.Score < threshold {
			continue
		}
		duplicates = append(duplicates, types.NewAutoRelationship(
			newMemory.ID, s.Memory.ID, types.RelationDuplicate, s.Score,
			fmt.Sprintf("semantic similarity: %.3f", s.Score),
		))
	}
	return duplicates, nil
}

// DetectSupport reports a SUPPORTS edge between two same-category memories
// whose cosine similarity falls in [supportBandLow, supportBandHigh) —
// related enough to reinforce each other, not similar enough to be a
// duplicate.
func (r *RelationshipDetector) DetectSupport(ctx context.Context, a, b *types.Memory) (*types.MemoryRelationship, error) {
	if a.Category != b.Category {
		return nil, nil
	}

	vecA, err := r.embedder.Embed(ctx, a.Content)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "detect_support: embedding failed")
	}
	vecB, err := r.embedder.Embed(ctx, b.Content)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "detect_support: embedding failed")
	}

	similarity := cosineSimilarity(vecA, vecB)
	if similarity < supportBandLow || similarity >= supportBandHigh {
		return nil, nil
	}

	rel := types.NewAutoRelationship(a.ID, b.ID, types.RelationSupports, similarity,
		fmt.Sprintf("supporting evidence (similarity=%.3f)", similarity))
	return &rel, nil
}

// DetectSupersession reports SUPERSEDES edges from newMemory to older
// memories it replaces: a candidate is superseded when newMemory is newer
// and either more confident or newly verified where the candidate was not.
// If existing is nil, the neighborhood is fetched by similarity search
// restricted to scores above 0.9.
func (r *RelationshipDetector) DetectSupersession(ctx context.Context, newMemory *types.Memory, existing []*types.Memory) ([]types.MemoryRelationship, error) {
	if existing == nil {
		scored, err := r.neighborhoodScored(ctx, newMemory, 20)
		if err != nil {
			return nil, err
		}
		for _, s := range scored {
			if s.Score > 0.9 {
				existing = append(existing, s.Memory)
			}
		}
	}

	var supersessions []types.MemoryRelationship
	for _, old := range existing {
		if old.ID == newMemory.ID {
			continue
		}

		isNewer := newMemory.CreatedAt.After(old.CreatedAt)
		isBetter := newMemory.Provenance.Confidence > old.Provenance.Confidence ||
			(newMemory.Provenance.Verified && !old.Provenance.Verified)
		if !isNewer || !isBetter {
			continue
		}

		gapDays := newMemory.CreatedAt.Sub(old.CreatedAt).Hours() / 24
		confidenceGap := newMemory.Provenance.Confidence - old.Provenance.Confidence
		confidence := math.Min(0.95, 0.7+confidenceGap*0.3+(gapDays/365)*0.1)

		supersessions = append(supersessions, types.NewAutoRelationship(
			newMemory.ID, old.ID, types.RelationSupersedes, confidence,
			fmt.Sprintf("newer and higher confidence (gap=%.0fd)", gapDays),
		))
	}

	return supersessions, nil
}

// neighborhood fetches same-category/scope/project candidates by embedding
// newMemory.Content, discarding scores.
func (r *RelationshipDetector) neighborhood(ctx context.Context, memory *types.Memory, limit int) ([]*types.Memory, error) {
	scored, err := r.neighborhoodScored(ctx, memory, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Memory, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Memory)
	}
	return out, nil
}

func (r *RelationshipDetector) neighborhoodScored(ctx context.Context, memory *types.Memory, limit int) ([]storage.Scored, error) {
	vector, err := r.embedder.Embed(ctx, memory.Content)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "relationship detection: embedding failed")
	}

	filters := storage.Filters{Category: memory.Category, Scope: memory.Scope, ProjectName: memory.ProjectName}
	scored, err := r.store.Retrieve(ctx, vector, filters, limit)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "relationship detection: retrieve failed")
	}
	return scored, nil
}

// cosineSimilarity mirrors the formula the sqlite adapter's brute-force ANN
// fallback uses, clamped to [0,1] (negative similarity is never meaningful
// for the normalized embeddings this engine produces).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
