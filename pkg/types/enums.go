package types

import "time"

// ContextLevel is the coarse relevance tier used during ranking.
type ContextLevel string

const (
	ContextUserPreference ContextLevel = "USER_PREFERENCE"
	ContextProjectContext ContextLevel = "PROJECT_CONTEXT"
	ContextSessionState   ContextLevel = "SESSION_STATE"
)

// ValidContextLevels lists all valid ContextLevel values, in the enum order
// used to break classifier ties (see classifier.ClassifyContextLevel).
var ValidContextLevels = []ContextLevel{
	ContextUserPreference,
	ContextProjectContext,
	ContextSessionState,
}

// IsValidContextLevel reports whether c is one of ValidContextLevels.
// An empty value is not valid on its own; callers auto-classify instead.
func IsValidContextLevel(c ContextLevel) bool {
	for _, v := range ValidContextLevels {
		if c == v {
			return true
		}
	}
	return false
}

// MemoryCategory classifies the kind of content a memory unit holds.
type MemoryCategory string

const (
	CategoryPreference MemoryCategory = "PREFERENCE"
	CategoryFact        MemoryCategory = "FACT"
	CategoryEvent       MemoryCategory = "EVENT"
	CategoryWorkflow    MemoryCategory = "WORKFLOW"
	CategoryContext     MemoryCategory = "CONTEXT"
	CategoryCode        MemoryCategory = "CODE"
)

var ValidMemoryCategories = []MemoryCategory{
	CategoryPreference, CategoryFact, CategoryEvent,
	CategoryWorkflow, CategoryContext, CategoryCode,
}

func IsValidMemoryCategory(c MemoryCategory) bool {
	for _, v := range ValidMemoryCategories {
		if c == v {
			return true
		}
	}
	return false
}

// MemoryScope indicates whether a memory is global or bound to one project.
type MemoryScope string

const (
	ScopeGlobal  MemoryScope = "GLOBAL"
	ScopeProject MemoryScope = "PROJECT"
)

var ValidMemoryScopes = []MemoryScope{ScopeGlobal, ScopeProject}

func IsValidMemoryScope(s MemoryScope) bool {
	return s == ScopeGlobal || s == ScopeProject
}

// LifecycleState is the age-derived decay tier applied during composite
// scoring. It is a pure function of now - last_accessed (invariant I5); it
// is never set directly by a caller.
type LifecycleState string

const (
	LifecycleActive   LifecycleState = "ACTIVE"
	LifecycleRecent   LifecycleState = "RECENT"
	LifecycleArchived LifecycleState = "ARCHIVED"
	LifecycleStale    LifecycleState = "STALE"
)

var ValidLifecycleStates = []LifecycleState{
	LifecycleActive, LifecycleRecent, LifecycleArchived, LifecycleStale,
}

func IsValidLifecycleState(s LifecycleState) bool {
	for _, v := range ValidLifecycleStates {
		if s == v {
			return true
		}
	}
	return false
}

// LifecycleDecayWeight returns the decay weight applied during composite
// scoring for a given lifecycle state (spec.md 3.1).
func LifecycleDecayWeight(s LifecycleState) float64 {
	switch s {
	case LifecycleActive:
		return 1.0
	case LifecycleRecent:
		return 0.7
	case LifecycleArchived:
		return 0.3
	case LifecycleStale:
		return 0.1
	default:
		return 0.1
	}
}

// Age thresholds for DeriveLifecycleState (invariant I5).
const (
	lifecycleRecentThreshold   = 7 * 24 * time.Hour
	lifecycleArchivedThreshold = 30 * 24 * time.Hour
	lifecycleStaleThreshold    = 180 * 24 * time.Hour
)

// DeriveLifecycleState computes the lifecycle state purely from the interval
// between now and lastAccessed, per the threshold table in spec.md 3.1/I5.
// It never consults mutable state other than its two arguments.
func DeriveLifecycleState(now, lastAccessed time.Time) LifecycleState {
	age := now.Sub(lastAccessed)
	switch {
	case age < lifecycleRecentThreshold:
		return LifecycleActive
	case age < lifecycleArchivedThreshold:
		return LifecycleRecent
	case age < lifecycleStaleThreshold:
		return LifecycleArchived
	default:
		return LifecycleStale
	}
}

// ProvenanceSource identifies how a memory unit came to exist.
type ProvenanceSource string

const (
	ProvenanceUserExplicit   ProvenanceSource = "USER_EXPLICIT"
	ProvenanceClaudeInferred ProvenanceSource = "CLAUDE_INFERRED"
	ProvenanceDocumentation  ProvenanceSource = "DOCUMENTATION"
	ProvenanceAutoClassified ProvenanceSource = "AUTO_CLASSIFIED"
	ProvenanceImported       ProvenanceSource = "IMPORTED"
	ProvenanceCodeIndexed    ProvenanceSource = "CODE_INDEXED"
	ProvenanceLegacy         ProvenanceSource = "LEGACY"
)

var ValidProvenanceSources = []ProvenanceSource{
	ProvenanceUserExplicit, ProvenanceClaudeInferred, ProvenanceDocumentation,
	ProvenanceAutoClassified, ProvenanceImported, ProvenanceCodeIndexed, ProvenanceLegacy,
}

func IsValidProvenanceSource(s ProvenanceSource) bool {
	for _, v := range ValidProvenanceSources {
		if s == v {
			return true
		}
	}
	return false
}

// MergeStrategy determines which of N merged memories survives.
type MergeStrategy string

const (
	MergeKeepMostRecent       MergeStrategy = "KEEP_MOST_RECENT"
	MergeKeepHighestImportance MergeStrategy = "KEEP_HIGHEST_IMPORTANCE"
	MergeKeepMostAccessed      MergeStrategy = "KEEP_MOST_ACCESSED"
	MergeContent               MergeStrategy = "MERGE_CONTENT"
	MergeUserSelected           MergeStrategy = "USER_SELECTED"
)

var ValidMergeStrategies = []MergeStrategy{
	MergeKeepMostRecent, MergeKeepHighestImportance, MergeKeepMostAccessed,
	MergeContent, MergeUserSelected,
}

func IsValidMergeStrategy(s MergeStrategy) bool {
	for _, v := range ValidMergeStrategies {
		if s == v {
			return true
		}
	}
	return false
}

// RelationshipType is the closed set of edges the relationship detector can
// produce between two memory units (distinct from the entity-relationship
// types in relationship.go, which describe entity-to-entity edges).
type RelationshipType string

const (
	RelationContradicts RelationshipType = "CONTRADICTS"
	RelationDuplicate   RelationshipType = "DUPLICATE"
	RelationSupports    RelationshipType = "SUPPORTS"
	RelationSupersedes  RelationshipType = "SUPERSEDES"
)

var ValidRelationshipTypes = []RelationshipType{
	RelationContradicts, RelationDuplicate, RelationSupports, RelationSupersedes,
}

func IsValidRelationshipType(t RelationshipType) bool {
	for _, v := range ValidRelationshipTypes {
		if t == v {
			return true
		}
	}
	return false
}

// FeedbackRating is the caller's judgment of a search result's usefulness.
type FeedbackRating string

const (
	FeedbackHelpful    FeedbackRating = "HELPFUL"
	FeedbackNotHelpful FeedbackRating = "NOT_HELPFUL"
)

func IsValidFeedbackRating(r FeedbackRating) bool {
	return r == FeedbackHelpful || r == FeedbackNotHelpful
}
