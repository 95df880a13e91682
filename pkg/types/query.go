package types

import "time"

// Query bounds (spec.md 3.3).
const (
	MinQueryLength = 1
	MaxQueryChars  = 1000
	DefaultLimit   = 5
	MaxLimit       = 100
)

// TagMatchMode is the logic applied to AdvancedSearchFilters.Tags.
type TagMatchMode string

const (
	TagMatchAny  TagMatchMode = "ANY"
	TagMatchAll  TagMatchMode = "ALL"
	TagMatchNone TagMatchMode = "NONE"
)

// QueryRequest is the input to retrieve_memories (spec.md 3.3/4.8.2).
type QueryRequest struct {
	Query           string
	Limit           int
	ContextLevel    ContextLevel
	Scope           MemoryScope
	ProjectName     string
	Category        MemoryCategory
	MinImportance   float64
	Tags            []string
	AdvancedFilters *AdvancedSearchFilters
	SessionID       string
}

// Normalize applies the defaults and bounds from spec.md 3.3 and returns any
// violations. Must be called before a QueryRequest is used.
func (q *QueryRequest) Normalize() []FieldError {
	var errs []FieldError

	q.Query = trimToLen(q.Query)
	if len(q.Query) < MinQueryLength {
		errs = append(errs, FieldError{"query", "must not be empty"})
	}
	if len([]rune(q.Query)) > MaxQueryChars {
		errs = append(errs, FieldError{"query", "exceeds 1000 characters"})
	}

	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	if q.MinImportance < 0 || q.MinImportance > 1.0 {
		errs = append(errs, FieldError{"min_importance", "must be between 0.0 and 1.0"})
	}

	q.Tags = NormalizedTags(q.Tags)

	if q.ContextLevel != "" && !IsValidContextLevel(q.ContextLevel) {
		errs = append(errs, FieldError{"context_level", "must be a valid ContextLevel"})
	}
	if q.Scope != "" && !IsValidMemoryScope(q.Scope) {
		errs = append(errs, FieldError{"scope", "must be a valid MemoryScope"})
	}
	if q.Category != "" && !IsValidMemoryCategory(q.Category) {
		errs = append(errs, FieldError{"category", "must be a valid MemoryCategory"})
	}

	return errs
}

func trimToLen(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t' || s[0] == '\n') {
		s = s[1:]
	}
	for len(s) > 0 {
		last := s[len(s)-1]
		if last == ' ' || last == '\t' || last == '\n' {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}

// SearchFilters combines the common filter axes shared by retrieve_memories
// and list_memories (spec.md 3.3).
type SearchFilters struct {
	Category      MemoryCategory
	ContextLevel  ContextLevel
	Scope         MemoryScope
	ProjectName   string
	MinImportance float64
	MaxImportance float64
	DateFrom      time.Time
	DateTo        time.Time
	Advanced      *AdvancedSearchFilters
}

// AdvancedSearchFilters refines a SearchFilters with date ranges, tag logic,
// lifecycle/category/project exclusions, and provenance constraints
// (spec.md 3.3).
type AdvancedSearchFilters struct {
	CreatedAfter    time.Time
	CreatedBefore   time.Time
	UpdatedAfter    time.Time
	UpdatedBefore   time.Time
	AccessedAfter   time.Time
	Tags            []string
	TagMode         TagMatchMode
	LifecycleStates []LifecycleState
	ExcludeCategory []MemoryCategory
	ExcludeProject  []string
	MinTrustScore   float64
	ProvenanceSrc   []ProvenanceSource
}

// CodeSortField is the set of sort keys search_code accepts.
type CodeSortField string

const (
	CodeSortRelevance CodeSortField = "relevance"
	CodeSortComplexity CodeSortField = "complexity"
	CodeSortSize       CodeSortField = "size"
	CodeSortRecency    CodeSortField = "recency"
	CodeSortImportance CodeSortField = "importance"
)

// CodeSearchFilters narrows search_code/find_similar_code to code-indexed
// memories (spec.md 3.3). ComplexityMin/Max and LineCountMin/Max, and
// ModifiedAfter/Before are optional per the spec's Open Question admitting
// them without requiring full support.
type CodeSearchFilters struct {
	FilePattern      string
	ExcludePatterns  []string
	ComplexityMin    *int
	ComplexityMax    *int
	LineCountMin     *int
	LineCountMax     *int
	ModifiedAfter    *time.Time
	ModifiedBefore   *time.Time
	SortBy           CodeSortField
	SortOrder        string // "asc" | "desc"
}
