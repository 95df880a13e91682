package types

import (
	"fmt"
	"strings"
)

// Content bounds (spec.md 3.2).
const (
	MinContentLength = 1
	MaxContentChars  = 50_000
	MaxContentBytes  = 51_200
)

// sqlInjectionPatterns are the literal phrases the content validator
// rejects, case-insensitively (spec.md 3.2).
var sqlInjectionPatterns = []string{
	"DROP TABLE",
	"DELETE FROM",
	"'; --",
	"UNION SELECT",
}

// FieldError describes a single validation failure: a field path and a
// human-readable reason. The validation layer is total (4.1): a value
// either collects zero FieldErrors and is usable, or collects at least one
// and is never partially constructed.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidationErrors is an ordered collection of FieldError, satisfying error.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Empty reports whether there are no validation errors.
func (e ValidationErrors) Empty() bool { return len(e) == 0 }

// ValidateContent checks the content field constraints from spec.md 3.2.
// It returns the trimmed content and any FieldErrors found; callers must
// use the returned string, not the original, going forward.
func ValidateContent(raw string) (string, []FieldError) {
	var errs []FieldError

	content := strings.TrimSpace(raw)

	if len(content) < MinContentLength {
		errs = append(errs, FieldError{"content", "must not be empty"})
		return content, errs
	}

	if len([]rune(content)) > MaxContentChars {
		errs = append(errs, FieldError{"content", fmt.Sprintf("exceeds %d characters", MaxContentChars)})
	}

	if len(content) > MaxContentBytes {
		errs = append(errs, FieldError{"content", fmt.Sprintf("exceeds %d UTF-8 bytes", MaxContentBytes)})
	}

	for _, pattern := range MatchedInjectionPatterns(content) {
		errs = append(errs, FieldError{"content", fmt.Sprintf("contains disallowed pattern %q", pattern)})
	}

	return content, errs
}

// MatchedInjectionPatterns reports which of the disallowed literal
// phrases (case-insensitive) appear in s. Shared by content validation
// and the query expander, which must not introduce one of these
// patterns while splicing in tokens from recent queries (spec.md 4.7).
func MatchedInjectionPatterns(s string) []string {
	upper := strings.ToUpper(s)
	var matched []string
	for _, pattern := range sqlInjectionPatterns {
		if strings.Contains(upper, pattern) {
			matched = append(matched, pattern)
		}
	}
	return matched
}

// ValidateImportance checks 0.0 <= x <= 1.0.
func ValidateImportance(field string, v float64) []FieldError {
	if v < 0.0 || v > 1.0 {
		return []FieldError{{field, "must be between 0.0 and 1.0"}}
	}
	return nil
}

// normalizeTag applies invariant I4 to a single tag: trim, lower-case, cap
// at 50 chars. An empty result means the tag is discarded.
func normalizeTag(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return ""
	}
	if len(t) > maxTagLength {
		t = t[:maxTagLength]
	}
	return t
}

// Validate applies every constraint in spec.md 3.2 to m and returns the
// full set of violations (4.1: "Validation must be total: no partial object
// is observable by downstream components"). m.Content and m.Tags are
// normalized in place as a side effect of a successful call, matching I3/I4
// ("applied on every create, update, and import").
func (m *Memory) Validate() ValidationErrors {
	var errs []FieldError

	content, cErrs := ValidateContent(m.Content)
	m.Content = content
	errs = append(errs, cErrs...)

	if !IsValidMemoryCategory(m.Category) {
		errs = append(errs, FieldError{"category", "required, must be a valid MemoryCategory"})
	}

	if !IsValidMemoryScope(m.Scope) {
		errs = append(errs, FieldError{"scope", "required, must be GLOBAL or PROJECT"})
	}

	// I1: scope = PROJECT => project_name != empty.
	if m.Scope == ScopeProject && strings.TrimSpace(m.ProjectName) == "" {
		errs = append(errs, FieldError{"project_name", "required when scope is PROJECT"})
	}

	errs = append(errs, ValidateImportance("importance", m.Importance)...)

	if m.ContextLevel != "" && !IsValidContextLevel(m.ContextLevel) {
		errs = append(errs, FieldError{"context_level", "must be a valid ContextLevel if provided"})
	}

	if m.Provenance.Source != "" && !IsValidProvenanceSource(m.Provenance.Source) {
		errs = append(errs, FieldError{"provenance.source", "must be a valid ProvenanceSource"})
	}
	if m.Provenance.Confidence < 0.0 || m.Provenance.Confidence > 1.0 {
		errs = append(errs, FieldError{"provenance.confidence", "must be between 0.0 and 1.0"})
	}

	// I4: tags normalized before comparison anywhere in the system.
	m.Tags = NormalizedTags(m.Tags)

	return errs
}
