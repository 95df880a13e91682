package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MemoryProvenance records where a memory unit came from and how much it is
// trusted.
type MemoryProvenance struct {
	Source         ProvenanceSource `json:"source"`
	CreatedBy      string           `json:"created_by"`
	LastConfirmed  *time.Time       `json:"last_confirmed,omitempty"`
	Confidence     float64          `json:"confidence"`
	Verified       bool             `json:"verified"`
	ConversationID string           `json:"conversation_id,omitempty"`
	FileContext    []string         `json:"file_context,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

// DefaultConfidence is applied to a provenance block that does not specify
// one explicitly (spec.md 3.2).
const DefaultConfidence = 0.8

// NewProvenance builds a MemoryProvenance with the documented default
// confidence and the given source/creator.
func NewProvenance(source ProvenanceSource, createdBy string) MemoryProvenance {
	return MemoryProvenance{
		Source:     source,
		CreatedBy:  createdBy,
		Confidence: DefaultConfidence,
	}
}

// Memory is the core persistent record: content, metadata, and (once
// embedded) a vector. This is the Go rendering of spec.md 3.2's MemoryUnit,
// generalized from a task/project-tracking record into a general-purpose
// semantic memory unit.
type Memory struct {
	ID             string                 `json:"id"`
	Content        string                 `json:"content"`
	Category       MemoryCategory         `json:"category"`
	ContextLevel   ContextLevel           `json:"context_level"`
	Scope          MemoryScope            `json:"scope"`
	ProjectName    string                 `json:"project_name,omitempty"`
	Importance     float64                `json:"importance"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	LastAccessed   time.Time              `json:"last_accessed"`
	LifecycleState LifecycleState         `json:"lifecycle_state"`
	Provenance     MemoryProvenance       `json:"provenance"`
	Tags           []string               `json:"tags,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	// AccessCount feeds the composite score's usage term
	// (w_u * log(1+use_count), spec.md 4.8.2 step 7).
	AccessCount int `json:"access_count"`

	// ContentHash is SHA-256(content), used by store_memory for idempotent
	// duplicate detection on exact re-submission before the similarity-based
	// duplicate detector (4.9) ever runs.
	ContentHash string `json:"content_hash,omitempty"`

	// DeletedAt marks a soft-deleted record. Hard delete (spec.md 3.5)
	// removes the row from the adapter; the memory service stages deletes
	// through this field first so ListDeletedMemories/RestoreMemory
	// (supplemented features) can recover within the adapter's retention
	// window, after which a purge sweep performs the real hard delete.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// SupersededBy/Supersedes link evolution chains created by merge_memories
	// or by the relationship detector's SUPERSEDES edges.
	SupersededBy string `json:"superseded_by,omitempty"`
	Supersedes   string `json:"supersedes,omitempty"`
}

// Touch records a successful access: last_accessed advances, lifecycle_state
// moves back to ACTIVE (spec.md 3.5 "Access"), and the access counter
// increments for composite scoring.
func (m *Memory) Touch(now time.Time) {
	m.LastAccessed = now
	m.LifecycleState = LifecycleActive
	m.AccessCount++
}

// RefreshLifecycle recomputes LifecycleState purely from LastAccessed
// without registering an access. Used by list/export paths that must report
// an up-to-date tier without counting as a retrieval.
func (m *Memory) RefreshLifecycle(now time.Time) {
	m.LifecycleState = DeriveLifecycleState(now, m.LastAccessed)
}

const maxTags = 20
const maxTagLength = 50

// NormalizedTags returns the tag set per invariant I4: trimmed, lower-cased,
// truncated to 50 chars, empties discarded, capped at 20 entries, first-seen
// order with duplicates removed.
func NormalizedTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		nt := normalizeTag(t)
		if nt == "" {
			continue
		}
		if _, ok := seen[nt]; ok {
			continue
		}
		seen[nt] = struct{}{}
		out = append(out, nt)
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// ContentHash computes the deduplication key used by store_memory.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
