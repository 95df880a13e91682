// Package engine implements the memory service's operation surface:
// synchronous store/retrieve/update/delete/list/merge against a
// storage.VectorStoreAdapter, composite-score retrieval ranking, and
// structural contradiction detection over the relationship graph.
package engine

import (
	"github.com/google/uuid"
)

// GenerateMemoryID allocates a fresh memory id. Ids are opaque to storage
// and callers; the "mem:" prefix is kept only for readability in logs and
// ad-hoc inspection.
func GenerateMemoryID() string {
	return "mem:" + uuid.New().String()
}
