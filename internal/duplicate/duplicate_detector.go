// Package duplicate implements the duplicate and relationship detectors
// (spec.md 4.9): semantic-similarity duplicate scanning with union-find
// clustering, and per-memory contradiction/duplicate/support/supersession
// edge detection. Both are stateless between calls — all transient state
// lives on the stack of a single invocation.
package duplicate

import (
	"context"
	"fmt"
	"sort"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// duplicateStore is the minimal storage dependency the duplicate detector
// needs: similarity search for a single candidate memory, and a full
// paginated scan for corpus-wide clustering.
type duplicateStore interface {
	Retrieve(ctx context.Context, queryVector []float32, filters storage.Filters, limit int) ([]storage.Scored, error)
	ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error)
}

// Thresholds are the three confidence bands find_duplicate_memories and
// cluster_duplicates operate at: high is safe for automatic merge, medium
// queues for user review, low is the floor for "flagged as related".
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultThresholds matches spec.md 4.9's defaults.
var DefaultThresholds = Thresholds{High: 0.95, Medium: 0.85, Low: 0.75}

// Validate reports whether 0 <= Low <= Medium <= High <= 1.
func (t Thresholds) Validate() error {
	if !(0.0 <= t.Low && t.Low <= t.Medium && t.Medium <= t.High && t.High <= 1.0) {
		return fmt.Errorf("%w: thresholds must satisfy 0 <= low <= medium <= high <= 1", engineerr.ErrInvalidInput)
	}
	return nil
}

// Detector finds semantically similar memories and clusters duplicates
// for merge/review triage.
type Detector struct {
	store      duplicateStore
	embedder   llm.EmbeddingGenerator
	thresholds Thresholds
}

// NewDetector builds a Detector. An invalid threshold set falls back to
// DefaultThresholds rather than panicking, since this is always constructed
// once at startup from config.
func NewDetector(store duplicateStore, embedder llm.EmbeddingGenerator, thresholds Thresholds) *Detector {
	if thresholds.Validate() != nil {
		thresholds = DefaultThresholds
	}
	return &Detector{store: store, embedder: embedder, thresholds: thresholds}
}

// FindDuplicates implements find_duplicate_memories's single-memory mode:
// embed memory.Content, query the adapter under matching category/scope/
// project filters, drop memory's own id, keep scores >= threshold, sorted
// descending. threshold <= 0 defaults to the Low band.
func (d *Detector) FindDuplicates(ctx context.Context, memory *types.Memory, threshold float64) ([]storage.Scored, error) {
	if threshold <= 0 {
		threshold = d.thresholds.Low
	}

	vector, err := d.embedder.Embed(ctx, memory.Content)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "find_duplicates: embedding failed")
	}

	filters := storage.Filters{Category: memory.Category, Scope: memory.Scope, ProjectName: memory.ProjectName}
	candidates, err := d.store.Retrieve(ctx, vector, filters, 100)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "find_duplicates: retrieve failed")
	}

	var duplicates []storage.Scored
	for _, c := range candidates {
		if c.Memory.ID == memory.ID || c.Score < threshold {
			continue
		}
		duplicates = append(duplicates, c)
	}

	sort.SliceStable(duplicates, func(i, j int) bool { return duplicates[i].Score > duplicates[j].Score })
	return duplicates, nil
}

// ClassifySimilarity buckets a similarity score into a confidence label.
func (d *Detector) ClassifySimilarity(score float64) string {
	switch {
	case score >= d.thresholds.High:
		return "high"
	case score >= d.thresholds.Medium:
		return "medium"
	case score >= d.thresholds.Low:
		return "low"
	default:
		return "none"
	}
}

// clusterScanPageSize paginates the corpus scan backing FindAllClusters.
const clusterScanPageSize = 500

// scanAll retrieves every memory matching filters, paginated.
func (d *Detector) scanAll(ctx context.Context, filters storage.Filters) ([]types.Memory, error) {
	var all []types.Memory
	page := 1
	for {
		opts := storage.ListOptions{
			Page: page, Limit: clusterScanPageSize,
			Category: filters.Category, Scope: filters.Scope, ProjectName: filters.ProjectName,
		}
		result, err := d.store.ListMemories(ctx, opts)
		if err != nil {
			return nil, engineerr.FromSentinel(err, "find_all_duplicates: list failed")
		}
		all = append(all, result.Items...)
		if !result.HasMore {
			break
		}
		page++
	}
	return all, nil
}

// DuplicateMember is one non-canonical member of a duplicate cluster.
type DuplicateMember struct {
	ID                   string
	SimilarityToCanonical float64
}

// Cluster groups memories whose pairwise similarity chains connect them
// transitively at or above the clustering threshold (spec.md 4.9:
// "collapses symmetric pairs into clusters via union-find").
type Cluster struct {
	CanonicalID       string
	Members           []DuplicateMember
	AverageSimilarity float64
	Size              int
}

// FindAllClusters scans the corpus matching filters and groups it into
// duplicate clusters via union-find over every pair scoring at or above
// threshold. threshold <= 0 defaults to the Medium band. Canonical member
// selection prefers: documented > lower complexity > fewer lines (read
// from memory.Metadata's "has_documentation"/"cyclomatic_complexity"/
// "line_count" keys, as set by the code indexer for CODE-category units;
// memories without that metadata compare as the least-preferred value).
func (d *Detector) FindAllClusters(ctx context.Context, filters storage.Filters, threshold float64) ([]Cluster, error) {
	if threshold <= 0 {
		threshold = d.thresholds.Medium
	}

	all, err := d.scanAll(ctx, filters)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	byID := make(map[string]*types.Memory, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	type edge struct {
		a, b  string
		score float64
	}
	edgeScore := make(map[[2]string]float64)

	for i := range all {
		dups, err := d.FindDuplicates(ctx, &all[i], threshold)
		if err != nil {
			return nil, err
		}
		for _, dup := range dups {
			key := sortedPair(all[i].ID, dup.Memory.ID)
			if existing, ok := edgeScore[key]; !ok || dup.Score > existing {
				edgeScore[key] = dup.Score
			}
		}
	}

	edges := make([]edge, 0, len(edgeScore))
	for pair, score := range edgeScore {
		edges = append(edges, edge{a: pair[0], b: pair[1], score: score})
	}

	uf := newUnionFind()
	for _, mem := range all {
		uf.add(mem.ID)
	}
	for _, e := range edges {
		uf.union(e.a, e.b)
	}

	groups := make(map[string][]string)
	for _, mem := range all {
		root := uf.find(mem.ID)
		groups[root] = append(groups[root], mem.ID)
	}

	var clusters []Cluster
	for _, memberIDs := range groups {
		if len(memberIDs) < 2 {
			continue
		}

		canonicalID := selectCanonical(memberIDs, byID)

		var members []DuplicateMember
		var total float64
		for _, id := range memberIDs {
			if id == canonicalID {
				continue
			}
			score := edgeScore[sortedPair(canonicalID, id)]
			members = append(members, DuplicateMember{ID: id, SimilarityToCanonical: score})
			total += score
		}

		avg := 0.0
		if len(members) > 0 {
			avg = total / float64(len(members))
		}

		clusters = append(clusters, Cluster{
			CanonicalID:       canonicalID,
			Members:           members,
			AverageSimilarity: avg,
			Size:              len(memberIDs),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Size > clusters[j].Size })
	return clusters, nil
}

// GetAutoMergeCandidates returns clusters where every member meets the high
// threshold, safe for automatic merging without user review.
func (d *Detector) GetAutoMergeCandidates(ctx context.Context, filters storage.Filters) ([]Cluster, error) {
	clusters, err := d.FindAllClusters(ctx, filters, d.thresholds.High)
	if err != nil {
		return nil, err
	}
	var safe []Cluster
	for _, c := range clusters {
		allHigh := true
		for _, m := range c.Members {
			if m.SimilarityToCanonical < d.thresholds.High {
				allHigh = false
				break
			}
		}
		if allHigh {
			safe = append(safe, c)
		}
	}
	return safe, nil
}

// GetUserReviewCandidates returns clusters with at least one member in the
// medium band (and not already a full high-confidence cluster).
func (d *Detector) GetUserReviewCandidates(ctx context.Context, filters storage.Filters) ([]Cluster, error) {
	clusters, err := d.FindAllClusters(ctx, filters, d.thresholds.Medium)
	if err != nil {
		return nil, err
	}
	var review []Cluster
	for _, c := range clusters {
		hasMedium := false
		for _, m := range c.Members {
			if m.SimilarityToCanonical >= d.thresholds.Medium && m.SimilarityToCanonical < d.thresholds.High {
				hasMedium = true
				break
			}
		}
		if hasMedium {
			review = append(review, c)
		}
	}
	return review, nil
}

func sortedPair(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// selectCanonical picks the best member of a cluster: documented preferred
// over undocumented, then lower cyclomatic complexity, then fewer lines.
// Metadata absent on a candidate sorts as the worst value on that axis.
func selectCanonical(memberIDs []string, byID map[string]*types.Memory) string {
	best := memberIDs[0]
	bestScore := canonicalScore(byID[best])

	for _, id := range memberIDs[1:] {
		score := canonicalScore(byID[id])
		if scoreBetter(score, bestScore) {
			best = id
			bestScore = score
		}
	}
	return best
}

type canonicalScoreTuple struct {
	documented bool
	complexity int
	lineCount  int
}

func canonicalScore(mem *types.Memory) canonicalScoreTuple {
	if mem == nil || mem.Metadata == nil {
		return canonicalScoreTuple{documented: false, complexity: 999, lineCount: 999}
	}
	return canonicalScoreTuple{
		documented: metadataBool(mem.Metadata, "has_documentation"),
		complexity: metadataInt(mem.Metadata, "cyclomatic_complexity", 999),
		lineCount:  metadataInt(mem.Metadata, "line_count", 999),
	}
}

// scoreBetter reports whether candidate outranks current: documented wins
// first, then lower complexity, then fewer lines.
func scoreBetter(candidate, current canonicalScoreTuple) bool {
	if candidate.documented != current.documented {
		return candidate.documented
	}
	if candidate.complexity != current.complexity {
		return candidate.complexity < current.complexity
	}
	return candidate.lineCount < current.lineCount
}

func metadataBool(m map[string]interface{}, key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

func metadataInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// unionFind is a standard disjoint-set structure with path compression,
// used to collapse symmetric duplicate pairs into connected clusters.
type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		u.parent[id], id = root, u.parent[id]
	}
	return root
}

func (u *unionFind) union(a, b string) {
	rootA, rootB := u.find(a), u.find(b)
	if rootA != rootB {
		u.parent[rootB] = rootA
	}
}
