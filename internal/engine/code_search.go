package engine

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/tracing"
	"github.com/scrypster/memento/pkg/types"
)

// codeExtensions maps a file extension to the language label recorded in
// Metadata["language"]. index_codebase only indexes files in this set.
var codeExtensions = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
}

// skipDirs are directory names index_codebase never descends into.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
	"__pycache__": true, "dist": true, "build": true, ".idea": true,
}

// maxIndexFileBytes skips files larger than this rather than embedding an
// unreasonably large document as a single memory unit.
const maxIndexFileBytes = 512 * 1024

// controlFlowKeywords approximate cyclomatic complexity by counting
// branch-introducing tokens. This is a heuristic, not a language-aware
// parse, and is intentionally conservative (every matched keyword adds one
// to a base complexity of one).
var controlFlowKeywords = []string{
	"if ", "if(", "for ", "for(", "while ", "while(", "case ", "catch ",
	"except ", "elif ", "&&", "||",
}

// CodeIndexer implements index_codebase/search_code/find_similar_code
// (spec.md 3.3's CodeSearchFilters, supplemented: no original_source
// implementation exists for these three operations, so the approach below
// is grounded on the pre-existing CODE category/CODE_INDEXED provenance
// enum values and follows MemoryService.StoreMemory's own store shape).
type CodeIndexer struct {
	adapter  storage.VectorStoreAdapter
	embedder llm.EmbeddingGenerator
	logger   *tracing.Logger
	readOnly bool
}

// NewCodeIndexer builds a CodeIndexer.
func NewCodeIndexer(adapter storage.VectorStoreAdapter, embedder llm.EmbeddingGenerator, logger *tracing.Logger, readOnly bool) *CodeIndexer {
	return &CodeIndexer{adapter: adapter, embedder: embedder, logger: logger, readOnly: readOnly}
}

// IndexedFile reports the outcome of indexing a single file.
type IndexedFile struct {
	Path  string `json:"path"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// IndexResult is the response shape of index_codebase.
type IndexResult struct {
	Indexed int
	Skipped int
	Files   []IndexedFile
}

// IndexCodebase walks rootPath, embeds and stores one CODE memory per
// recognized source file under projectName, and returns a per-file
// outcome. A bad individual file is recorded as an error entry, never
// aborts the walk (spec.md 7: partial-batch operations never abort on one
// failure).
func (c *CodeIndexer) IndexCodebase(ctx context.Context, rootPath, projectName string) (*IndexResult, error) {
	if c.readOnly {
		return nil, engineerr.New(engineerr.KindReadOnly, "engine is in read-only mode").
			WithSolution("disable read_only_mode to perform mutating operations")
	}

	result := &IndexResult{}

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if skipDirs[d.Name()] && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := codeExtensions[strings.ToLower(filepath.Ext(path))]
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxIndexFileBytes {
			result.Skipped++
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			rel = path
		}

		id, indexErr := c.indexFile(ctx, path, rel, lang, projectName)
		if indexErr != nil {
			result.Files = append(result.Files, IndexedFile{Path: rel, Error: indexErr.Error()})
			if c.logger != nil {
				c.logger.Warn(ctx, "index_codebase: failed to index file", "path", rel, "error", indexErr)
			}
			return nil
		}
		result.Indexed++
		result.Files = append(result.Files, IndexedFile{Path: rel, ID: id})
		return nil
	})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "index_codebase: walk failed")
	}

	return result, nil
}

func (c *CodeIndexer) indexFile(ctx context.Context, path, relPath, language, projectName string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(content)

	lineCount := countLines(text)
	complexity := estimateComplexity(text)
	hasDocs := hasDocumentation(text, language)

	now := time.Now()
	mem := &types.Memory{
		ID:           GenerateMemoryID(),
		Content:      text,
		Category:     types.CategoryCode,
		Scope:        types.ScopeProject,
		ProjectName:  projectName,
		Importance:   0.5,
		ContextLevel: types.ContextProjectContext,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		LifecycleState: types.LifecycleActive,
		Provenance:   types.NewProvenance(types.ProvenanceCodeIndexed, "code_indexer"),
		Tags:         []string{language},
		Metadata: map[string]interface{}{
			"file_path":            relPath,
			"language":             language,
			"line_count":           lineCount,
			"cyclomatic_complexity": complexity,
			"has_documentation":    hasDocs,
		},
	}
	mem.ContentHash = types.ContentHash(mem.Content)

	if errs := mem.Validate(); len(errs) > 0 {
		return "", engineerr.New(engineerr.KindValidation, errs.Error())
	}

	vector, err := c.embed(ctx, mem.Content)
	if err != nil {
		return "", err
	}
	mem.EmbeddingModel = c.embedder.GetModel()

	id, err := c.adapter.Store(ctx, mem, vector)
	if err != nil {
		return "", engineerr.FromSentinel(err, "index_codebase: adapter write failed")
	}
	return id, nil
}

func (c *CodeIndexer) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindEmbedding, err, "embedding generation failed")
	}
	return vec, nil
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n
}

func estimateComplexity(text string) int {
	complexity := 1
	lower := strings.ToLower(text)
	for _, kw := range controlFlowKeywords {
		complexity += strings.Count(lower, kw)
	}
	return complexity
}

func hasDocumentation(text, language string) bool {
	switch language {
	case "go":
		return strings.Contains(text, "//") || strings.Contains(text, "/*")
	case "python":
		return strings.Contains(text, `"""`) || strings.Contains(text, "#")
	default:
		return strings.Contains(text, "/**") || strings.Contains(text, "//") || strings.Contains(text, "/*")
	}
}

// CodeSearchResult pairs a code memory with its similarity score for
// search_code/find_similar_code.
type CodeSearchResult struct {
	Memory *types.Memory
	Score  float64
}

// SearchCode implements search_code: retrieve CODE-category memories by
// similarity to query, then apply CodeSearchFilters (file pattern,
// complexity/line-count/modified bounds) and re-sort per SortBy.
func (c *CodeIndexer) SearchCode(ctx context.Context, query string, projectName string, filters types.CodeSearchFilters, limit int) ([]CodeSearchResult, error) {
	if limit <= 0 {
		limit = types.DefaultLimit
	}

	vector, err := c.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	storeFilters := storage.Filters{Category: types.CategoryCode, ProjectName: projectName}
	candidates, err := c.adapter.Retrieve(ctx, vector, storeFilters, limit*4)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "search_code: retrieve failed")
	}

	results := applyCodeFilters(candidates, filters)
	sortCodeResults(results, filters.SortBy, filters.SortOrder)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindSimilarCode implements find_similar_code: embed the code memory at
// memoryID and retrieve other CODE-category memories near it, excluding
// itself.
func (c *CodeIndexer) FindSimilarCode(ctx context.Context, memoryID string, limit int) ([]CodeSearchResult, error) {
	if limit <= 0 {
		limit = types.DefaultLimit
	}

	mem, err := c.adapter.GetByID(ctx, memoryID)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "find_similar_code: memory not found")
	}

	vector, err := c.embed(ctx, mem.Content)
	if err != nil {
		return nil, err
	}

	storeFilters := storage.Filters{Category: types.CategoryCode, ProjectName: mem.ProjectName}
	candidates, err := c.adapter.Retrieve(ctx, vector, storeFilters, limit+1)
	if err != nil {
		return nil, engineerr.FromSentinel(err, "find_similar_code: retrieve failed")
	}

	var out []CodeSearchResult
	for _, cand := range candidates {
		if cand.Memory.ID == memoryID {
			continue
		}
		out = append(out, CodeSearchResult{Memory: cand.Memory, Score: cand.Score})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func applyCodeFilters(candidates []storage.Scored, filters types.CodeSearchFilters) []CodeSearchResult {
	var out []CodeSearchResult
	for _, cand := range candidates {
		if filters.FilePattern != "" {
			path, _ := cand.Memory.Metadata["file_path"].(string)
			if matched, _ := filepath.Match(filters.FilePattern, path); !matched {
				continue
			}
		}
		if excludedByPattern(cand.Memory, filters.ExcludePatterns) {
			continue
		}
		complexity := metadataIntValue(cand.Memory.Metadata, "cyclomatic_complexity")
		if filters.ComplexityMin != nil && complexity < *filters.ComplexityMin {
			continue
		}
		if filters.ComplexityMax != nil && complexity > *filters.ComplexityMax {
			continue
		}
		lines := metadataIntValue(cand.Memory.Metadata, "line_count")
		if filters.LineCountMin != nil && lines < *filters.LineCountMin {
			continue
		}
		if filters.LineCountMax != nil && lines > *filters.LineCountMax {
			continue
		}
		if filters.ModifiedAfter != nil && !cand.Memory.UpdatedAt.After(*filters.ModifiedAfter) {
			continue
		}
		if filters.ModifiedBefore != nil && !cand.Memory.UpdatedAt.Before(*filters.ModifiedBefore) {
			continue
		}
		out = append(out, CodeSearchResult{Memory: cand.Memory, Score: cand.Score})
	}
	return out
}

func excludedByPattern(mem *types.Memory, patterns []string) bool {
	path, _ := mem.Metadata["file_path"].(string)
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, path); matched {
			return true
		}
	}
	return false
}

func metadataIntValue(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func sortCodeResults(results []CodeSearchResult, sortBy types.CodeSortField, sortOrder string) {
	var less func(i, j int) bool
	switch sortBy {
	case types.CodeSortComplexity:
		less = func(i, j int) bool {
			return metadataIntValue(results[i].Memory.Metadata, "cyclomatic_complexity") < metadataIntValue(results[j].Memory.Metadata, "cyclomatic_complexity")
		}
	case types.CodeSortSize:
		less = func(i, j int) bool {
			return metadataIntValue(results[i].Memory.Metadata, "line_count") < metadataIntValue(results[j].Memory.Metadata, "line_count")
		}
	case types.CodeSortRecency:
		less = func(i, j int) bool { return results[i].Memory.UpdatedAt.Before(results[j].Memory.UpdatedAt) }
	case types.CodeSortImportance:
		less = func(i, j int) bool { return results[i].Memory.Importance < results[j].Memory.Importance }
	default: // CodeSortRelevance, descending score by default
		less = func(i, j int) bool { return results[i].Score < results[j].Score }
	}

	// Relevance defaults to descending (best match first); every other
	// field defaults to ascending. An explicit sortOrder always wins.
	asc := sortBy != "" && sortBy != types.CodeSortRelevance
	switch sortOrder {
	case "asc":
		asc = true
	case "desc":
		asc = false
	}

	sort.SliceStable(results, func(i, j int) bool {
		if asc {
			return less(i, j)
		}
		return less(j, i)
	})
}
