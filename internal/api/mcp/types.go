// Package mcp implements the Model Context Protocol (MCP) server for the
// memory engine. It exposes the engine's operation surface (spec.md 6) as
// JSON-RPC 2.0 tools over stdio.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/scrypster/memento/internal/engine"
	"github.com/scrypster/memento/pkg/types"
)

// ---------------------------------------------------------------------------
// store_memory
// ---------------------------------------------------------------------------

// StoreMemoryArgs contains arguments for the store_memory tool.
type StoreMemoryArgs struct {
	Content      string                 `json:"content"`
	Category     string                 `json:"category,omitempty"`
	Scope        string                 `json:"scope,omitempty"`
	ProjectName  string                 `json:"project_name,omitempty"`
	Importance   float64                `json:"importance,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ContextLevel string                 `json:"context_level,omitempty"`
}

// UnmarshalJSON tolerates clients (e.g. Claude Code) that send "tags" as a
// JSON-encoded string ("[\"a\",\"b\"]") or a comma-separated string rather
// than a proper JSON array.
func (a *StoreMemoryArgs) UnmarshalJSON(data []byte) error {
	type Alias StoreMemoryArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Tags == nil {
		return nil
	}

	var tags []string
	if err := json.Unmarshal(aux.Tags, &tags); err == nil {
		a.Tags = tags
		return nil
	}

	var s string
	if err := json.Unmarshal(aux.Tags, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "["):
		_ = json.Unmarshal([]byte(s), &tags)
		a.Tags = tags
	case s != "":
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				a.Tags = append(a.Tags, t)
			}
		}
	}
	return nil
}

// StoreMemoryResult contains the result of storing a memory.
type StoreMemoryResult struct {
	ID           string `json:"id"`
	ContextLevel string `json:"context_level"`
}

// ---------------------------------------------------------------------------
// retrieve_memories / retrieve_preferences / retrieve_project_context /
// retrieve_session_state / search_all_projects
// ---------------------------------------------------------------------------

// AdvancedSearchFiltersArgs is the wire shape of types.AdvancedSearchFilters.
type AdvancedSearchFiltersArgs struct {
	CreatedAfter    string   `json:"created_after,omitempty"`
	CreatedBefore   string   `json:"created_before,omitempty"`
	UpdatedAfter    string   `json:"updated_after,omitempty"`
	UpdatedBefore   string   `json:"updated_before,omitempty"`
	AccessedAfter   string   `json:"accessed_after,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	TagMode         string   `json:"tag_mode,omitempty"`
	LifecycleStates []string `json:"lifecycle_states,omitempty"`
	ExcludeCategory []string `json:"exclude_category,omitempty"`
	ExcludeProject  []string `json:"exclude_project,omitempty"`
	MinTrustScore   float64  `json:"min_trust_score,omitempty"`
	ProvenanceSrc   []string `json:"provenance_source,omitempty"`
}

// RetrieveMemoriesArgs contains arguments for the retrieve_memories tool.
type RetrieveMemoriesArgs struct {
	Query           string                     `json:"query"`
	Limit           int                        `json:"limit,omitempty"`
	ContextLevel    string                     `json:"context_level,omitempty"`
	Scope           string                     `json:"scope,omitempty"`
	ProjectName     string                     `json:"project_name,omitempty"`
	Category        string                     `json:"category,omitempty"`
	MinImportance   float64                    `json:"min_importance,omitempty"`
	Tags            []string                   `json:"tags,omitempty"`
	SessionID       string                     `json:"session_id,omitempty"`
	AdvancedFilters *AdvancedSearchFiltersArgs `json:"advanced_filters,omitempty"`
}

// ScoredMemoryResult pairs a memory with its composite relevance score.
type ScoredMemoryResult struct {
	Memory *types.Memory `json:"memory"`
	Score  float64       `json:"score"`
}

// RetrieveMemoriesResult contains the result of retrieve_memories.
type RetrieveMemoriesResult struct {
	Results     []ScoredMemoryResult `json:"results"`
	TotalFound  int                  `json:"total_found"`
	QueryTimeMS int64                `json:"query_time_ms"`
	UsedCache   bool                 `json:"used_cache"`
}

// RetrievePreferencesArgs/RetrieveProjectContextArgs/RetrieveSessionStateArgs
// are thin wrappers over retrieve_memories with the context_level fixed
// (spec.md 4.8.2's context-level presets).
type RetrievePreferencesArgs struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

type RetrieveProjectContextArgs struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

type RetrieveSessionStateArgs struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SearchAllProjectsArgs contains arguments for search_all_projects. Unlike
// RetrieveMemoriesArgs, project_name is never accepted: every opted-in
// project is searched (spec.md 4.10).
type SearchAllProjectsArgs struct {
	Query         string   `json:"query"`
	Limit         int      `json:"limit,omitempty"`
	Category      string   `json:"category,omitempty"`
	ContextLevel  string   `json:"context_level,omitempty"`
	MinImportance float64  `json:"min_importance,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// SearchAllProjectsResult contains the result of search_all_projects.
type SearchAllProjectsResult struct {
	Results          []ProjectSearchHitResult `json:"results"`
	ProjectsSearched []string                 `json:"projects_searched"`
	FailedProjects   []ProjectSearchFailure   `json:"failed_projects,omitempty"`
	QueryTimeMS      int64                    `json:"query_time_ms"`
}

// ProjectSearchHitResult is one cross-project search hit.
type ProjectSearchHitResult struct {
	Project string        `json:"project"`
	Memory  *types.Memory `json:"memory"`
	Score   float64       `json:"score"`
}

// ProjectSearchFailure reports one project's fan-out failure.
type ProjectSearchFailure struct {
	Project string `json:"project"`
	Error   string `json:"error"`
}

// ---------------------------------------------------------------------------
// get_memory_by_id
// ---------------------------------------------------------------------------

type GetMemoryByIDArgs struct {
	ID string `json:"id"`
}

type GetMemoryByIDResult struct {
	Memory *types.Memory `json:"memory,omitempty"`
	Found  bool          `json:"found"`
}

// ---------------------------------------------------------------------------
// update_memory
// ---------------------------------------------------------------------------

// UpdateMemoryArgs contains arguments for the update_memory tool. Nil
// pointer fields (and a nil Tags/Metadata map) leave that field unchanged,
// matching engine.UpdateInput's semantics.
type UpdateMemoryArgs struct {
	ID                  string                 `json:"id"`
	Content             *string                `json:"content,omitempty"`
	Category            *string                `json:"category,omitempty"`
	Scope               *string                `json:"scope,omitempty"`
	ProjectName         *string                `json:"project_name,omitempty"`
	Importance          *float64               `json:"importance,omitempty"`
	Tags                []string               `json:"tags,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	RegenerateEmbedding bool                   `json:"regenerate_embedding,omitempty"`
	PreserveTimestamps  *bool                  `json:"preserve_timestamps,omitempty"`
}

type UpdateMemoryResult struct {
	Memory *types.Memory `json:"memory"`
}

// ---------------------------------------------------------------------------
// delete_memory / delete_memories_by_query
// ---------------------------------------------------------------------------

type DeleteMemoryArgs struct {
	ID string `json:"id"`
}

type DeleteMemoryResult struct {
	Status string `json:"status"`
}

// DeleteMemoriesByQueryArgs contains arguments for delete_memories_by_query.
type DeleteMemoriesByQueryArgs struct {
	Category      string   `json:"category,omitempty"`
	Scope         string   `json:"scope,omitempty"`
	ProjectName   string   `json:"project_name,omitempty"`
	ContextLevel  string   `json:"context_level,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	MinImportance float64  `json:"min_importance,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	CreatedAfter  string   `json:"created_after,omitempty"`
	CreatedBefore string   `json:"created_before,omitempty"`
	MaxCount      int      `json:"max_count,omitempty"`
	DryRun        bool     `json:"dry_run,omitempty"`
}

type DeleteMemoriesByQueryResult struct {
	Preview      bool           `json:"preview"`
	DeletedCount int            `json:"deleted_count"`
	TotalMatches int            `json:"total_matches"`
	ByProject    map[string]int `json:"by_project,omitempty"`
	ByCategory   map[string]int `json:"by_category,omitempty"`
	ByLifecycle  map[string]int `json:"by_lifecycle,omitempty"`
	Warning      string         `json:"warning,omitempty"`
}

// ---------------------------------------------------------------------------
// list_memories
// ---------------------------------------------------------------------------

type ListMemoriesArgs struct {
	Page           int    `json:"page,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	SortBy         string `json:"sort_by,omitempty"`
	SortOrder      string `json:"sort_order,omitempty"`
	Category       string `json:"category,omitempty"`
	Scope          string `json:"scope,omitempty"`
	ProjectName    string `json:"project_name,omitempty"`
	LifecycleState string `json:"lifecycle_state,omitempty"`
	MinImportance  float64 `json:"min_importance,omitempty"`
	CreatedAfter   string `json:"created_after,omitempty"`
	CreatedBefore  string `json:"created_before,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

type ListMemoriesResult struct {
	Memories      []types.Memory `json:"memories"`
	TotalCount    int            `json:"total_count"`
	ReturnedCount int            `json:"returned_count"`
	Offset        int            `json:"offset"`
	Limit         int            `json:"limit"`
	HasMore       bool           `json:"has_more"`
}

// ---------------------------------------------------------------------------
// migrate_memory_scope / bulk_reclassify
// ---------------------------------------------------------------------------

type MigrateMemoryScopeArgs struct {
	ID          string `json:"id"`
	ProjectName string `json:"project_name"`
}

type MigrateMemoryScopeResult struct {
	Memory *types.Memory `json:"memory"`
}

type BulkReclassifyArgs struct {
	ProjectName      string `json:"project_name,omitempty"`
	Category         string `json:"category,omitempty"`
	FromContextLevel string `json:"from_context_level,omitempty"`
	ToContextLevel   string `json:"to_context_level"`
}

type BulkReclassifyResult struct {
	MatchedCount int                          `json:"matched_count"`
	UpdatedCount int                          `json:"updated_count"`
	Errors       []engine.ReclassifyOutcome   `json:"errors,omitempty"`
}

// ---------------------------------------------------------------------------
// find_duplicate_memories / merge_memories
// ---------------------------------------------------------------------------

type FindDuplicateMemoriesArgs struct {
	ProjectName string  `json:"project_name,omitempty"`
	Category    string  `json:"category,omitempty"`
	Scope       string  `json:"scope,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// DuplicateMemberResult is one non-canonical member of a duplicate cluster.
type DuplicateMemberResult struct {
	ID                    string  `json:"id"`
	SimilarityToCanonical float64 `json:"similarity_to_canonical"`
}

// DuplicateClusterResult is one cluster returned by find_duplicate_memories.
type DuplicateClusterResult struct {
	CanonicalID       string                  `json:"canonical_id"`
	Members           []DuplicateMemberResult `json:"members"`
	AverageSimilarity float64                 `json:"average_similarity"`
	Size              int                     `json:"size"`
}

type FindDuplicateMemoriesResult struct {
	Clusters []DuplicateClusterResult `json:"clusters"`
	Total    int                     `json:"total"`
}

type MergeMemoriesArgs struct {
	MemoryIDs []string `json:"memory_ids"`
	KeepID    string   `json:"keep_id,omitempty"`
	Strategy  string   `json:"strategy"`
}

type MergeMemoriesResult struct {
	Memory *types.Memory `json:"memory"`
}

// ---------------------------------------------------------------------------
// export_memories / import_memories
// ---------------------------------------------------------------------------

type ExportMemoriesArgs struct {
	Category     string `json:"category,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ProjectName  string `json:"project_name,omitempty"`
	ContextLevel string `json:"context_level,omitempty"`
	Full         bool   `json:"full,omitempty"`
}

type ExportMemoriesResult struct {
	Document *engine.ExportDocument `json:"document"`
}

type ImportMemoriesArgs struct {
	Document     *engine.ExportDocument `json:"document"`
	ConflictMode string                 `json:"conflict_mode,omitempty"`
	DryRun       bool                   `json:"dry_run,omitempty"`
}

type ImportMemoriesResult struct {
	DryRun   bool                          `json:"dry_run"`
	Created  int                           `json:"created"`
	Updated  int                           `json:"updated"`
	Skipped  int                           `json:"skipped"`
	Errored  int                           `json:"errored"`
	Outcomes []engine.ImportRecordOutcome `json:"outcomes"`
}

// ---------------------------------------------------------------------------
// search_code / find_similar_code / index_codebase
// ---------------------------------------------------------------------------

type SearchCodeArgs struct {
	Query           string   `json:"query"`
	ProjectName     string   `json:"project_name,omitempty"`
	FilePattern     string   `json:"file_pattern,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	ComplexityMin   *int     `json:"complexity_min,omitempty"`
	ComplexityMax   *int     `json:"complexity_max,omitempty"`
	LineCountMin    *int     `json:"line_count_min,omitempty"`
	LineCountMax    *int     `json:"line_count_max,omitempty"`
	ModifiedAfter   string   `json:"modified_after,omitempty"`
	ModifiedBefore  string   `json:"modified_before,omitempty"`
	SortBy          string   `json:"sort_by,omitempty"`
	SortOrder       string   `json:"sort_order,omitempty"`
	Limit           int      `json:"limit,omitempty"`
}

type CodeSearchResultEntry struct {
	Memory *types.Memory `json:"memory"`
	Score  float64       `json:"score"`
}

type SearchCodeResult struct {
	Results []CodeSearchResultEntry `json:"results"`
}

type FindSimilarCodeArgs struct {
	MemoryID string `json:"memory_id"`
	Limit    int    `json:"limit,omitempty"`
}

type FindSimilarCodeResult struct {
	Results []CodeSearchResultEntry `json:"results"`
}

type IndexCodebaseArgs struct {
	Path        string `json:"path"`
	ProjectName string `json:"project_name"`
}

type IndexCodebaseResult struct {
	Indexed int                   `json:"indexed"`
	Skipped int                   `json:"skipped"`
	Files   []engine.IndexedFile `json:"files"`
}

// ---------------------------------------------------------------------------
// opt_in_cross_project / opt_out_cross_project / list_opted_in_projects
// ---------------------------------------------------------------------------

type OptInCrossProjectArgs struct {
	ProjectName string `json:"project_name"`
}

type OptInCrossProjectResult struct {
	ProjectName string `json:"project_name"`
	OptedIn     bool   `json:"opted_in"`
}

type OptOutCrossProjectArgs struct {
	ProjectName string `json:"project_name"`
}

type OptOutCrossProjectResult struct {
	ProjectName string `json:"project_name"`
	OptedIn     bool   `json:"opted_in"`
}

type ListOptedInProjectsResult struct {
	Projects []string `json:"projects"`
}

// ---------------------------------------------------------------------------
// get_performance_metrics / get_health_score / get_active_alerts /
// get_dashboard_stats / get_weekly_report
// ---------------------------------------------------------------------------

// PerformanceMetricsResult mirrors health.Snapshot for the wire.
type PerformanceMetricsResult struct {
	QueriesPerDay    map[string]int64 `json:"queries_per_day"`
	OperationCounts  map[string]int64 `json:"operation_counts"`
	SearchLatencyP50 float64          `json:"search_latency_p50_ms"`
	SearchLatencyP95 float64          `json:"search_latency_p95_ms"`
	SearchLatencyP99 float64          `json:"search_latency_p99_ms"`
	CacheHitRate     float64          `json:"cache_hit_rate"`
	ErrorRate        float64          `json:"error_rate"`
}

type GetHealthScoreResult struct {
	Score    int            `json:"score"`
	Status   string         `json:"status"`
	Insights []InsightEntry `json:"insights"`
}

// InsightEntry mirrors health.Insight for the wire.
type InsightEntry struct {
	Priority int    `json:"priority"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// GetActiveAlertsResult reframes health.Insights as "alerts" (spec.md 4.11:
// this engine computes insights fresh per call rather than persisting an
// alert store, so every current insight, of any kind, stands in for an
// alert).
type GetActiveAlertsResult struct {
	Alerts []InsightEntry `json:"alerts"`
}

type ProjectStatResult struct {
	ProjectName    string         `json:"project_name"`
	MemoryCount    int            `json:"memory_count"`
	CategoryCounts map[string]int `json:"category_counts"`
	AvgImportance  float64        `json:"avg_importance"`
	LastUpdatedAt  string         `json:"last_updated_at,omitempty"`
}

type GetDashboardStatsResult struct {
	TotalMemories int                 `json:"total_memories"`
	TotalProjects int                 `json:"total_projects"`
	HealthScore   int                 `json:"health_score"`
	HealthStatus  string              `json:"health_status"`
	Projects      []ProjectStatResult `json:"projects"`
}

type GetWeeklyReportResult struct {
	Status         string                    `json:"status"`
	Period         string                    `json:"period"`
	HealthScore    int                       `json:"health_score"`
	MetricsSummary PerformanceMetricsResult `json:"metrics_summary"`
	GeneratedBy    string                    `json:"generated_by"`
}

// ---------------------------------------------------------------------------
// JSON-RPC 2.0 envelope
// ---------------------------------------------------------------------------

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools/list / tools/call)
// ---------------------------------------------------------------------------

type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPServerCapabilities struct {
	Tools *MCPToolsCapability `json:"tools,omitempty"`
}

type MCPToolsCapability struct{}

type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type MCPToolCallContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError"`
}
