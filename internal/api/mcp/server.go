package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento/internal/connections"
	"github.com/scrypster/memento/internal/duplicate"
	"github.com/scrypster/memento/internal/engine"
	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// graphAdapter is the subset of storage.VectorStoreAdapter plus
// storage.GraphProvider get_related_memories needs: GetByID for temporal
// filtering and point lookup, GetRelatedMemories for adjacency. Any adapter
// implementing both satisfies engine's graphStore structurally.
type graphAdapter interface {
	storage.VectorStoreAdapter
	storage.GraphProvider
}

// consentRegistry is the subset of connections.Registry search_all_projects
// and opt_in/opt_out/list_opted_in_projects need.
type consentRegistry interface {
	OptIn(ctx context.Context, project string) error
	OptOut(ctx context.Context, project string) error
	OptedInProjects() []string
}

// Server implements the Model Context Protocol (MCP) over JSON-RPC 2.0 for
// the memory engine's full operation surface (spec.md 6).
type Server struct {
	adapter       storage.VectorStoreAdapter
	memory        *engine.MemoryService
	search        *engine.SearchOrchestrator
	contradiction *engine.ContradictionDetector
	duplicates    *duplicate.Detector
	relationships *duplicate.RelationshipDetector
	code          *engine.CodeIndexer
	registry      consentRegistry
	health        *health.Collector
	relStore      storage.RelationshipStore  // optional; nil when adapter doesn't implement it
	graph         *engine.GraphTraversal     // optional; nil when adapter doesn't implement storage.GraphProvider
	confidence    *engine.ConfidenceScorer

	sessionID string
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithContradictionDetector injects the structural contradiction detector.
func WithContradictionDetector(d *engine.ContradictionDetector) ServerOption {
	return func(s *Server) { s.contradiction = d }
}

// WithDuplicateDetector injects find_duplicate_memories's detector.
func WithDuplicateDetector(d *duplicate.Detector) ServerOption {
	return func(s *Server) { s.duplicates = d }
}

// WithRelationshipDetector injects store_memory's advisory relationship
// side-effect detector (spec.md 4.9).
func WithRelationshipDetector(d *duplicate.RelationshipDetector) ServerOption {
	return func(s *Server) { s.relationships = d }
}

// WithCodeIndexer injects search_code/find_similar_code/index_codebase.
func WithCodeIndexer(c *engine.CodeIndexer) ServerOption {
	return func(s *Server) { s.code = c }
}

// WithConnectionsRegistry injects the cross-project consent registry.
func WithConnectionsRegistry(r *connections.Registry) ServerOption {
	return func(s *Server) { s.registry = r }
}

// WithHealthCollector injects the metrics collector backing
// get_performance_metrics/get_health_score/get_active_alerts.
func WithHealthCollector(c *health.Collector) ServerOption {
	return func(s *Server) { s.health = c }
}

// NewServer builds an MCP Server around the engine's write/read services.
// adapter is also used directly for operations with no dedicated engine
// method (get_memory_by_id, get_dashboard_stats). Additional components are
// wired via options; an operation whose backing component was not supplied
// returns an error when called rather than panicking.
func NewServer(adapter storage.VectorStoreAdapter, memory *engine.MemoryService, search *engine.SearchOrchestrator, opts ...ServerOption) *Server {
	s := &Server{
		adapter:    adapter,
		memory:     memory,
		search:     search,
		confidence: engine.NewConfidenceScorer(adapter),
		sessionID:  uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if rs, ok := adapter.(storage.RelationshipStore); ok {
		s.relStore = rs
	}
	if ga, ok := adapter.(graphAdapter); ok {
		s.graph = engine.NewGraphTraversal(ga)
	}
	log.Printf("memento-mcp: session ID: %s", s.sessionID)
	return s
}

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	default:
		result, err = s.dispatch(ctx, req.Method, req.Params)
		if err != nil && isUnknownMethod(err) {
			return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
		}
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

type unknownMethodError struct{ method string }

func (e unknownMethodError) Error() string { return fmt.Sprintf("unknown method: %s", e.method) }

func isUnknownMethod(err error) bool {
	_, ok := err.(unknownMethodError)
	return ok
}

// handleInitialize implements the standard MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    MCPServerCapabilities{Tools: &MCPToolsCapability{}},
		ServerInfo:      MCPServerInfo{Name: "memento", Version: "2.0.0"},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate
// handler and wraps the result in the MCP content envelope.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	var rawParams interface{}
	if err := json.Unmarshal(argsJSON, &rawParams); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}

	result, handlerErr := s.dispatch(ctx, p.Name, rawParams)
	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

// dispatch routes an operation name to its handler. Shared by the native
// JSON-RPC method switch and the tools/call envelope.
func (s *Server) dispatch(ctx context.Context, name string, params interface{}) (interface{}, error) {
	switch name {
	case "store_memory":
		return s.handleStoreMemory(ctx, params)
	case "retrieve_memories":
		return s.handleRetrieveMemories(ctx, params)
	case "get_memory_by_id":
		return s.handleGetMemoryByID(ctx, params)
	case "update_memory":
		return s.handleUpdateMemory(ctx, params)
	case "delete_memory":
		return s.handleDeleteMemory(ctx, params)
	case "delete_memories_by_query":
		return s.handleDeleteMemoriesByQuery(ctx, params)
	case "list_memories":
		return s.handleListMemories(ctx, params)
	case "migrate_memory_scope":
		return s.handleMigrateMemoryScope(ctx, params)
	case "bulk_reclassify":
		return s.handleBulkReclassify(ctx, params)
	case "find_duplicate_memories":
		return s.handleFindDuplicateMemories(ctx, params)
	case "merge_memories":
		return s.handleMergeMemories(ctx, params)
	case "export_memories":
		return s.handleExportMemories(ctx, params)
	case "import_memories":
		return s.handleImportMemories(ctx, params)
	case "retrieve_preferences":
		return s.handleRetrievePreferences(ctx, params)
	case "retrieve_project_context":
		return s.handleRetrieveProjectContext(ctx, params)
	case "retrieve_session_state":
		return s.handleRetrieveSessionState(ctx, params)
	case "search_code":
		return s.handleSearchCode(ctx, params)
	case "find_similar_code":
		return s.handleFindSimilarCode(ctx, params)
	case "index_codebase":
		return s.handleIndexCodebase(ctx, params)
	case "search_all_projects":
		return s.handleSearchAllProjects(ctx, params)
	case "opt_in_cross_project":
		return s.handleOptInCrossProject(ctx, params)
	case "opt_out_cross_project":
		return s.handleOptOutCrossProject(ctx, params)
	case "list_opted_in_projects":
		return s.handleListOptedInProjects(ctx, params)
	case "get_performance_metrics":
		return s.handleGetPerformanceMetrics(ctx, params)
	case "get_health_score":
		return s.handleGetHealthScore(ctx, params)
	case "get_active_alerts":
		return s.handleGetActiveAlerts(ctx, params)
	case "get_dashboard_stats":
		return s.handleGetDashboardStats(ctx, params)
	case "get_weekly_report":
		return s.handleGetWeeklyReport(ctx, params)
	case "detect_contradictions":
		return s.handleDetectContradictions(ctx, params)
	case "get_related_memories":
		return s.handleGetRelatedMemories(ctx, params)
	default:
		return nil, unknownMethodError{method: name}
	}
}

// ---------------------------------------------------------------------------
// store_memory
// ---------------------------------------------------------------------------

func (s *Server) handleStoreMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args StoreMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.Content == "" {
		return nil, fmt.Errorf("content is required")
	}

	id, level, err := s.memory.StoreMemory(ctx, engine.StoreInput{
		Content:      args.Content,
		Category:     types.MemoryCategory(args.Category),
		Scope:        types.MemoryScope(args.Scope),
		ProjectName:  args.ProjectName,
		Importance:   args.Importance,
		Tags:         args.Tags,
		Metadata:     args.Metadata,
		ContextLevel: types.ContextLevel(args.ContextLevel),
	})
	if s.health != nil {
		s.health.RecordOperation("store_memory", err)
	}
	if err != nil {
		return nil, err
	}

	s.detectRelationshipsAsync(ctx, id)

	return &StoreMemoryResult{ID: id, ContextLevel: string(level)}, nil
}

// detectRelationshipsAsync runs three advisory relationship detectors
// (contradictions, duplicates, supersession) against a freshly stored
// memory and persists any hits, per spec.md 4.9: "For each new memory,
// computes ... All detections ... are advisory; they do not mutate the
// memories." It runs synchronously before store_memory returns. A detector
// or store error is silently discarded, never surfaced to the store_memory
// caller — this is a side effect, not part of store_memory's own result
// contract.
func (s *Server) detectRelationshipsAsync(ctx context.Context, memoryID string) {
	if s.relationships == nil || s.relStore == nil {
		return
	}
	mem, err := s.adapter.GetByID(ctx, memoryID)
	if err != nil {
		return
	}

	var found []types.MemoryRelationship
	if rels, err := s.relationships.DetectContradictions(ctx, mem, nil); err == nil {
		found = append(found, rels...)
	}
	if rels, err := s.relationships.DetectDuplicates(ctx, mem, 0); err == nil {
		found = append(found, rels...)
	}
	if rels, err := s.relationships.DetectSupersession(ctx, mem, nil); err == nil {
		found = append(found, rels...)
	}

	for i := range found {
		_ = s.relStore.CreateRelationship(ctx, &found[i])
	}
}

// ---------------------------------------------------------------------------
// retrieve_memories / retrieve_preferences / retrieve_project_context /
// retrieve_session_state
// ---------------------------------------------------------------------------

func buildQueryRequest(query string, limit int, contextLevel, scope, project, category string, minImportance float64, tags []string, sessionID string, adv *AdvancedSearchFiltersArgs) (types.QueryRequest, error) {
	req := types.QueryRequest{
		Query:         query,
		Limit:         limit,
		ContextLevel:  types.ContextLevel(contextLevel),
		Scope:         types.MemoryScope(scope),
		ProjectName:   project,
		Category:      types.MemoryCategory(category),
		MinImportance: minImportance,
		Tags:          tags,
		SessionID:     sessionID,
	}
	if adv != nil {
		af, err := adv.toTypes()
		if err != nil {
			return req, err
		}
		req.AdvancedFilters = af
	}
	return req, nil
}

func (a *AdvancedSearchFiltersArgs) toTypes() (*types.AdvancedSearchFilters, error) {
	out := &types.AdvancedSearchFilters{
		Tags:          a.Tags,
		TagMode:       types.TagMatchMode(a.TagMode),
		MinTrustScore: a.MinTrustScore,
	}
	var err error
	if out.CreatedAfter, err = parseOptionalTime(a.CreatedAfter); err != nil {
		return nil, err
	}
	if out.CreatedBefore, err = parseOptionalTime(a.CreatedBefore); err != nil {
		return nil, err
	}
	if out.UpdatedAfter, err = parseOptionalTime(a.UpdatedAfter); err != nil {
		return nil, err
	}
	if out.UpdatedBefore, err = parseOptionalTime(a.UpdatedBefore); err != nil {
		return nil, err
	}
	if out.AccessedAfter, err = parseOptionalTime(a.AccessedAfter); err != nil {
		return nil, err
	}
	for _, ls := range a.LifecycleStates {
		out.LifecycleStates = append(out.LifecycleStates, types.LifecycleState(ls))
	}
	for _, c := range a.ExcludeCategory {
		out.ExcludeCategory = append(out.ExcludeCategory, types.MemoryCategory(c))
	}
	out.ExcludeProject = a.ExcludeProject
	for _, p := range a.ProvenanceSrc {
		out.ProvenanceSrc = append(out.ProvenanceSrc, types.ProvenanceSource(p))
	}
	return out, nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func toScoredMemoryResults(scored []engine.ScoredMemory) []ScoredMemoryResult {
	out := make([]ScoredMemoryResult, 0, len(scored))
	for _, r := range scored {
		out = append(out, ScoredMemoryResult{Memory: r.Memory, Score: r.Score})
	}
	return out
}

func (s *Server) retrieve(ctx context.Context, req types.QueryRequest) (*RetrieveMemoriesResult, error) {
	result, err := s.search.RetrieveMemories(ctx, req)
	if err != nil {
		return nil, err
	}
	return &RetrieveMemoriesResult{
		Results:     toScoredMemoryResults(result.Results),
		TotalFound:  result.TotalFound,
		QueryTimeMS: result.QueryTimeMS,
		UsedCache:   result.UsedCache,
	}, nil
}

func (s *Server) handleRetrieveMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrieveMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	req, err := buildQueryRequest(args.Query, args.Limit, args.ContextLevel, args.Scope, args.ProjectName, args.Category, args.MinImportance, args.Tags, args.SessionID, args.AdvancedFilters)
	if err != nil {
		return nil, err
	}
	return s.retrieve(ctx, req)
}

func (s *Server) handleRetrievePreferences(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrievePreferencesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	req, _ := buildQueryRequest(args.Query, args.Limit, string(types.ContextUserPreference), "", args.ProjectName, "", 0, nil, "", nil)
	return s.retrieve(ctx, req)
}

func (s *Server) handleRetrieveProjectContext(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrieveProjectContextArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	req, _ := buildQueryRequest(args.Query, args.Limit, string(types.ContextProjectContext), "", args.ProjectName, "", 0, nil, "", nil)
	return s.retrieve(ctx, req)
}

func (s *Server) handleRetrieveSessionState(ctx context.Context, params interface{}) (interface{}, error) {
	var args RetrieveSessionStateArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	req, _ := buildQueryRequest(args.Query, args.Limit, string(types.ContextSessionState), "", "", "", 0, nil, args.SessionID, nil)
	return s.retrieve(ctx, req)
}

// ---------------------------------------------------------------------------
// get_memory_by_id
// ---------------------------------------------------------------------------

func (s *Server) handleGetMemoryByID(ctx context.Context, params interface{}) (interface{}, error) {
	var args GetMemoryByIDArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	mem, err := s.adapter.GetByID(ctx, args.ID)
	if err != nil {
		return &GetMemoryByIDResult{Found: false}, nil
	}
	return &GetMemoryByIDResult{Memory: mem, Found: true}, nil
}

// ---------------------------------------------------------------------------
// update_memory
// ---------------------------------------------------------------------------

func (s *Server) handleUpdateMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args UpdateMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.ID == "" {
		return nil, fmt.Errorf("id is required")
	}

	in := engine.UpdateInput{
		ID:                  args.ID,
		Content:             args.Content,
		Tags:                args.Tags,
		Metadata:            args.Metadata,
		Importance:          args.Importance,
		RegenerateEmbedding: args.RegenerateEmbedding,
		PreserveTimestamps:  args.PreserveTimestamps,
	}
	if args.Category != nil {
		c := types.MemoryCategory(*args.Category)
		in.Category = &c
	}
	if args.Scope != nil {
		sc := types.MemoryScope(*args.Scope)
		in.Scope = &sc
	}
	in.ProjectName = args.ProjectName

	mem, err := s.memory.UpdateMemory(ctx, in)
	if s.health != nil {
		s.health.RecordOperation("update_memory", err)
	}
	if err != nil {
		return nil, err
	}
	return &UpdateMemoryResult{Memory: mem}, nil
}

// ---------------------------------------------------------------------------
// delete_memory / delete_memories_by_query
// ---------------------------------------------------------------------------

func (s *Server) handleDeleteMemory(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	status, err := s.memory.DeleteMemory(ctx, args.ID)
	if s.health != nil {
		s.health.RecordOperation("delete_memory", err)
	}
	if err != nil {
		return nil, err
	}
	return &DeleteMemoryResult{Status: string(status)}, nil
}

func (s *Server) handleDeleteMemoriesByQuery(ctx context.Context, params interface{}) (interface{}, error) {
	var args DeleteMemoriesByQueryArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}

	createdAfter, err := parseOptionalTime(args.CreatedAfter)
	if err != nil {
		return nil, err
	}
	createdBefore, err := parseOptionalTime(args.CreatedBefore)
	if err != nil {
		return nil, err
	}

	filters := storage.Filters{
		Category:      types.MemoryCategory(args.Category),
		Scope:         types.MemoryScope(args.Scope),
		ProjectName:   args.ProjectName,
		ContextLevel:  types.ContextLevel(args.ContextLevel),
		Tags:          args.Tags,
		MinImportance: args.MinImportance,
		SessionID:     args.SessionID,
		CreatedAfter:  createdAfter,
		CreatedBefore: createdBefore,
	}

	result, err := s.memory.DeleteMemoriesByQuery(ctx, filters, args.MaxCount, args.DryRun)
	if s.health != nil {
		s.health.RecordOperation("delete_memories_by_query", err)
	}
	if err != nil {
		return nil, err
	}
	return &DeleteMemoriesByQueryResult{
		Preview:      result.Preview,
		DeletedCount: result.DeletedCount,
		TotalMatches: result.TotalMatches,
		ByProject:    result.Breakdown.ByProject,
		ByCategory:   result.Breakdown.ByCategory,
		ByLifecycle:  result.Breakdown.ByLifecycle,
		Warning:      result.Warning,
	}, nil
}

// ---------------------------------------------------------------------------
// list_memories
// ---------------------------------------------------------------------------

func (s *Server) handleListMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ListMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}

	createdAfter, err := parseOptionalTime(args.CreatedAfter)
	if err != nil {
		return nil, err
	}
	createdBefore, err := parseOptionalTime(args.CreatedBefore)
	if err != nil {
		return nil, err
	}

	opts := storage.ListOptions{
		Page: args.Page, Limit: args.Limit, SortBy: args.SortBy, SortOrder: args.SortOrder,
		Category: types.MemoryCategory(args.Category), Scope: types.MemoryScope(args.Scope),
		ProjectName: args.ProjectName, LifecycleState: types.LifecycleState(args.LifecycleState),
		MinImportance: args.MinImportance, CreatedAfter: createdAfter, CreatedBefore: createdBefore,
		IncludeDeleted: args.IncludeDeleted,
	}

	result, err := s.memory.ListMemories(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &ListMemoriesResult{
		Memories: result.Memories, TotalCount: result.TotalCount, ReturnedCount: result.ReturnedCount,
		Offset: result.Offset, Limit: result.Limit, HasMore: result.HasMore,
	}, nil
}

// ---------------------------------------------------------------------------
// migrate_memory_scope / bulk_reclassify
// ---------------------------------------------------------------------------

func (s *Server) handleMigrateMemoryScope(ctx context.Context, params interface{}) (interface{}, error) {
	var args MigrateMemoryScopeArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.ID == "" || args.ProjectName == "" {
		return nil, fmt.Errorf("id and project_name are required")
	}
	mem, err := s.memory.UpdateMemory(ctx, engine.UpdateInput{ID: args.ID, ProjectName: &args.ProjectName})
	if err != nil {
		return nil, err
	}
	return &MigrateMemoryScopeResult{Memory: mem}, nil
}

func (s *Server) handleBulkReclassify(ctx context.Context, params interface{}) (interface{}, error) {
	var args BulkReclassifyArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	result, err := s.memory.BulkReclassify(ctx, args.ProjectName, types.MemoryCategory(args.Category),
		types.ContextLevel(args.FromContextLevel), types.ContextLevel(args.ToContextLevel))
	if err != nil {
		return nil, err
	}
	return &BulkReclassifyResult{
		MatchedCount: result.MatchedCount,
		UpdatedCount: result.UpdatedCount,
		Errors:       result.Outcomes,
	}, nil
}

// ---------------------------------------------------------------------------
// find_duplicate_memories / merge_memories
// ---------------------------------------------------------------------------

func (s *Server) handleFindDuplicateMemories(ctx context.Context, params interface{}) (interface{}, error) {
	if s.duplicates == nil {
		return nil, fmt.Errorf("find_duplicate_memories: duplicate detector not configured")
	}
	var args FindDuplicateMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}

	filters := storage.Filters{
		Category:    types.MemoryCategory(args.Category),
		Scope:       types.MemoryScope(args.Scope),
		ProjectName: args.ProjectName,
	}
	clusters, err := s.duplicates.FindAllClusters(ctx, filters, args.Threshold)
	if err != nil {
		return nil, err
	}

	out := make([]DuplicateClusterResult, 0, len(clusters))
	for _, c := range clusters {
		members := make([]DuplicateMemberResult, 0, len(c.Members))
		for _, m := range c.Members {
			members = append(members, DuplicateMemberResult{ID: m.ID, SimilarityToCanonical: m.SimilarityToCanonical})
		}
		out = append(out, DuplicateClusterResult{
			CanonicalID: c.CanonicalID, Members: members,
			AverageSimilarity: c.AverageSimilarity, Size: c.Size,
		})
	}
	return &FindDuplicateMemoriesResult{Clusters: out, Total: len(out)}, nil
}

func (s *Server) handleMergeMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args MergeMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	mem, err := s.memory.MergeMemories(ctx, args.MemoryIDs, args.KeepID, types.MergeStrategy(args.Strategy))
	if s.health != nil {
		s.health.RecordOperation("merge_memories", err)
	}
	if err != nil {
		return nil, err
	}
	return &MergeMemoriesResult{Memory: mem}, nil
}

// ---------------------------------------------------------------------------
// export_memories / import_memories
// ---------------------------------------------------------------------------

func (s *Server) handleExportMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ExportMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	filters := storage.Filters{
		Category: types.MemoryCategory(args.Category), Scope: types.MemoryScope(args.Scope),
		ProjectName: args.ProjectName, ContextLevel: types.ContextLevel(args.ContextLevel),
	}
	doc, err := s.memory.ExportMemories(ctx, filters, args.Full)
	if err != nil {
		return nil, err
	}
	return &ExportMemoriesResult{Document: doc}, nil
}

func (s *Server) handleImportMemories(ctx context.Context, params interface{}) (interface{}, error) {
	var args ImportMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.Document == nil {
		return nil, fmt.Errorf("document is required")
	}
	mode := engine.ConflictMode(args.ConflictMode)
	if mode == "" {
		mode = engine.ConflictSkip
	}
	result, err := s.memory.ImportMemories(ctx, args.Document, mode, args.DryRun)
	if err != nil {
		return nil, err
	}
	return &ImportMemoriesResult{
		DryRun: result.DryRun, Created: result.Created, Updated: result.Updated,
		Skipped: result.Skipped, Errored: result.Errored, Outcomes: result.Outcomes,
	}, nil
}

// ---------------------------------------------------------------------------
// search_code / find_similar_code / index_codebase
// ---------------------------------------------------------------------------

func toCodeResultEntries(results []engine.CodeSearchResult) []CodeSearchResultEntry {
	out := make([]CodeSearchResultEntry, 0, len(results))
	for _, r := range results {
		out = append(out, CodeSearchResultEntry{Memory: r.Memory, Score: r.Score})
	}
	return out
}

func (s *Server) handleSearchCode(ctx context.Context, params interface{}) (interface{}, error) {
	if s.code == nil {
		return nil, fmt.Errorf("search_code: code indexer not configured")
	}
	var args SearchCodeArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}

	filters := types.CodeSearchFilters{
		FilePattern: args.FilePattern, ExcludePatterns: args.ExcludePatterns,
		ComplexityMin: args.ComplexityMin, ComplexityMax: args.ComplexityMax,
		LineCountMin: args.LineCountMin, LineCountMax: args.LineCountMax,
		SortBy: types.CodeSortField(args.SortBy), SortOrder: args.SortOrder,
	}
	if args.ModifiedAfter != "" {
		t, err := parseOptionalTime(args.ModifiedAfter)
		if err != nil {
			return nil, err
		}
		filters.ModifiedAfter = &t
	}
	if args.ModifiedBefore != "" {
		t, err := parseOptionalTime(args.ModifiedBefore)
		if err != nil {
			return nil, err
		}
		filters.ModifiedBefore = &t
	}

	results, err := s.code.SearchCode(ctx, args.Query, args.ProjectName, filters, args.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchCodeResult{Results: toCodeResultEntries(results)}, nil
}

func (s *Server) handleFindSimilarCode(ctx context.Context, params interface{}) (interface{}, error) {
	if s.code == nil {
		return nil, fmt.Errorf("find_similar_code: code indexer not configured")
	}
	var args FindSimilarCodeArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	results, err := s.code.FindSimilarCode(ctx, args.MemoryID, args.Limit)
	if err != nil {
		return nil, err
	}
	return &FindSimilarCodeResult{Results: toCodeResultEntries(results)}, nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, params interface{}) (interface{}, error) {
	if s.code == nil {
		return nil, fmt.Errorf("index_codebase: code indexer not configured")
	}
	var args IndexCodebaseArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.Path == "" || args.ProjectName == "" {
		return nil, fmt.Errorf("path and project_name are required")
	}
	result, err := s.code.IndexCodebase(ctx, args.Path, args.ProjectName)
	if s.health != nil {
		s.health.RecordOperation("index_codebase", err)
	}
	if err != nil {
		return nil, err
	}
	return &IndexCodebaseResult{Indexed: result.Indexed, Skipped: result.Skipped, Files: result.Files}, nil
}

// ---------------------------------------------------------------------------
// search_all_projects / opt_in / opt_out / list_opted_in_projects
// ---------------------------------------------------------------------------

func (s *Server) handleSearchAllProjects(ctx context.Context, params interface{}) (interface{}, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("search_all_projects: cross-project registry not configured")
	}
	var args SearchAllProjectsArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	req, _ := buildQueryRequest(args.Query, args.Limit, args.ContextLevel, "", "", args.Category, args.MinImportance, args.Tags, "", nil)

	result, err := s.search.SearchAllProjects(ctx, s.registry, req)
	if err != nil {
		if s.health != nil {
			s.health.RecordOperation("search_all_projects", err)
		}
		return nil, err
	}
	if s.health != nil {
		s.health.RecordQuery("search_all_projects", result.QueryTimeMS, false, nil)
	}

	hits := make([]ProjectSearchHitResult, 0, len(result.Results))
	for _, h := range result.Results {
		hits = append(hits, ProjectSearchHitResult{Project: h.Project, Memory: h.Memory, Score: h.Score})
	}
	failed := make([]ProjectSearchFailure, 0, len(result.FailedProjects))
	for _, f := range result.FailedProjects {
		failed = append(failed, ProjectSearchFailure{Project: f.Project, Error: f.Error})
	}
	return &SearchAllProjectsResult{
		Results: hits, ProjectsSearched: result.ProjectsSearched,
		FailedProjects: failed, QueryTimeMS: result.QueryTimeMS,
	}, nil
}

func (s *Server) handleOptInCrossProject(ctx context.Context, params interface{}) (interface{}, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("opt_in_cross_project: cross-project registry not configured")
	}
	var args OptInCrossProjectArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if err := s.registry.OptIn(ctx, args.ProjectName); err != nil {
		return nil, err
	}
	return &OptInCrossProjectResult{ProjectName: args.ProjectName, OptedIn: true}, nil
}

func (s *Server) handleOptOutCrossProject(ctx context.Context, params interface{}) (interface{}, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("opt_out_cross_project: cross-project registry not configured")
	}
	var args OptOutCrossProjectArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if err := s.registry.OptOut(ctx, args.ProjectName); err != nil {
		return nil, err
	}
	return &OptOutCrossProjectResult{ProjectName: args.ProjectName, OptedIn: false}, nil
}

func (s *Server) handleListOptedInProjects(ctx context.Context, params interface{}) (interface{}, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("list_opted_in_projects: cross-project registry not configured")
	}
	projects := s.registry.OptedInProjects()
	sort.Strings(projects)
	return &ListOptedInProjectsResult{Projects: projects}, nil
}

// ---------------------------------------------------------------------------
// get_performance_metrics / get_health_score / get_active_alerts /
// get_dashboard_stats / get_weekly_report
// ---------------------------------------------------------------------------

func toPerformanceMetrics(snap health.Snapshot) PerformanceMetricsResult {
	return PerformanceMetricsResult{
		QueriesPerDay: snap.QueriesPerDay, OperationCounts: snap.OperationCounts,
		SearchLatencyP50: snap.SearchLatencyP50, SearchLatencyP95: snap.SearchLatencyP95,
		SearchLatencyP99: snap.SearchLatencyP99, CacheHitRate: snap.CacheHitRate, ErrorRate: snap.ErrorRate,
	}
}

func toInsightEntries(insights []health.Insight) []InsightEntry {
	out := make([]InsightEntry, 0, len(insights))
	for _, i := range insights {
		out = append(out, InsightEntry{Priority: i.Priority, Kind: i.Kind, Message: i.Message})
	}
	return out
}

func (s *Server) handleGetPerformanceMetrics(ctx context.Context, params interface{}) (interface{}, error) {
	if s.health == nil {
		return nil, fmt.Errorf("get_performance_metrics: metrics collector not configured")
	}
	return toPerformanceMetrics(s.health.Snapshot()), nil
}

func (s *Server) handleGetHealthScore(ctx context.Context, params interface{}) (interface{}, error) {
	if s.health == nil {
		return nil, fmt.Errorf("get_health_score: metrics collector not configured")
	}
	snap := s.health.Snapshot()
	score := health.Score(snap)
	insights := health.Insights(ctx, snap, score, s.adapter, time.Now())
	return &GetHealthScoreResult{Score: score, Status: string(health.StatusFor(score)), Insights: toInsightEntries(insights)}, nil
}

// handleGetActiveAlerts reframes health.Insights as "alerts": this engine
// computes insights fresh per call rather than persisting an alert store
// (spec.md 4.11), so every current insight stands in for an active alert.
func (s *Server) handleGetActiveAlerts(ctx context.Context, params interface{}) (interface{}, error) {
	if s.health == nil {
		return nil, fmt.Errorf("get_active_alerts: metrics collector not configured")
	}
	snap := s.health.Snapshot()
	score := health.Score(snap)
	insights := health.Insights(ctx, snap, score, s.adapter, time.Now())
	return &GetActiveAlertsResult{Alerts: toInsightEntries(insights)}, nil
}

func (s *Server) handleGetDashboardStats(ctx context.Context, params interface{}) (interface{}, error) {
	projects, err := s.adapter.GetAllProjects(ctx)
	if err != nil {
		return nil, err
	}

	var total int
	out := make([]ProjectStatResult, 0, len(projects))
	for _, p := range projects {
		stats, err := s.adapter.GetProjectStats(ctx, p)
		if err != nil {
			continue
		}
		total += stats.MemoryCount
		entry := ProjectStatResult{
			ProjectName: stats.ProjectName, MemoryCount: stats.MemoryCount,
			CategoryCounts: stats.CategoryCounts, AvgImportance: stats.AvgImportance,
		}
		if !stats.LastUpdatedAt.IsZero() {
			entry.LastUpdatedAt = stats.LastUpdatedAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}

	result := &GetDashboardStatsResult{TotalMemories: total, TotalProjects: len(projects), Projects: out}
	if s.health != nil {
		snap := s.health.Snapshot()
		result.HealthScore = health.Score(snap)
		result.HealthStatus = string(health.StatusFor(result.HealthScore))
	}
	return result, nil
}

// handleGetWeeklyReport builds a "basic" report from the in-process health
// snapshot: no scheduled report generation or persisted history backs this,
// so every call recomputes it fresh from current counters.
func (s *Server) handleGetWeeklyReport(ctx context.Context, params interface{}) (interface{}, error) {
	if s.health == nil {
		return nil, fmt.Errorf("get_weekly_report: metrics collector not configured")
	}
	snap := s.health.Snapshot()
	score := health.Score(snap)
	now := time.Now()
	return &GetWeeklyReportResult{
		Status:         "basic",
		Period:         fmt.Sprintf("%s/%s", now.AddDate(0, 0, -7).Format("2006-01-02"), now.Format("2006-01-02")),
		HealthScore:    score,
		MetricsSummary: toPerformanceMetrics(snap),
		GeneratedBy:    "health_collector_snapshot",
	}, nil
}

// ---------------------------------------------------------------------------
// detect_contradictions (kept as a directly callable diagnostic; not part
// of spec.md 6's named surface, but exercises ContradictionDetector, which
// would otherwise be unreachable from any operation)
// ---------------------------------------------------------------------------

type DetectContradictionsArgs struct {
	MemoryID string `json:"memory_id,omitempty"`
}

type DetectContradictionsResult struct {
	Contradictions []engine.Contradiction `json:"contradictions"`
}

func (s *Server) handleDetectContradictions(ctx context.Context, params interface{}) (interface{}, error) {
	if s.contradiction == nil {
		return nil, fmt.Errorf("detect_contradictions: contradiction detector not configured")
	}
	var args DetectContradictionsArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	contradictions, err := s.contradiction.DetectContradictions(ctx, args.MemoryID)
	if err != nil {
		return nil, err
	}
	return &DetectContradictionsResult{Contradictions: contradictions}, nil
}

// ---------------------------------------------------------------------------
// get_related_memories (kept as a directly callable diagnostic; not part of
// spec.md 6's named surface, but exercises GraphTraversal and
// ConfidenceScorer, which would otherwise be unreachable from any operation)
// ---------------------------------------------------------------------------

// GetRelatedMemoriesArgs is get_related_memories's wire argument shape.
type GetRelatedMemoriesArgs struct {
	MemoryID      string `json:"memory_id"`
	MaxHops       int    `json:"max_hops,omitempty"`
	MaxNodes      int    `json:"max_nodes,omitempty"`
	CreatedAfter  string `json:"created_after,omitempty"`
	CreatedBefore string `json:"created_before,omitempty"`
}

// RelatedMemoryEntry pairs a related memory with its current confidence.
type RelatedMemoryEntry struct {
	MemoryID   string        `json:"memory_id"`
	Memory     *types.Memory `json:"memory,omitempty"`
	Confidence float64       `json:"confidence"`
}

// GetRelatedMemoriesResult is get_related_memories's response shape.
type GetRelatedMemoriesResult struct {
	Related   []RelatedMemoryEntry `json:"related"`
	Truncated bool                 `json:"truncated"`
}

func (s *Server) handleGetRelatedMemories(ctx context.Context, params interface{}) (interface{}, error) {
	if s.graph == nil {
		return nil, fmt.Errorf("get_related_memories: graph provider not configured")
	}
	var args GetRelatedMemoriesArgs
	if err := s.unmarshalParams(params, &args); err != nil {
		return nil, err
	}
	if args.MemoryID == "" {
		return nil, fmt.Errorf("memory_id is required")
	}

	bounds := storage.GraphBounds{MaxHops: args.MaxHops, MaxNodes: args.MaxNodes}
	createdAfter, err := parseOptionalTime(args.CreatedAfter)
	if err != nil {
		return nil, err
	}
	bounds.CreatedAfter = createdAfter
	createdBefore, err := parseOptionalTime(args.CreatedBefore)
	if err != nil {
		return nil, err
	}
	bounds.CreatedBefore = createdBefore

	ids, err := s.graph.FindRelatedBounded(ctx, args.MemoryID, bounds)
	truncated := false
	if err != nil {
		if errors.Is(err, engineerr.ErrBoundsExceeded) {
			truncated = true
		} else {
			return nil, err
		}
	}

	entries := make([]RelatedMemoryEntry, 0, len(ids))
	for _, id := range ids {
		mem, memErr := s.adapter.GetByID(ctx, id)
		if memErr != nil {
			continue
		}
		confidence := 0.5
		if s.confidence != nil {
			if c, confErr := s.confidence.GetConfidence(ctx, id); confErr == nil {
				confidence = c
			}
		}
		entries = append(entries, RelatedMemoryEntry{MemoryID: id, Memory: mem, Confidence: confidence})
	}

	return &GetRelatedMemoriesResult{Related: entries, Truncated: truncated}, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Error: &JSONRPCError{Code: code, Message: message, Data: data}, ID: id})
}
