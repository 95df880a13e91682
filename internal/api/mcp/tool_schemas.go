package mcp

// buildToolsList returns the JSON-schema tool descriptors for every
// operation dispatch() knows how to route (spec.md 6).
func (s *Server) buildToolsList() []MCPTool {
	obj := func(required []string, props map[string]interface{}) map[string]interface{} {
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	str := map[string]interface{}{"type": "string"}
	num := map[string]interface{}{"type": "number"}
	integer := map[string]interface{}{"type": "integer"}
	boolean := map[string]interface{}{"type": "boolean"}
	strArr := map[string]interface{}{"type": "array", "items": str}

	return []MCPTool{
		{
			Name:        "store_memory",
			Description: "Store a new memory with automatic classification and embedding.",
			InputSchema: obj([]string{"content"}, map[string]interface{}{
				"content": str, "category": str, "scope": str, "project_name": str,
				"importance": num, "tags": strArr, "metadata": map[string]interface{}{"type": "object"},
				"context_level": str,
			}),
		},
		{
			Name:        "retrieve_memories",
			Description: "Search memories by semantic similarity with optional filters.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{
				"query": str, "limit": integer, "context_level": str, "scope": str,
				"project_name": str, "category": str, "min_importance": num, "tags": strArr,
				"session_id": str, "advanced_filters": map[string]interface{}{"type": "object"},
			}),
		},
		{
			Name:        "retrieve_preferences",
			Description: "Search USER_PREFERENCE memories by semantic similarity.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{"query": str, "limit": integer, "project_name": str}),
		},
		{
			Name:        "retrieve_project_context",
			Description: "Search PROJECT_CONTEXT memories by semantic similarity.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{"query": str, "limit": integer, "project_name": str}),
		},
		{
			Name:        "retrieve_session_state",
			Description: "Search SESSION_STATE memories by semantic similarity.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{"query": str, "limit": integer, "session_id": str}),
		},
		{
			Name:        "get_memory_by_id",
			Description: "Fetch a single memory by its id.",
			InputSchema: obj([]string{"id"}, map[string]interface{}{"id": str}),
		},
		{
			Name:        "update_memory",
			Description: "Update one or more fields of an existing memory.",
			InputSchema: obj([]string{"id"}, map[string]interface{}{
				"id": str, "content": str, "category": str, "scope": str, "project_name": str,
				"importance": num, "tags": strArr, "metadata": map[string]interface{}{"type": "object"},
				"regenerate_embedding": boolean, "preserve_timestamps": boolean,
			}),
		},
		{
			Name:        "delete_memory",
			Description: "Delete a single memory by its id.",
			InputSchema: obj([]string{"id"}, map[string]interface{}{"id": str}),
		},
		{
			Name:        "delete_memories_by_query",
			Description: "Delete every memory matching a filter, with an optional dry run.",
			InputSchema: obj(nil, map[string]interface{}{
				"category": str, "scope": str, "project_name": str, "context_level": str,
				"tags": strArr, "min_importance": num, "session_id": str,
				"created_after": str, "created_before": str, "max_count": integer, "dry_run": boolean,
			}),
		},
		{
			Name:        "list_memories",
			Description: "Page through memories with sorting and filters, no similarity search.",
			InputSchema: obj(nil, map[string]interface{}{
				"page": integer, "limit": integer, "sort_by": str, "sort_order": str,
				"category": str, "scope": str, "project_name": str, "lifecycle_state": str,
				"min_importance": num, "created_after": str, "created_before": str, "include_deleted": boolean,
			}),
		},
		{
			Name:        "migrate_memory_scope",
			Description: "Move a memory to a different project.",
			InputSchema: obj([]string{"id", "project_name"}, map[string]interface{}{"id": str, "project_name": str}),
		},
		{
			Name:        "bulk_reclassify",
			Description: "Reclassify every matching memory from one context level to another.",
			InputSchema: obj([]string{"to_context_level"}, map[string]interface{}{
				"project_name": str, "category": str, "from_context_level": str, "to_context_level": str,
			}),
		},
		{
			Name:        "find_duplicate_memories",
			Description: "Cluster near-duplicate memories by semantic similarity.",
			InputSchema: obj(nil, map[string]interface{}{
				"project_name": str, "category": str, "scope": str, "threshold": num,
			}),
		},
		{
			Name:        "merge_memories",
			Description: "Merge several memories into one survivor per a merge strategy.",
			InputSchema: obj([]string{"memory_ids", "strategy"}, map[string]interface{}{
				"memory_ids": strArr, "keep_id": str, "strategy": str,
			}),
		},
		{
			Name:        "export_memories",
			Description: "Export memories matching a filter (or all memories) as a portable document.",
			InputSchema: obj(nil, map[string]interface{}{
				"category": str, "scope": str, "project_name": str, "context_level": str, "full": boolean,
			}),
		},
		{
			Name:        "import_memories",
			Description: "Import an export document, with a configurable conflict resolution mode.",
			InputSchema: obj([]string{"document"}, map[string]interface{}{
				"document": map[string]interface{}{"type": "object"}, "conflict_mode": str, "dry_run": boolean,
			}),
		},
		{
			Name:        "search_code",
			Description: "Search indexed code memories by semantic similarity with code-specific filters.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{
				"query": str, "project_name": str, "file_pattern": str, "exclude_patterns": strArr,
				"complexity_min": integer, "complexity_max": integer, "line_count_min": integer,
				"line_count_max": integer, "modified_after": str, "modified_before": str,
				"sort_by": str, "sort_order": str, "limit": integer,
			}),
		},
		{
			Name:        "find_similar_code",
			Description: "Find code memories similar to an already-indexed one.",
			InputSchema: obj([]string{"memory_id"}, map[string]interface{}{"memory_id": str, "limit": integer}),
		},
		{
			Name:        "index_codebase",
			Description: "Walk a directory tree and store one CODE memory per recognized source file.",
			InputSchema: obj([]string{"path", "project_name"}, map[string]interface{}{"path": str, "project_name": str}),
		},
		{
			Name:        "search_all_projects",
			Description: "Fan a query out to every project that has opted in to cross-project search.",
			InputSchema: obj([]string{"query"}, map[string]interface{}{
				"query": str, "limit": integer, "category": str, "context_level": str,
				"min_importance": num, "tags": strArr,
			}),
		},
		{
			Name:        "opt_in_cross_project",
			Description: "Opt a project in to being searched by search_all_projects.",
			InputSchema: obj([]string{"project_name"}, map[string]interface{}{"project_name": str}),
		},
		{
			Name:        "opt_out_cross_project",
			Description: "Opt a project out of search_all_projects.",
			InputSchema: obj([]string{"project_name"}, map[string]interface{}{"project_name": str}),
		},
		{
			Name:        "list_opted_in_projects",
			Description: "List every project currently opted in to cross-project search.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "get_performance_metrics",
			Description: "Return the engine's current performance counters and latency percentiles.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "get_health_score",
			Description: "Return a 0-100 health score, status bucket, and rule-based insights.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "get_active_alerts",
			Description: "Return the engine's currently active health insights as alerts.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "get_dashboard_stats",
			Description: "Return per-project memory counts and the overall health summary.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "get_weekly_report",
			Description: "Return a basic trailing-week report built from current health counters.",
			InputSchema: obj(nil, map[string]interface{}{}),
		},
		{
			Name:        "detect_contradictions",
			Description: "Run structural contradiction detection for a single memory id.",
			InputSchema: obj(nil, map[string]interface{}{"memory_id": str}),
		},
		{
			Name:        "get_related_memories",
			Description: "Traverse the shared-entity graph outward from a memory, bounded by hops/nodes, with per-result confidence.",
			InputSchema: obj([]string{"memory_id"}, map[string]interface{}{
				"memory_id": str, "max_hops": integer, "max_nodes": integer,
				"created_after": str, "created_before": str,
			}),
		},
	}
}
