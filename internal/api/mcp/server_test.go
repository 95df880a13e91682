package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/connections"
	"github.com/scrypster/memento/internal/duplicate"
	"github.com/scrypster/memento/internal/embedcache"
	"github.com/scrypster/memento/internal/engine"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/session"
	"github.com/scrypster/memento/internal/storage/sqlite"
	"github.com/scrypster/memento/internal/tracing"

	"github.com/prometheus/client_golang/prometheus"
)

// fakeEmbedder deterministically fingerprints text into a short vector so
// retrieval tests can reason about similarity without a real model. It
// satisfies both llm.EmbeddingGenerator and embedcache.Generator.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum, sum / 2, 1}, nil
}

func (fakeEmbedder) GetModel() string { return "fake-test-model" }

// testServer builds a fully wired Server backed by an in-memory SQLite
// store, exercising the same construction path as cmd/memento-mcp.
func testServer(t *testing.T) *mcp.Server {
	t.Helper()
	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache, err := embedcache.New(store.DB(), 100, time.Hour)
	require.NoError(t, err)

	logger := tracing.New("error")
	embedder := fakeEmbedder{}

	memSvc := engine.NewMemoryService(store, embedder, cache, logger, false)
	searchOrch := engine.NewSearchOrchestrator(store, embedder, cache, session.New(time.Hour), logger)

	reg := prometheus.NewRegistry()
	collector := health.NewCollector(reg)
	searchOrch.Metrics = collector

	registry, err := connections.NewRegistry(t.TempDir()+"/connections.yaml", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	return mcp.NewServer(store, memSvc, searchOrch,
		mcp.WithContradictionDetector(engine.NewContradictionDetector(store)),
		mcp.WithDuplicateDetector(duplicate.NewDetector(store, embedder, duplicate.DefaultThresholds)),
		mcp.WithRelationshipDetector(duplicate.NewRelationshipDetector(store, embedder)),
		mcp.WithCodeIndexer(engine.NewCodeIndexer(store, embedder, logger, false)),
		mcp.WithConnectionsRegistry(registry),
		mcp.WithHealthCollector(collector),
	)
}

// testServerMinimal builds a Server with no optional components wired, to
// exercise the "not configured" error branches.
func testServerMinimal(t *testing.T) *mcp.Server {
	t.Helper()
	store, err := sqlite.NewMemoryStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache, err := embedcache.New(store.DB(), 100, time.Hour)
	require.NoError(t, err)

	logger := tracing.New("error")
	embedder := fakeEmbedder{}
	memSvc := engine.NewMemoryService(store, embedder, cache, logger, false)
	searchOrch := engine.NewSearchOrchestrator(store, embedder, cache, session.New(time.Hour), logger)

	return mcp.NewServer(store, memSvc, searchOrch)
}

func rpcCall(t *testing.T, srv *mcp.Server, method string, params interface{}) map[string]interface{} {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}
	reqJSON, err := json.Marshal(req)
	require.NoError(t, err)

	respJSON, err := srv.HandleRequest(context.Background(), reqJSON)
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(respJSON, &resp))
	return resp
}

func dispatchCall(t *testing.T, srv *mcp.Server, name string, args interface{}) map[string]interface{} {
	t.Helper()
	resp := rpcCall(t, srv, name, args)
	return resp
}

func TestHandleRequest_Initialize(t *testing.T) {
	srv := testServer(t)
	resp := rpcCall(t, srv, "initialize", map[string]interface{}{})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	serverInfo := result["serverInfo"].(map[string]interface{})
	assert.Equal(t, "memento", serverInfo["name"])
}

func TestHandleRequest_ToolsList(t *testing.T) {
	srv := testServer(t)
	resp := rpcCall(t, srv, "tools/list", map[string]interface{}{})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	tools, ok := result["tools"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, tools)
}

func TestHandleRequest_InvalidJSONRPCVersion(t *testing.T) {
	srv := testServer(t)
	reqJSON, _ := json.Marshal(map[string]interface{}{"jsonrpc": "1.0", "method": "initialize", "id": 1})
	respJSON, err := srv.HandleRequest(context.Background(), reqJSON)
	require.NoError(t, err)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(respJSON, &resp))
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(-32600), errObj["code"])
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	srv := testServer(t)
	resp := rpcCall(t, srv, "not_a_real_method", map[string]interface{}{})
	errObj := resp["error"].(map[string]interface{})
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestDispatch_StoreMemory(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "store_memory", map[string]interface{}{
		"content":       "the deploy pipeline retries three times before paging oncall",
		"category":      "WORKFLOW",
		"scope":         "PROJECT",
		"project_name":  "infra",
		"importance":    0.7,
		"tags":          []string{"deploy", "oncall"},
		"context_level": "PROJECT_CONTEXT",
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.NotEmpty(t, result["id"])
	assert.Equal(t, "PROJECT_CONTEXT", result["context_level"])
}

func TestDispatch_StoreMemory_TagsAsCommaString(t *testing.T) {
	srv := testServer(t)
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "store_memory",
		"id":      1,
		"params": map[string]interface{}{
			"content":      "prefers tabs over spaces",
			"category":     "PREFERENCE",
			"scope":        "GLOBAL",
			"tags":         "style, editor",
		},
	}
	reqJSON, _ := json.Marshal(req)
	respJSON, err := srv.HandleRequest(context.Background(), reqJSON)
	require.NoError(t, err)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(respJSON, &resp))
	require.Nil(t, resp["error"])
}

func TestDispatch_StoreMemory_RequiresContent(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "store_memory", map[string]interface{}{
		"category": "FACT",
		"scope":    "GLOBAL",
	})
	require.NotNil(t, resp["error"])
}

func TestDispatch_StoreMemory_ProjectScopeRequiresProjectName(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "store_memory", map[string]interface{}{
		"content":  "missing its project name",
		"category": "FACT",
		"scope":    "PROJECT",
	})
	require.NotNil(t, resp["error"])
}

func storeOne(t *testing.T, srv *mcp.Server, content, category, scope, project string) string {
	t.Helper()
	args := map[string]interface{}{
		"content":  content,
		"category": category,
		"scope":    scope,
	}
	if project != "" {
		args["project_name"] = project
	}
	resp := dispatchCall(t, srv, "store_memory", args)
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	return result["id"].(string)
}

func TestDispatch_GetMemoryByID(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "the release train cuts every other tuesday", "WORKFLOW", "GLOBAL", "")

	resp := dispatchCall(t, srv, "get_memory_by_id", map[string]interface{}{"id": id})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.True(t, result["found"].(bool))
	mem := result["memory"].(map[string]interface{})
	assert.Equal(t, id, mem["id"])
}

func TestDispatch_GetMemoryByID_NotFound(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "get_memory_by_id", map[string]interface{}{"id": "mem:does-not-exist"})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.False(t, result["found"].(bool))
}

func TestDispatch_UpdateMemory(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "the staging database resets nightly", "FACT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "update_memory", map[string]interface{}{
		"id":         id,
		"importance": 0.9,
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	mem := result["memory"].(map[string]interface{})
	assert.Equal(t, 0.9, mem["importance"])
}

func TestDispatch_UpdateMemory_RequiresID(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "update_memory", map[string]interface{}{})
	require.NotNil(t, resp["error"])
}

func TestDispatch_DeleteMemory(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "temporary scratch note", "CONTEXT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "delete_memory", map[string]interface{}{"id": id})
	require.Nil(t, resp["error"])

	getResp := dispatchCall(t, srv, "get_memory_by_id", map[string]interface{}{"id": id})
	result := getResp["result"].(map[string]interface{})
	assert.False(t, result["found"].(bool))
}

func TestDispatch_DeleteMemoriesByQuery_DryRun(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "first scratch note", "CONTEXT", "PROJECT", "widget")
	storeOne(t, srv, "second scratch note", "CONTEXT", "PROJECT", "widget")

	resp := dispatchCall(t, srv, "delete_memories_by_query", map[string]interface{}{
		"project_name": "widget",
		"dry_run":      true,
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.True(t, result["preview"].(bool))
	assert.Equal(t, float64(2), result["total_matches"])
	assert.Equal(t, float64(0), result["deleted_count"])
}

func TestDispatch_ListMemories(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "one memory about widgets", "FACT", "PROJECT", "widget")
	storeOne(t, srv, "another memory about widgets", "FACT", "PROJECT", "widget")

	resp := dispatchCall(t, srv, "list_memories", map[string]interface{}{
		"project_name": "widget",
		"limit":        10,
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, float64(2), result["total_count"])
}

func TestDispatch_MigrateMemoryScope(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "a global note that will move projects", "FACT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "migrate_memory_scope", map[string]interface{}{
		"id":           id,
		"project_name": "gadget",
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	mem := result["memory"].(map[string]interface{})
	assert.Equal(t, "gadget", mem["project_name"])
}

func TestDispatch_BulkReclassify(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "a preference that should move tiers", "PREFERENCE", "GLOBAL", "")

	resp := dispatchCall(t, srv, "bulk_reclassify", map[string]interface{}{
		"category":          "PREFERENCE",
		"to_context_level":  "USER_PREFERENCE",
	})
	require.Nil(t, resp["error"])
}

func TestDispatch_RetrieveMemories(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "the deploy pipeline retries three times", "WORKFLOW", "PROJECT", "infra")

	resp := dispatchCall(t, srv, "retrieve_memories", map[string]interface{}{
		"query":        "deploy pipeline",
		"project_name": "infra",
		"limit":        5,
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.Contains(t, result, "total_found")
}

func TestDispatch_RetrievePreferences(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "prefers dark mode everywhere", "PREFERENCE", "GLOBAL", "")

	resp := dispatchCall(t, srv, "retrieve_preferences", map[string]interface{}{
		"query": "dark mode",
	})
	require.Nil(t, resp["error"])
}

func TestDispatch_RetrieveProjectContext(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "the service runs on port 8080", "CONTEXT", "PROJECT", "infra")

	resp := dispatchCall(t, srv, "retrieve_project_context", map[string]interface{}{
		"query":        "port",
		"project_name": "infra",
	})
	require.Nil(t, resp["error"])
}

func TestDispatch_RetrieveSessionState(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "retrieve_session_state", map[string]interface{}{
		"query":      "current task",
		"session_id": "sess-1",
	})
	require.Nil(t, resp["error"])
}

func TestDispatch_FindDuplicateMemories(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "identical content for dedup", "FACT", "GLOBAL", "")
	storeOne(t, srv, "identical content for dedup", "FACT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "find_duplicate_memories", map[string]interface{}{
		"threshold": 0.5,
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.Contains(t, result, "clusters")
}

func TestDispatch_FindDuplicateMemories_NotConfigured(t *testing.T) {
	srv := testServerMinimal(t)
	resp := dispatchCall(t, srv, "find_duplicate_memories", map[string]interface{}{})
	require.NotNil(t, resp["error"])
}

func TestDispatch_MergeMemories(t *testing.T) {
	srv := testServer(t)
	id1 := storeOne(t, srv, "memory A about the outage", "EVENT", "GLOBAL", "")
	id2 := storeOne(t, srv, "memory B about the same outage", "EVENT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "merge_memories", map[string]interface{}{
		"memory_ids": []string{id1, id2},
		"keep_id":    id1,
		"strategy":   "USER_SELECTED",
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.Contains(t, result, "memory")
}

func TestDispatch_ExportImportMemories(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "exportable memory one", "FACT", "GLOBAL", "")

	exportResp := dispatchCall(t, srv, "export_memories", map[string]interface{}{"full": true})
	require.Nil(t, exportResp["error"])
	exportResult := exportResp["result"].(map[string]interface{})
	doc := exportResult["document"]
	require.NotNil(t, doc)

	importResp := dispatchCall(t, srv, "import_memories", map[string]interface{}{
		"document":      doc,
		"conflict_mode": "SKIP",
		"dry_run":       true,
	})
	require.Nil(t, importResp["error"])
	importResult := importResp["result"].(map[string]interface{})
	assert.True(t, importResult["dry_run"].(bool))
}

func TestDispatch_ImportMemories_RequiresDocument(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "import_memories", map[string]interface{}{})
	require.NotNil(t, resp["error"])
}

func TestDispatch_IndexCodebaseAndSearchCode(t *testing.T) {
	srv := testServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/main.go", []byte("package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n"), 0o644))

	indexResp := dispatchCall(t, srv, "index_codebase", map[string]interface{}{
		"path":         dir,
		"project_name": "codetest",
	})
	require.Nil(t, indexResp["error"])

	searchResp := dispatchCall(t, srv, "search_code", map[string]interface{}{
		"query":        "hello",
		"project_name": "codetest",
	})
	require.Nil(t, searchResp["error"])
}

func TestDispatch_SearchCode_NotConfigured(t *testing.T) {
	srv := testServerMinimal(t)
	resp := dispatchCall(t, srv, "search_code", map[string]interface{}{"query": "anything"})
	require.NotNil(t, resp["error"])
}

func TestDispatch_IndexCodebase_RequiresPathAndProject(t *testing.T) {
	srv := testServer(t)
	resp := dispatchCall(t, srv, "index_codebase", map[string]interface{}{})
	require.NotNil(t, resp["error"])
}

func TestDispatch_CrossProjectConsentLifecycle(t *testing.T) {
	srv := testServer(t)

	optInResp := dispatchCall(t, srv, "opt_in_cross_project", map[string]interface{}{"project_name": "shared-lib"})
	require.Nil(t, optInResp["error"])
	optInResult := optInResp["result"].(map[string]interface{})
	assert.True(t, optInResult["opted_in"].(bool))

	listResp := dispatchCall(t, srv, "list_opted_in_projects", map[string]interface{}{})
	require.Nil(t, listResp["error"])
	listResult := listResp["result"].(map[string]interface{})
	projects := listResult["projects"].([]interface{})
	assert.Contains(t, projects, "shared-lib")

	searchResp := dispatchCall(t, srv, "search_all_projects", map[string]interface{}{"query": "anything"})
	require.Nil(t, searchResp["error"])

	optOutResp := dispatchCall(t, srv, "opt_out_cross_project", map[string]interface{}{"project_name": "shared-lib"})
	require.Nil(t, optOutResp["error"])
	optOutResult := optOutResp["result"].(map[string]interface{})
	assert.False(t, optOutResult["opted_in"].(bool))
}

func TestDispatch_SearchAllProjects_NotConfigured(t *testing.T) {
	srv := testServerMinimal(t)
	resp := dispatchCall(t, srv, "search_all_projects", map[string]interface{}{"query": "anything"})
	require.NotNil(t, resp["error"])
}

func TestDispatch_HealthAndDashboardOperations(t *testing.T) {
	srv := testServer(t)
	storeOne(t, srv, "a memory to count toward dashboard stats", "FACT", "GLOBAL", "")

	metricsResp := dispatchCall(t, srv, "get_performance_metrics", map[string]interface{}{})
	require.Nil(t, metricsResp["error"])

	scoreResp := dispatchCall(t, srv, "get_health_score", map[string]interface{}{})
	require.Nil(t, scoreResp["error"])
	scoreResult := scoreResp["result"].(map[string]interface{})
	assert.Contains(t, scoreResult, "score")

	alertsResp := dispatchCall(t, srv, "get_active_alerts", map[string]interface{}{})
	require.Nil(t, alertsResp["error"])

	dashResp := dispatchCall(t, srv, "get_dashboard_stats", map[string]interface{}{})
	require.Nil(t, dashResp["error"])
	dashResult := dashResp["result"].(map[string]interface{})
	assert.Equal(t, float64(1), dashResult["total_memories"])

	weeklyResp := dispatchCall(t, srv, "get_weekly_report", map[string]interface{}{})
	require.Nil(t, weeklyResp["error"])
}

func TestDispatch_HealthOperations_NotConfigured(t *testing.T) {
	srv := testServerMinimal(t)
	resp := dispatchCall(t, srv, "get_health_score", map[string]interface{}{})
	require.NotNil(t, resp["error"])
}

func TestDispatch_DetectContradictions(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "the API token expires after 30 days", "FACT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "detect_contradictions", map[string]interface{}{"memory_id": id})
	require.Nil(t, resp["error"])
}

func TestDispatch_GetRelatedMemories(t *testing.T) {
	srv := testServer(t)
	id := storeOne(t, srv, "a memory with potential relations", "FACT", "GLOBAL", "")

	resp := dispatchCall(t, srv, "get_related_memories", map[string]interface{}{"memory_id": id})
	require.Nil(t, resp["error"])
}

func TestHandleToolsCall_WrapsHandlerErrorAsContent(t *testing.T) {
	srv := testServer(t)
	resp := rpcCall(t, srv, "tools/call", map[string]interface{}{
		"name":      "update_memory",
		"arguments": map[string]interface{}{},
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.True(t, result["isError"].(bool))
}

func TestHandleToolsCall_StoreMemory(t *testing.T) {
	srv := testServer(t)
	resp := rpcCall(t, srv, "tools/call", map[string]interface{}{
		"name": "store_memory",
		"arguments": map[string]interface{}{
			"content":  "stored via the tools/call envelope",
			"category": "FACT",
			"scope":    "GLOBAL",
		},
	})
	require.Nil(t, resp["error"])
	result := resp["result"].(map[string]interface{})
	assert.False(t, result["isError"].(bool))
	content := result["content"].([]interface{})
	require.NotEmpty(t, content)
}
