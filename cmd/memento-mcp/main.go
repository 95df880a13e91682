// cmd/memento-mcp is the entry point for the Memento MCP (Model Context
// Protocol) server. It wires config -> storage -> embedding cache/generator
// -> session tracker -> memory service/search orchestrator -> duplicate and
// relationship detectors -> cross-project consent registry -> health
// collector into an mcp.Server, then serves JSON-RPC 2.0 requests from
// stdin, writing responses to stdout.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Open the configured storage backend (sqlite or postgres; schema
//     applied at open time).
//  3. Build the embedding cache, embedding generator, session tracker.
//  4. Build the memory service and search orchestrator.
//  5. Build the duplicate/relationship detectors, code indexer, consent
//     registry and health collector.
//  6. Assemble the MCP server and serve JSON-RPC 2.0 on stdin/stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scrypster/memento/internal/api/mcp"
	"github.com/scrypster/memento/internal/config"
	"github.com/scrypster/memento/internal/connections"
	"github.com/scrypster/memento/internal/duplicate"
	"github.com/scrypster/memento/internal/embedcache"
	"github.com/scrypster/memento/internal/engine"
	"github.com/scrypster/memento/internal/health"
	"github.com/scrypster/memento/internal/llm"
	"github.com/scrypster/memento/internal/session"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/storage/postgres"
	"github.com/scrypster/memento/internal/storage/sqlite"
	"github.com/scrypster/memento/internal/tracing"
)

// vectorStore is the subset of storage.VectorStoreAdapter plus the
// process-lifecycle methods both backends expose; satisfied structurally by
// *sqlite.MemoryStore and *postgres.MemoryStore (storage.Engine selects
// between them).
type vectorStore interface {
	storage.VectorStoreAdapter
	DB() *sql.DB
	Close() error
}

// openStore opens the backend named by MEMENTO_STORAGE_ENGINE (spec.md 6):
// "sqlite" for a single-process embedded deployment, "postgres" for the
// pgvector-backed reference backend addressed by qdrant_url (spec.md 6's
// generic reference-backend-wiring key).
func openStore(cfg *config.Config) (vectorStore, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		if cfg.Storage.QdrantURL == "" {
			return nil, fmt.Errorf("MEMENTO_STORAGE_ENGINE=postgres requires MEMENTO_QDRANT_URL to be set to a postgres DSN")
		}
		return postgres.NewMemoryStore(cfg.Storage.QdrantURL)
	case "sqlite", "":
		dbPath := fmt.Sprintf("%s/memento.db", cfg.Storage.DataPath)
		return sqlite.NewMemoryStore(dbPath)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("memento-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("failed to create data directory %q: %v", cfg.Storage.DataPath, err)
	}

	logger := tracing.New(cfg.Server.LogLevel)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open %s storage backend: %v", cfg.Storage.Engine, err)
	}
	defer store.Close()

	cache, err := embedcache.New(store.DB(), 2000, time.Duration(cfg.Embed.CacheTTLDays)*24*time.Hour)
	if err != nil {
		log.Fatalf("failed to build embedding cache: %v", err)
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg.Embed)
	if err != nil {
		log.Fatalf("failed to build embedding generator: %v", err)
	}
	if cfg.Embed.RateLimitRPS > 0 {
		embedder = llm.NewRateLimitedEmbedder(embedder, cfg.Embed.RateLimitRPS)
	}

	tracker := session.New(cfg.Server.SessionTTL)

	memSvc := engine.NewMemoryService(store, embedder, cache, logger, cfg.Security.ReadOnlyMode)
	searchOrch := engine.NewSearchOrchestrator(store, embedder, cache, tracker, logger)

	reg := prometheus.NewRegistry()
	collector := health.NewCollector(reg)
	searchOrch.Metrics = collector

	contradiction := engine.NewContradictionDetector(store)
	duplicates := duplicate.NewDetector(store, embedder, duplicate.DefaultThresholds)
	relationships := duplicate.NewRelationshipDetector(store, embedder)
	codeIndexer := engine.NewCodeIndexer(store, embedder, logger, cfg.Security.ReadOnlyMode)

	consentPath := os.Getenv("MEMENTO_CONSENT_REGISTRY_PATH")
	if consentPath == "" {
		consentPath = fmt.Sprintf("%s/connections.yaml", cfg.Storage.DataPath)
	}
	registry, err := connections.NewRegistry(consentPath, logger)
	if err != nil {
		log.Fatalf("failed to load consent registry at %q: %v", consentPath, err)
	}
	defer registry.Close()

	srv := mcp.NewServer(store, memSvc, searchOrch,
		mcp.WithContradictionDetector(contradiction),
		mcp.WithDuplicateDetector(duplicates),
		mcp.WithRelationshipDetector(relationships),
		mcp.WithCodeIndexer(codeIndexer),
		mcp.WithConnectionsRegistry(registry),
		mcp.WithHealthCollector(collector),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem. Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}
