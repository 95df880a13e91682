// Package postgres implements the storage.VectorStoreAdapter contract
// against PostgreSQL + pgvector: embeddings live in a native `vector`
// column with an ivfflat index for approximate nearest-neighbor search,
// and full-text search uses tsvector/GIN instead of SQLite's FTS5.
package postgres

// Schema creates every table and index the PostgreSQL adapter needs except
// the pgvector extension and the embeddings table, which MigrationPgvector
// creates separately. The embeddings.embedding column is declared without
// a fixed dimension.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id                         TEXT PRIMARY KEY,
    content                    TEXT NOT NULL,
    category                   TEXT NOT NULL,
    context_level              TEXT NOT NULL,
    scope                      TEXT NOT NULL,
    project_name               TEXT,
    importance                 REAL NOT NULL DEFAULT 0.5,
    embedding_model            TEXT,
    created_at                 TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at                 TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_accessed              TIMESTAMP,
    lifecycle_state            TEXT NOT NULL DEFAULT 'ACTIVE',

    provenance_source          TEXT,
    provenance_created_by      TEXT,
    provenance_last_confirmed  TIMESTAMP,
    provenance_confidence      REAL NOT NULL DEFAULT 0.8,
    provenance_verified        BOOLEAN NOT NULL DEFAULT FALSE,
    provenance_conversation_id TEXT,
    provenance_file_context    JSONB,
    provenance_notes           TEXT,

    tags                       JSONB,
    metadata                   JSONB,

    access_count               INTEGER NOT NULL DEFAULT 0,
    content_hash               TEXT,

    deleted_at                 TIMESTAMP,
    superseded_by              TEXT,
    supersedes                 TEXT,

    content_tsv                TSVECTOR
);

CREATE INDEX IF NOT EXISTS idx_memories_category     ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_scope         ON memories(scope);
CREATE INDEX IF NOT EXISTS idx_memories_project_name  ON memories(project_name);
CREATE INDEX IF NOT EXISTS idx_memories_created_at    ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at    ON memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_memories_lifecycle     ON memories(lifecycle_state);
CREATE INDEX IF NOT EXISTS idx_memories_deleted_at    ON memories(deleted_at);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash  ON memories(content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_supersedes    ON memories(supersedes);
CREATE INDEX IF NOT EXISTS idx_memories_content_tsv   ON memories USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update() RETURNS TRIGGER AS $$
BEGIN
    NEW.content_tsv := to_tsvector('english', COALESCE(NEW.content, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
    BEFORE INSERT OR UPDATE OF content
    ON memories
    FOR EACH ROW
    EXECUTE FUNCTION memories_tsv_update();

CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    description TEXT,
    attributes  JSONB,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(name, type)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS relationships (
    id          TEXT PRIMARY KEY,
    source_id   TEXT NOT NULL,
    target_id   TEXT NOT NULL,
    type        TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 1.0,
    context     TEXT,
    metadata    JSONB,
    detected_by TEXT NOT NULL DEFAULT 'auto',
    confidence  REAL NOT NULL DEFAULT 1.0,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (source_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES memories(id) ON DELETE CASCADE,
    UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_id);
CREATE INDEX IF NOT EXISTS idx_relationships_type   ON relationships(type);

CREATE TABLE IF NOT EXISTS memory_entities (
    memory_id  TEXT NOT NULL,
    entity_id  TEXT NOT NULL,
    frequency  INTEGER NOT NULL DEFAULT 1,
    confidence REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (memory_id, entity_id),
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_entities_entity ON memory_entities(entity_id);
CREATE INDEX IF NOT EXISTS idx_memory_entities_memory ON memory_entities(memory_id);

CREATE TABLE IF NOT EXISTS memory_links (
    id         TEXT PRIMARY KEY,
    source_id  TEXT NOT NULL,
    target_id  TEXT NOT NULL,
    type       TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_memory_links_source ON memory_links(source_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_target ON memory_links(target_id);
CREATE INDEX IF NOT EXISTS idx_memory_links_type   ON memory_links(type);

CREATE TABLE IF NOT EXISTS consent_registry (
    project_name TEXT PRIMARY KEY,
    opted_in     BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embedding_cache (
    cache_key  TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    embedding  BYTEA NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MigrationPgvector adds the pgvector extension, a native embeddings table
// keyed by memory id with a `vector` column, and an ivfflat approximate
// nearest-neighbor index (built only if embeddings already holds rows when
// it runs). NewMemoryStore runs it on every open and treats a failure as
// pgvector being unavailable; the sqlite adapter has no equivalent since
// modernc.org/sqlite carries no vector extension.
const MigrationPgvector = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS embeddings (
    memory_id  TEXT PRIMARY KEY,
    embedding  vector NOT NULL,
    model      TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_embeddings_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM embeddings LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_embeddings_vec_cosine ON embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
