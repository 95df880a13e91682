package sqlite

// Schema creates every table, index, and FTS5 trigger the SQLite adapter
// needs. It is applied once at store-open time and is idempotent (every
// statement uses IF NOT EXISTS), so re-running it against an already
// initialized database is a no-op.
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
    created_at                 TIMESTAMP NOT NULL,
    updated_at                 TIMESTAMP NOT NULL,
    last_accessed              TIMESTAMP,
    lifecycle_state            TEXT NOT NULL DEFAULT 'active',

    provenance_source          TEXT,
    provenance_created_by      TEXT,
    provenance_last_confirmed  TIMESTAMP,
    provenance_confidence      REAL NOT NULL DEFAULT 0.8,
    provenance_verified        INTEGER NOT NULL DEFAULT 0,
    provenance_conversation_id TEXT,
    provenance_file_context    TEXT,
    provenance_notes           TEXT,

    tags                       TEXT,
    metadata                   TEXT,

    access_count               INTEGER NOT NULL DEFAULT 0,
    content_hash               TEXT,

    deleted_at                 TIMESTAMP,
    superseded_by              TEXT,
    supersedes                 TEXT
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

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    content,
    content='memories',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS embeddings (
    memory_id  TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    dimension  INTEGER NOT NULL,
    model      TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);

CREATE TABLE IF NOT EXISTS entities (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    type        TEXT NOT NULL,
    description TEXT,
    attributes  TEXT,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(name, type)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);

CREATE TABLE IF NOT EXISTS relationships (
    id         TEXT PRIMARY KEY,
    source_id  TEXT NOT NULL,
    target_id  TEXT NOT NULL,
    type       TEXT NOT NULL,
    weight     REAL NOT NULL DEFAULT 1.0,
    context    TEXT,
    metadata   TEXT,
    detected_by TEXT NOT NULL DEFAULT 'auto',
    confidence REAL NOT NULL DEFAULT 1.0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
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
    opted_in     INTEGER NOT NULL DEFAULT 0,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS embedding_cache (
    cache_key  TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    embedding  BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
