// Package sqlite implements the storage.VectorStoreAdapter contract
// (spec.md 4.4) against a single-process SQLite database: FTS5 backs
// TextSearch (list/count filter with plain SQL predicates), embeddings are brute-force-ranked by cosine
// similarity (no true ANN index exists in modernc.org/sqlite), and WAL
// mode lets readers proceed without blocking the one writer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/internal/vecenc"
	"github.com/scrypster/memento/pkg/types"
)

// RunMigrations applies all pending database migrations from the given
// directory, on top of the base Schema already applied at open time.
func (s *MemoryStore) RunMigrations(migrationsDir string) error {
	mgr, err := storage.NewMigrationManager(s.db, migrationsDir)
	if err != nil {
		return fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}
	defer mgr.Close()

	if err := mgr.Up(); err != nil {
		return fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}
	return nil
}

// MemoryStore implements storage.VectorStoreAdapter, storage.GraphProvider,
// and storage.RelationshipStore using SQLite.
type MemoryStore struct {
	db *sql.DB
}

var _ storage.VectorStoreAdapter = (*MemoryStore)(nil)
var _ storage.GraphProvider = (*MemoryStore)(nil)
var _ storage.RelationshipStore = (*MemoryStore)(nil)

// NewMemoryStore opens a SQLite-backed adapter, with WAL self-healing: if
// the initial open fails due to stale WAL files left behind by a crashed
// process, it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func NewMemoryStore(dsn string) (*MemoryStore, error) {
	store, err := openMemoryStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}
	if !isWALStale(dbPath) {
		return nil, err
	}
	removeStaleWAL(dbPath)

	store, retryErr := openMemoryStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}
	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func openMemoryStore(dsn string) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer; a single open connection
	// serializes writes and avoids SQLITE_BUSY. WAL mode lets readers
	// proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &MemoryStore{db: db}, nil
}

// DB returns the underlying connection, used by the embedding cache and
// migration runner which share this store's database.
func (s *MemoryStore) DB() *sql.DB { return s.db }

const memoryColumns = `
	id, content, category, context_level, scope, project_name, importance,
	embedding_model, created_at, updated_at, last_accessed, lifecycle_state,
	provenance_source, provenance_created_by, provenance_last_confirmed,
	provenance_confidence, provenance_verified, provenance_conversation_id,
	provenance_file_context, provenance_notes,
	tags, metadata, access_count, content_hash, deleted_at, superseded_by, supersedes
`

// Store upserts a memory and, if given, its embedding vector.
func (s *MemoryStore) Store(ctx context.Context, memory *types.Memory, vector []float32) (string, error) {
	if memory == nil {
		return "", engineerr.ErrInvalidInput
	}
	if memory.ID == "" {
		return "", fmt.Errorf("%w: memory id is required", engineerr.ErrInvalidInput)
	}
	if err := s.upsertMemory(ctx, memory); err != nil {
		return "", err
	}
	if vector != nil {
		if err := s.storeEmbedding(ctx, memory.ID, vector, memory.EmbeddingModel); err != nil {
			return "", err
		}
	}
	return memory.ID, nil
}

// BatchStore stores every item in one transaction; a failure on any item
// aborts the whole batch (SQLite has no meaningful partial-commit here).
func (s *MemoryStore) BatchStore(ctx context.Context, memories []*types.Memory, vectors [][]float32) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to begin batch")
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(memories))
	for i, m := range memories {
		if m.ID == "" {
			tx.Rollback()
			return nil, fmt.Errorf("%w: memory id is required at batch index %d", engineerr.ErrInvalidInput, i)
		}
		if err := s.upsertMemoryTx(ctx, tx, m); err != nil {
			return nil, err
		}
		if i < len(vectors) && vectors[i] != nil {
			if err := s.storeEmbeddingTx(ctx, tx, m.ID, vectors[i], m.EmbeddingModel); err != nil {
				return nil, err
			}
		}
		ids = append(ids, m.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to commit batch")
	}
	return ids, nil
}

func (s *MemoryStore) upsertMemory(ctx context.Context, m *types.Memory) error {
	return s.execUpsert(ctx, s.db, m)
}

func (s *MemoryStore) upsertMemoryTx(ctx context.Context, tx *sql.Tx, m *types.Memory) error {
	return s.execUpsert(ctx, tx, m)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *MemoryStore) execUpsert(ctx context.Context, ex execer, m *types.Memory) error {
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	if m.LifecycleState == "" {
		m.LifecycleState = types.LifecycleActive
	}
	if m.ContentHash == "" {
		m.ContentHash = types.ContentHash(m.Content)
	}

	tagsJSON, err := marshalOptional(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	metadataJSON, err := marshalOptional(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	fileContextJSON, err := marshalOptional(m.Provenance.FileContext)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance.file_context: %w", err)
	}

	query := `
		INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			category = excluded.category,
			context_level = excluded.context_level,
			scope = excluded.scope,
			project_name = excluded.project_name,
			importance = excluded.importance,
			embedding_model = excluded.embedding_model,
			updated_at = excluded.updated_at,
			last_accessed = excluded.last_accessed,
			lifecycle_state = excluded.lifecycle_state,
			provenance_source = excluded.provenance_source,
			provenance_created_by = excluded.provenance_created_by,
			provenance_last_confirmed = excluded.provenance_last_confirmed,
			provenance_confidence = excluded.provenance_confidence,
			provenance_verified = excluded.provenance_verified,
			provenance_conversation_id = excluded.provenance_conversation_id,
			provenance_file_context = excluded.provenance_file_context,
			provenance_notes = excluded.provenance_notes,
			tags = excluded.tags,
			metadata = excluded.metadata,
			access_count = excluded.access_count,
			content_hash = excluded.content_hash,
			deleted_at = excluded.deleted_at,
			superseded_by = excluded.superseded_by,
			supersedes = excluded.supersedes
	`

	_, err = ex.ExecContext(ctx, query,
		m.ID, m.Content, string(m.Category), string(m.ContextLevel), string(m.Scope),
		nullableString(m.ProjectName), m.Importance,
		nullableString(m.EmbeddingModel), m.CreatedAt, m.UpdatedAt, nullableTime(&m.LastAccessed),
		string(m.LifecycleState),
		nullableString(string(m.Provenance.Source)), nullableString(m.Provenance.CreatedBy),
		nullableTime(m.Provenance.LastConfirmed), m.Provenance.Confidence, m.Provenance.Verified,
		nullableString(m.Provenance.ConversationID), nullableBytes(fileContextJSON), nullableString(m.Provenance.Notes),
		nullableBytes(tagsJSON), nullableBytes(metadataJSON), m.AccessCount, m.ContentHash,
		nullableTime(m.DeletedAt), nullableString(m.SupersededBy), nullableString(m.Supersedes),
	)
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to store memory")
	}
	return nil
}

func (s *MemoryStore) storeEmbedding(ctx context.Context, memoryID string, vec []float32, model string) error {
	return s.execStoreEmbedding(ctx, s.db, memoryID, vec, model)
}

func (s *MemoryStore) storeEmbeddingTx(ctx context.Context, tx *sql.Tx, memoryID string, vec []float32, model string) error {
	return s.execStoreEmbedding(ctx, tx, memoryID, vec, model)
}

func (s *MemoryStore) execStoreEmbedding(ctx context.Context, ex execer, memoryID string, vec []float32, model string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, embedding, dimension, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(memory_id) DO UPDATE SET
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP
	`, memoryID, vecenc.Encode(vec), len(vec), model)
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to store embedding")
	}
	return nil
}

// GetByID retrieves a memory by id.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory id is required", engineerr.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	m, err := scanMemoryRow(row)
	if err == sql.ErrNoRows {
		return nil, engineerr.ErrNotFound
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to get memory")
	}
	return m, nil
}

// Update applies a full-record replacement atomically: SQLite's single
// writer connection plus a single upsert statement ensures a reader never sees a
// merged record, only the pre- or post-image.
func (s *MemoryStore) Update(ctx context.Context, id string, memory *types.Memory, newVector []float32) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory id is required", engineerr.ErrInvalidInput)
	}
	exists, err := s.exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, engineerr.ErrNotFound
	}

	memory.ID = id
	memory.UpdatedAt = time.Now()
	if err := s.upsertMemory(ctx, memory); err != nil {
		return false, err
	}
	if newVector != nil {
		if err := s.storeEmbedding(ctx, id, newVector, memory.EmbeddingModel); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Delete soft-deletes a memory by setting deleted_at.
func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: memory id is required", engineerr.ErrInvalidInput)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return false, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to delete memory")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to check rows affected")
	}
	return n > 0, nil
}

// DeleteByFilter soft-deletes up to maxCount matching memories, enforcing
// the 1000 hard cap regardless of the requested value (spec.md 4.4).
func (s *MemoryStore) DeleteByFilter(ctx context.Context, filters storage.Filters, maxCount int) (storage.DeleteBreakdown, error) {
	const hardCap = 1000
	if maxCount <= 0 || maxCount > hardCap {
		maxCount = hardCap
	}

	where, args := buildFilterClause(filters)
	where = appendCondition(where, "deleted_at IS NULL")

	query := `SELECT id, project_name, category, lifecycle_state FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " LIMIT ?"
	args = append(args, maxCount)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.DeleteBreakdown{}, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "delete_by_filter query failed")
	}
	defer rows.Close()

	breakdown := storage.DeleteBreakdown{
		ByProject:   map[string]int{},
		ByCategory:  map[string]int{},
		ByLifecycle: map[string]int{},
	}
	var ids []string
	for rows.Next() {
		var id string
		var project, category, lifecycle sql.NullString
		if err := rows.Scan(&id, &project, &category, &lifecycle); err != nil {
			return storage.DeleteBreakdown{}, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "delete_by_filter scan failed")
		}
		ids = append(ids, id)
		if project.Valid && project.String != "" {
			breakdown.ByProject[project.String]++
		}
		if category.Valid {
			breakdown.ByCategory[category.String]++
		}
		if lifecycle.Valid {
			breakdown.ByLifecycle[lifecycle.String]++
		}
	}
	if err := rows.Err(); err != nil {
		return storage.DeleteBreakdown{}, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "delete_by_filter rows error")
	}

	for _, id := range ids {
		if _, err := s.Delete(ctx, id); err != nil {
			return storage.DeleteBreakdown{}, err
		}
	}
	breakdown.DeletedCount = len(ids)
	return breakdown, nil
}

// ListMemories returns a paginated, sorted window (spec.md 4.8.5).
func (s *MemoryStore) ListMemories(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var conditions []string
	var args []interface{}

	if opts.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, string(opts.Category))
	}
	if opts.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, string(opts.Scope))
	}
	if opts.ProjectName != "" {
		conditions = append(conditions, "project_name = ?")
		args = append(args, opts.ProjectName)
	}
	if opts.LifecycleState != "" {
		conditions = append(conditions, "lifecycle_state = ?")
		args = append(args, string(opts.LifecycleState))
	}
	if opts.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, opts.MinImportance)
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, opts.CreatedBefore)
	}
	if !opts.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}

	var whereClause string
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `SELECT ` + memoryColumns + ` FROM memories` + whereClause
	query += fmt.Sprintf(" ORDER BY %s %s", opts.SortBy, opts.SortOrder)
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to list memories")
	}
	defer rows.Close()

	var memories []types.Memory
	for rows.Next() {
		m, err := scanMemoryRows(rows)
		if err != nil {
			return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to scan memory")
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "error iterating memories")
	}

	countQuery := `SELECT COUNT(*) FROM memories` + whereClause
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to count memories")
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    memories,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(memories) < total,
	}, nil
}

// Count reports how many memories match filters.
func (s *MemoryStore) Count(ctx context.Context, filters storage.Filters) (int, error) {
	where, args := buildFilterClause(filters)
	where = appendCondition(where, "deleted_at IS NULL")
	query := `SELECT COUNT(*) FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to count memories")
	}
	return n, nil
}

// GetAllProjects returns the distinct non-empty project names.
func (s *MemoryStore) GetAllProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT project_name FROM memories WHERE project_name IS NOT NULL AND project_name != '' AND deleted_at IS NULL`)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to list projects")
	}
	defer rows.Close()

	var projects []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to scan project")
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProjectStats summarizes one project's memories.
func (s *MemoryStore) GetProjectStats(ctx context.Context, project string) (storage.ProjectStats, error) {
	stats := storage.ProjectStats{ProjectName: project, CategoryCounts: map[string]int{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, importance, updated_at FROM memories WHERE project_name = ? AND deleted_at IS NULL`, project)
	if err != nil {
		return stats, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to compute project stats")
	}
	defer rows.Close()

	var importanceSum float64
	for rows.Next() {
		var category string
		var importance float64
		var updatedAt time.Time
		if err := rows.Scan(&category, &importance, &updatedAt); err != nil {
			return stats, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to scan project stats row")
		}
		stats.MemoryCount++
		stats.CategoryCounts[category]++
		importanceSum += importance
		if updatedAt.After(stats.LastUpdatedAt) {
			stats.LastUpdatedAt = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return stats, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "project stats rows error")
	}
	if stats.MemoryCount > 0 {
		stats.AvgImportance = importanceSum / float64(stats.MemoryCount)
	}
	return stats, nil
}

// HealthCheck reports whether the database is reachable.
func (s *MemoryStore) HealthCheck(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Close flushes the WAL into the main database file and releases the
// connection. The TRUNCATE checkpoint removes the -shm/-wal files so other
// processes can open the database cleanly afterward.
func (s *MemoryStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}
	return s.db.Close()
}

func (s *MemoryStore) exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = ?", id).Scan(&count)
	if err != nil {
		return false, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to check existence")
	}
	return count > 0, nil
}

func buildFilterClause(f storage.Filters) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}

	if f.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Scope != "" {
		conditions = append(conditions, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.ProjectName != "" {
		conditions = append(conditions, "project_name = ?")
		args = append(args, f.ProjectName)
	}
	if f.ContextLevel != "" {
		conditions = append(conditions, "context_level = ?")
		args = append(args, string(f.ContextLevel))
	}
	if f.LifecycleState != "" {
		conditions = append(conditions, "lifecycle_state = ?")
		args = append(args, string(f.LifecycleState))
	}
	if f.MinImportance > 0 {
		conditions = append(conditions, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if !f.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, f.CreatedAfter)
	}
	if !f.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, f.CreatedBefore)
	}
	return conditions, args
}

func appendCondition(conditions []string, cond string) []string {
	return append(conditions, cond)
}

// rowScanner abstracts *sql.Row and *sql.Rows so scan logic is written once.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryRow(row *sql.Row) (*types.Memory, error) {
	return scanMemory(row)
}

func scanMemoryRows(rows *sql.Rows) (*types.Memory, error) {
	return scanMemory(rows)
}

func scanMemory(rs rowScanner) (*types.Memory, error) {
	var m types.Memory
	var category, contextLevel, scope, lifecycle string
	var projectName, embeddingModel sql.NullString
	var lastAccessed sql.NullTime
	var provSource, provCreatedBy, provConvID, provNotes sql.NullString
	var provLastConfirmed sql.NullTime
	var provConfidence float64
	var provVerified bool
	var fileContextJSON sql.NullString
	var tagsJSON, metadataJSON sql.NullString
	var deletedAt sql.NullTime
	var supersededBy, supersedes sql.NullString

	err := rs.Scan(
		&m.ID, &m.Content, &category, &contextLevel, &scope, &projectName, &m.Importance,
		&embeddingModel, &m.CreatedAt, &m.UpdatedAt, &lastAccessed, &lifecycle,
		&provSource, &provCreatedBy, &provLastConfirmed, &provConfidence, &provVerified,
		&provConvID, &fileContextJSON, &provNotes,
		&tagsJSON, &metadataJSON, &m.AccessCount, &m.ContentHash, &deletedAt, &supersededBy, &supersedes,
	)
	if err != nil {
		return nil, err
	}

	m.Category = types.MemoryCategory(category)
	m.ContextLevel = types.ContextLevel(contextLevel)
	m.Scope = types.MemoryScope(scope)
	m.LifecycleState = types.LifecycleState(lifecycle)
	if projectName.Valid {
		m.ProjectName = projectName.String
	}
	if embeddingModel.Valid {
		m.EmbeddingModel = embeddingModel.String
	}
	if lastAccessed.Valid {
		m.LastAccessed = lastAccessed.Time
	}
	m.Provenance.Source = types.ProvenanceSource(provSource.String)
	m.Provenance.CreatedBy = provCreatedBy.String
	if provLastConfirmed.Valid {
		t := provLastConfirmed.Time
		m.Provenance.LastConfirmed = &t
	}
	m.Provenance.Confidence = provConfidence
	m.Provenance.Verified = provVerified
	m.Provenance.ConversationID = provConvID.String
	m.Provenance.Notes = provNotes.String
	if fileContextJSON.Valid && fileContextJSON.String != "" {
		_ = json.Unmarshal([]byte(fileContextJSON.String), &m.Provenance.FileContext)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &m.Tags)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		_ = json.Unmarshal([]byte(metadataJSON.String), &m.Metadata)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		m.DeletedAt = &t
	}
	if supersededBy.Valid {
		m.SupersededBy = supersededBy.String
	}
	if supersedes.Valid {
		m.Supersedes = supersedes.String
	}

	return &m, nil
}

func marshalOptional(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []string:
		if len(val) == 0 {
			return nil, nil
		}
	case map[string]interface{}:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"
	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		return true
	}
	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// cosineSimilarity computes cosine similarity between two equal-length
// float32 vectors, clamped to [0,1] per spec.md 4.4's score contract.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// vectorSearchMaxCandidates caps how many embeddings are loaded into Go
// memory per Retrieve call. Candidates are selected newest-first, so for
// small/medium datasets (<10k memories) the cap is never hit; beyond that,
// PostgreSQL + pgvector is the indexed-ANN path.
const vectorSearchMaxCandidates = 10_000

// Retrieve ranks stored embeddings by cosine similarity to queryVector,
// applying filters before scoring, and returns up to limit results in
// descending score order.
func (s *MemoryStore) Retrieve(ctx context.Context, queryVector []float32, filters storage.Filters, limit int) ([]storage.Scored, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}

	where, args := buildFilterClause(filters)
	where = appendCondition(where, "m.deleted_at IS NULL")

	query := `
		SELECT e.memory_id, e.embedding
		FROM embeddings e
		JOIN memories m ON m.id = e.memory_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY m.created_at DESC
		LIMIT ?
	`
	args = append(args, vectorSearchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "retrieve query failed")
	}
	defer rows.Close()

	type candidate struct {
		id    string
		score float64
	}
	var candidates []candidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		vec := vecenc.Decode(blob)
		candidates = append(candidates, candidate{id, cosineSimilarity(queryVector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, engineerr.Wrap(engineerr.KindRetrieval, err, "retrieve rows error")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]storage.Scored, 0, limit)
	for _, c := range candidates[:limit] {
		m, err := s.GetByID(ctx, c.id)
		if err != nil {
			continue
		}
		results = append(results, storage.Scored{Memory: m, Score: c.score})
	}
	return results, nil
}
