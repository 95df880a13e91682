package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/scrypster/memento/internal/engineerr"
	"github.com/scrypster/memento/pkg/types"
)

// CreateRelationship upserts an advisory memory-to-memory edge produced by
// the duplicate/relationship detector (spec.md 4.9). The (source, target,
// type) triple is the natural key, so re-detecting the same edge just
// refreshes its confidence/notes.
func (s *MemoryStore) CreateRelationship(ctx context.Context, rel *types.MemoryRelationship) error {
	if rel == nil || rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: source and target ids are required", engineerr.ErrInvalidInput)
	}

	metadataJSON, err := json.Marshal(map[string]string{"notes": rel.Notes})
	if err != nil {
		return fmt.Errorf("failed to marshal relationship metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, target_id, type, weight, metadata, detected_by, confidence, created_at, updated_at)
		VALUES (md5(random()::text || clock_timestamp()::text), $1, $2, $3, 1.0, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(source_id, target_id, type) DO UPDATE SET
			confidence = excluded.confidence,
			metadata = excluded.metadata,
			detected_by = excluded.detected_by,
			updated_at = CURRENT_TIMESTAMP
	`, rel.SourceID, rel.TargetID, string(rel.RelationshipType), metadataJSON, rel.DetectedBy, rel.Confidence)
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to create relationship")
	}
	return nil
}

// GetRelationships returns relationships where memoryID is either endpoint,
// up to limit, newest first.
func (s *MemoryStore) GetRelationships(ctx context.Context, memoryID string, limit int) ([]*types.MemoryRelationship, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory id is required", engineerr.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, type, confidence, detected_by, metadata
		FROM relationships
		WHERE source_id = $1 OR target_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, memoryID, limit)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to get relationships")
	}
	defer rows.Close()

	var relationships []*types.MemoryRelationship
	for rows.Next() {
		var rel types.MemoryRelationship
		var relType string
		var metadataJSON sql.NullString
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &relType, &rel.Confidence, &rel.DetectedBy, &metadataJSON); err != nil {
			return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to scan relationship")
		}
		rel.RelationshipType = types.RelationshipType(relType)
		if metadataJSON.Valid && metadataJSON.String != "" {
			var meta map[string]string
			if err := json.Unmarshal([]byte(metadataJSON.String), &meta); err == nil {
				rel.Notes = meta["notes"]
			}
		}
		relationships = append(relationships, &rel)
	}
	return relationships, rows.Err()
}

// DeleteRelationship removes the edge identified by its natural key.
func (s *MemoryStore) DeleteRelationship(ctx context.Context, sourceID, targetID string, relType types.RelationshipType) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM relationships WHERE source_id = $1 AND target_id = $2 AND type = $3`,
		sourceID, targetID, string(relType))
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to delete relationship")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to check rows affected")
	}
	if n == 0 {
		return engineerr.ErrNotFound
	}
	return nil
}

// StoreEntity upserts an entity row, matched by (name, type).
func (s *MemoryStore) StoreEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", engineerr.ErrInvalidInput)
	}
	if entity.ID == "" {
		return fmt.Errorf("%w: entity id is required", engineerr.ErrInvalidInput)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, type, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(name, type) DO UPDATE SET
			description = excluded.description,
			updated_at = CURRENT_TIMESTAMP
	`, entity.ID, entity.Name, entity.Type, nullableString(entity.Description))
	if err != nil {
		return engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to store entity")
	}
	return nil
}

// GetEntity retrieves an entity by id.
func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity id is required", engineerr.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, description, created_at, updated_at FROM entities WHERE id = $1`, id)

	var e types.Entity
	var desc sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.Type, &desc, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, engineerr.ErrNotFound
	}
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindStorageUnavailable, err, "failed to get entity")
	}
	if desc.Valid {
		e.Description = desc.String
	}
	return &e, nil
}
