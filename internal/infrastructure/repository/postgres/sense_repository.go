package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// SenseRepository serves the sense catalog: entity to sense links, sense to
// page references and precomputed sense embeddings.
type SenseRepository struct {
	db *sql.DB
}

func NewSenseRepository(db *sql.DB) *SenseRepository {
	return &SenseRepository{db: db}
}

func (r *SenseRepository) SensesForEntities(ctx context.Context, entityIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT entity_id, sense_id
FROM entity_senses
WHERE entity_id IN (`+placeholders(1, len(entityIDs))+`)
ORDER BY entity_id, position, sense_id
`, stringArgs(entityIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query entity senses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entityID, senseID string
		if err := rows.Scan(&entityID, &senseID); err != nil {
			return nil, fmt.Errorf("scan entity sense: %w", err)
		}
		out[entityID] = append(out[entityID], senseID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entity senses: %w", err)
	}
	return out, nil
}

func (r *SenseRepository) PageRefs(ctx context.Context, senseID string) ([]domain.PageRef, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT title, language
FROM sense_pages
WHERE sense_id = $1
ORDER BY position
`, senseID)
	if err != nil {
		return nil, fmt.Errorf("query sense pages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PageRef, 0)
	for rows.Next() {
		var ref domain.PageRef
		if err := rows.Scan(&ref.Title, &ref.Language); err != nil {
			return nil, fmt.Errorf("scan sense page: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sense pages: %w", err)
	}
	if len(out) == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "page refs", fmt.Errorf("sense %s has no pages", senseID))
	}
	return out, nil
}

// SenseEmbeddings loads vectors for ids. Ids without a stored vector are
// absent from the result; the caller decides whether that is fatal.
func (r *SenseRepository) SenseEmbeddings(ctx context.Context, senseIDs []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(senseIDs))
	if len(senseIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT sense_id, embedding
FROM sense_embeddings
WHERE sense_id IN (`+placeholders(1, len(senseIDs))+`)
`, stringArgs(senseIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query sense embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			vec pgvector.Vector
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan sense embedding: %w", err)
		}
		out[id] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sense embeddings: %w", err)
	}
	return out, nil
}

// SenseRecord is one catalog row set as produced by the offline importer.
type SenseRecord struct {
	SenseID   string           `json:"sense_id"`
	EntityIDs []string         `json:"entity_ids"`
	Pages     []domain.PageRef `json:"pages"`
	Embedding []float32        `json:"embedding"`
}

// UpsertSense replaces everything stored for rec.SenseID in one transaction.
func (r *SenseRepository) UpsertSense(ctx context.Context, rec SenseRecord) error {
	if rec.SenseID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert sense", fmt.Errorf("sense id is empty"))
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, entityID := range rec.EntityIDs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO entity_senses (entity_id, sense_id, position)
VALUES ($1,$2,$3)
ON CONFLICT (entity_id, sense_id) DO UPDATE SET position = EXCLUDED.position
`, entityID, rec.SenseID, i); err != nil {
			return fmt.Errorf("upsert entity sense: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sense_pages WHERE sense_id = $1`, rec.SenseID); err != nil {
		return fmt.Errorf("clear sense pages: %w", err)
	}
	for i, ref := range rec.Pages {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sense_pages (sense_id, position, title, language)
VALUES ($1,$2,$3,$4)
`, rec.SenseID, i, ref.Title, ref.Language); err != nil {
			return fmt.Errorf("insert sense page: %w", err)
		}
	}

	if len(rec.Embedding) > 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sense_embeddings (sense_id, embedding)
VALUES ($1,$2)
ON CONFLICT (sense_id) DO UPDATE SET embedding = EXCLUDED.embedding
`, rec.SenseID, pgvector.NewVector(rec.Embedding)); err != nil {
			return fmt.Errorf("upsert sense embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}
