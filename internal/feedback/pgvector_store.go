package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore is the LongTerm VectorStore backed by Postgres + pgvector,
// grounded on the teacher's SemanticMemory.FindSimilar cosine-distance query.
type PgVectorStore struct {
	pool *pgxpool.Pool
}

// NewPgVectorStore wraps an existing pool. The caller owns pool's lifecycle.
func NewPgVectorStore(pool *pgxpool.Pool) *PgVectorStore {
	return &PgVectorStore{pool: pool}
}

// Upsert stores entry's embedding for later similarity search.
func (p *PgVectorStore) Upsert(ctx context.Context, entry Entry) error {
	vec := pgvector.NewVector(entry.Embedding)
	_, err := p.pool.Exec(ctx, `
		INSERT INTO feedback_memory (id, category, key, embedding, importance, access_count, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			importance = EXCLUDED.importance,
			access_count = EXCLUDED.access_count
	`, entry.ID, entry.Category, entry.Key, vec, entry.Importance, entry.AccessCount, entry.CreatedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert long-term memory entry: %w", err)
	}
	return nil
}

// Search returns the limit entries in category nearest to embedding by
// cosine distance, excluding expired entries.
func (p *PgVectorStore) Search(ctx context.Context, category string, embedding []float32, limit int) ([]Entry, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx, `
		SELECT id, category, key, importance, access_count, created_at, expires_at
		FROM feedback_memory
		WHERE category = $1 AND expires_at > now()
		ORDER BY embedding <=> $2
		LIMIT $3
	`, category, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("query long-term memory by similarity: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var createdAt, expiresAt time.Time
		if err := rows.Scan(&e.ID, &e.Category, &e.Key, &e.Importance, &e.AccessCount, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan long-term memory row: %w", err)
		}
		e.Tier = TierLongTerm
		e.CreatedAt = createdAt
		e.ExpiresAt = expiresAt
		results = append(results, e)
	}
	return results, rows.Err()
}
