package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type CacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db, now: time.Now}
}

// Lookup returns the cached analysis for key and bumps its access counters.
func (r *CacheRepository) Lookup(ctx context.Context, key domain.CacheKey) (*domain.CachedAnalysis, bool, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE analysis_cache
SET access_count = access_count + 1, last_accessed_at = $4
WHERE document_hash = $1 AND framework = $2 AND questions_hash = $3
RETURNING results, result_metadata, access_count, last_accessed_at, created_at
`, key.DocumentHash, key.Framework, key.QuestionsHash, r.now().UTC())

	entry := domain.CachedAnalysis{Key: key}
	var resultsRaw, metadataRaw []byte
	err := row.Scan(&resultsRaw, &metadataRaw, &entry.AccessCount, &entry.LastAccessedAt, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup analysis cache: %w", err)
	}
	if err := json.Unmarshal(resultsRaw, &entry.Bundle); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached results: %w", err)
	}
	if err := unmarshalOptional(metadataRaw, &entry.Metadata); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached metadata: %w", err)
	}
	return &entry, true, nil
}

// Upsert stores an analysis. Overwriting an existing key counts as an access.
func (r *CacheRepository) Upsert(ctx context.Context, entry domain.CachedAnalysis) error {
	resultsRaw, err := json.Marshal(entry.Bundle)
	if err != nil {
		return fmt.Errorf("marshal cached results: %w", err)
	}
	var metadataRaw []byte
	if entry.Metadata != nil {
		if metadataRaw, err = json.Marshal(entry.Metadata); err != nil {
			return fmt.Errorf("marshal cached metadata: %w", err)
		}
	}

	now := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO analysis_cache (document_hash, framework, questions_hash, results, result_metadata, access_count, last_accessed_at, created_at)
VALUES ($1,$2,$3,$4,$5,1,$6,$6)
ON CONFLICT (document_hash, framework, questions_hash) DO UPDATE
SET results = EXCLUDED.results,
	result_metadata = EXCLUDED.result_metadata,
	access_count = analysis_cache.access_count + 1,
	last_accessed_at = EXCLUDED.last_accessed_at
`, entry.Key.DocumentHash, entry.Key.Framework, entry.Key.QuestionsHash, resultsRaw, metadataRaw, now)
	if err != nil {
		return fmt.Errorf("upsert analysis cache: %w", err)
	}
	return nil
}
