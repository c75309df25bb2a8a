package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"exam-ledger-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads catalog JSONB documents straight from Postgres. It is
// the loader behind the catalog caches.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM catalog_tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Test{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.Test{}, fmt.Errorf("%w: load test: %v", domain.ErrTransientStore, err)
	}
	var test domain.Test
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.Test{}, fmt.Errorf("unmarshal test: %w", err)
	}
	return test, nil
}

func (l *CatalogLoader) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, data FROM catalog_questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrTransientStore, err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Question, len(ids))
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("%w: scan question: %v", domain.ErrTransientStore, err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question %s: %w", id, err)
		}
		byID[id] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrTransientStore, err)
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}
