package memory

import (
	"context"
	"testing"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCacheCachesTests(t *testing.T) {
	loader := &countingLoader{Catalog: seededStore(t)}
	cache := NewCatalogCache(loader, time.Minute)

	_, err := cache.GetTest(context.Background(), "test-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.testCalls)

	_, err = cache.GetTest(context.Background(), "test-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loader.testCalls, "second read is a cache hit")
}

func TestCatalogCacheLoadsOnlyMissingQuestions(t *testing.T) {
	loader := &countingLoader{Catalog: seededStore(t)}
	cache := NewCatalogCache(loader, time.Minute)
	ctx := context.Background()

	_, err := cache.GetQuestions(ctx, []string{"q1"})
	require.NoError(t, err)
	qs, err := cache.GetQuestions(ctx, []string{"q2", "q1"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "q2", qs[0].ID)
	assert.Equal(t, "q1", qs[1].ID)
	assert.Equal(t, []string{"q2"}, loader.lastIDs)
}

func TestCatalogCacheExpires(t *testing.T) {
	loader := &countingLoader{Catalog: seededStore(t)}
	cache := NewCatalogCache(loader, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetTest(context.Background(), "test-1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetTest(context.Background(), "test-1")
	assert.Equal(t, 2, loader.testCalls, "reload after ttl")
}

func TestCatalogCacheDoesNotCacheMisses(t *testing.T) {
	loader := &countingLoader{Catalog: seededStore(t)}
	cache := NewCatalogCache(loader, time.Minute)

	_, err := cache.GetTest(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrTestNotFound)
	_, _ = cache.GetTest(context.Background(), "missing")
	assert.Equal(t, 2, loader.testCalls, "every miss reaches the loader")
}

type countingLoader struct {
	app.Catalog
	testCalls int
	lastIDs   []string
}

func (l *countingLoader) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	l.testCalls++
	return l.Catalog.GetTest(ctx, testID)
}

func (l *countingLoader) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	l.lastIDs = append([]string(nil), ids...)
	return l.Catalog.GetQuestions(ctx, ids)
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	ctx := context.Background()
	for _, q := range []domain.Question{
		{ID: "q1", Text: "What is 2 + 2?", Type: domain.QuestionSingle, CorrectAnswers: []string{"4"}, Marks: 1},
		{ID: "q2", Text: "Primes below 5?", Type: domain.QuestionMultiple, CorrectAnswers: []string{"2", "3"}, Marks: 2},
	} {
		require.NoError(t, store.PutQuestion(ctx, q))
	}
	require.NoError(t, store.PutTest(ctx, domain.Test{ID: "test-1", Title: "Warmup", DurationMinutes: 30, QuestionIDs: []string{"q1", "q2"}}))
	return store
}
