package redis

import (
	"context"
	"testing"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCacheCachesInRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client := newClient(mr)
	loader := &countingLoader{Catalog: sampleCatalog(t)}
	cache := NewCatalogCache(client, loader, time.Minute)

	test, err := cache.GetTest(context.Background(), "test-1")
	require.NoError(t, err)
	assert.Equal(t, 20, test.DurationMinutes)
	assert.Equal(t, 1, loader.testCalls)
	require.True(t, mr.Exists("catalog:test:test-1"))
	ttl := mr.TTL("catalog:test:test-1")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.LessOrEqual(t, ttl, 66*time.Second, "ttl within jitter range")

	// Second call should hit cache, loader not incremented.
	_, _ = cache.GetTest(context.Background(), "test-1")
	assert.Equal(t, 1, loader.testCalls)
}

func TestCatalogCacheQuestionsKeepOrder(t *testing.T) {
	mr := miniredis.RunT(t)

	loader := &countingLoader{Catalog: sampleCatalog(t)}
	cache := NewCatalogCache(newClient(mr), loader, time.Minute)
	ctx := context.Background()

	_, err := cache.GetQuestions(ctx, []string{"q2"})
	require.NoError(t, err)
	qs, err := cache.GetQuestions(ctx, []string{"q1", "q2"})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "q1", qs[0].ID)
	assert.Equal(t, "q2", qs[1].ID)
	assert.Len(t, qs[1].CorrectAnswers, 2, "cached question keeps its answer key")
	assert.Equal(t, []string{"q1"}, loader.lastIDs)
}

func TestCatalogCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := newClient(mr)
	mr.Close()

	loader := &countingLoader{Catalog: sampleCatalog(t)}
	cache := NewCatalogCache(client, loader, time.Minute)
	_, err = cache.GetTest(context.Background(), "test-1")
	assert.NoError(t, err)
}

func TestCatalogCachePurge(t *testing.T) {
	mr := miniredis.RunT(t)

	cache := NewCatalogCache(newClient(mr), sampleCatalog(t), time.Minute)
	ctx := context.Background()
	_, _ = cache.GetTest(ctx, "test-1")
	_, _ = cache.GetQuestions(ctx, []string{"q1"})

	require.NoError(t, cache.Purge(ctx))
	assert.False(t, mr.Exists("catalog:test:test-1"))
	assert.False(t, mr.Exists("catalog:question:q1"))
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

func sampleCatalog(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.PutQuestion(ctx, domain.Question{ID: "q1", Text: "What is 2 + 2?", Type: domain.QuestionSingle, CorrectAnswers: []string{"4"}}))
	require.NoError(t, store.PutQuestion(ctx, domain.Question{ID: "q2", Text: "Even numbers?", Type: domain.QuestionMultiple, CorrectAnswers: []string{"2", "4"}, Marks: 2}))
	require.NoError(t, store.PutTest(ctx, domain.Test{ID: "test-1", Title: "Arithmetic", DurationMinutes: 20, QuestionIDs: []string{"q1", "q2"}}))
	return store
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
