package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogCache caches tests and questions in Redis as JSON and falls back to
// a loader on cache miss.
//
//	SET catalog:test:{testID}         {json}
//	SET catalog:question:{questionID} {json}
type CatalogCache struct {
	client *redis.Client
	loader app.Catalog
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	key := testKey(testID)
	var test domain.Test
	if ok := c.lookup(ctx, key, &test); ok {
		return test, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var test domain.Test
		if ok := c.lookup(ctx, key, &test); ok {
			return test, nil
		}
		test, err := c.loader.GetTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}
		c.store(ctx, map[string]any{key: test})
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// GetQuestions reads every id with one MGET and loads the misses in one call.
func (c *CatalogCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}

	out := make([]domain.Question, len(ids))
	var missing []string
	var missingAt []int
	values, err := c.client.MGet(ctx, keys...).Result()
	for i, id := range ids {
		if err == nil {
			if s, ok := values[i].(string); ok && json.Unmarshal([]byte(s), &out[i]) == nil {
				continue
			}
		}
		missing = append(missing, id)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	result, err, _ := c.sf.Do("questions:"+strings.Join(missing, ","), func() (interface{}, error) {
		qs, err := c.loader.GetQuestions(ctx, missing)
		if err != nil {
			return nil, err
		}
		entries := make(map[string]any, len(qs))
		for _, q := range qs {
			entries[questionKey(q.ID)] = q
		}
		c.store(ctx, entries)
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	for j, q := range result.([]domain.Question) {
		out[missingAt[j]] = q
	}
	return out, nil
}

// Purge removes every cached catalog key.
func (c *CatalogCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "catalog:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// lookup treats any Redis or decode failure as a miss.
func (c *CatalogCache) lookup(ctx context.Context, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// store is best effort; the loader stays the source of truth.
func (c *CatalogCache) store(ctx context.Context, entries map[string]any) {
	pipe := c.client.Pipeline()
	for key, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key, raw, c.ttlWithJitter())
	}
	_, _ = pipe.Exec(ctx)
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func testKey(id string) string     { return "catalog:test:" + id }
func questionKey(id string) string { return "catalog:question:" + id }
