package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogCache caches tests and questions with TTL to avoid repeated DB hits.
type CatalogCache struct {
	loader app.Catalog
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	rndMu     sync.Mutex
	tests     map[string]cached[domain.Test]
	questions map[string]cached[domain.Question]
}

type cached[T any] struct {
	value     T
	expiresAt time.Time
}

func NewCatalogCache(loader app.Catalog, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		tests:     make(map[string]cached[domain.Test]),
		questions: make(map[string]cached[domain.Question]),
	}
}

func (c *CatalogCache) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.tests[testID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.value, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("test:"+testID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.tests[testID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.value, nil
		}
		c.mu.RUnlock()

		test, err := c.loader.GetTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		c.mu.Lock()
		c.tests[testID] = cached[domain.Test]{value: test, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// GetQuestions serves hits from the cache and loads all misses in one call.
func (c *CatalogCache) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	now := c.clock()
	out := make([]domain.Question, len(ids))
	var missing []string
	var missingAt []int

	c.mu.RLock()
	for i, id := range ids {
		if entry, ok := c.questions[id]; ok && entry.expiresAt.After(now) {
			out[i] = entry.value
			continue
		}
		missing = append(missing, id)
		missingAt = append(missingAt, i)
	}
	c.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}

	result, err, _ := c.sf.Do("questions:"+strings.Join(missing, ","), func() (interface{}, error) {
		qs, err := c.loader.GetQuestions(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		for _, q := range qs {
			c.questions[q.ID] = cached[domain.Question]{value: q, expiresAt: now.Add(c.ttlWithJitter())}
		}
		c.mu.Unlock()
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

// Purge drops every cached entry, e.g. after the catalog was reseeded.
func (c *CatalogCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tests = make(map[string]cached[domain.Test])
	c.questions = make(map[string]cached[domain.Question])
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
