package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry tracks live websocket connections by generated id. Entries that
// are not touched within the TTL are evicted.
type Registry struct {
	ttl   time.Duration
	clock func() time.Time

	mu    sync.Mutex
	conns map[string]connection
}

type connection struct {
	userID    string
	expiresAt time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:   ttl,
		clock: time.Now,
		conns: make(map[string]connection),
	}
}

func (r *Registry) Register(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.conns[id] = connection{userID: userID, expiresAt: r.clock().Add(r.ttl)}
	return id, nil
}

// Touch extends the lease of a live connection.
func (r *Registry) Touch(_ context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	c.expiresAt = r.clock().Add(r.ttl)
	r.conns[connID] = c
	return nil
}

func (r *Registry) Unregister(_ context.Context, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	return nil
}

// Online counts the user's unexpired connections, evicting stale ones.
func (r *Registry) Online(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	n := 0
	for id, c := range r.conns {
		if !c.expiresAt.After(now) {
			delete(r.conns, id)
			continue
		}
		if c.userID == userID {
			n++
		}
	}
	return n, nil
}
