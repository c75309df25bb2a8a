package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Registry records live websocket connections as expiring keys, so a crashed
// instance's connections disappear once their lease runs out.
//
//	SET ws:conn:{userID}:{connID} 1 EX ttl
type Registry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{client: client, ttl: ttl}
}

// Register returns a connection id of the form {userID}:{uuid}.
func (r *Registry) Register(ctx context.Context, userID string) (string, error) {
	connID := userID + ":" + uuid.NewString()
	if err := r.client.Set(ctx, connKey(connID), "1", r.ttl).Err(); err != nil {
		return "", err
	}
	return connID, nil
}

func (r *Registry) Touch(ctx context.Context, connID string) error {
	return r.client.Expire(ctx, connKey(connID), r.ttl).Err()
}

func (r *Registry) Unregister(ctx context.Context, connID string) error {
	return r.client.Del(ctx, connKey(connID)).Err()
}

// Online counts the user's live connection keys.
func (r *Registry) Online(ctx context.Context, userID string) (int, error) {
	iter := r.client.Scan(ctx, 0, connKey(userID+":*"), 100).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func connKey(connID string) string { return "ws:conn:" + connID }
