package redis

import (
	"context"
	"encoding/json"
	"sync"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/redis/go-redis/v9"
)

// Notifier publishes notifications on a per-user channel so that every
// instance holding a websocket for the user can forward them.
//
//	PUBLISH notifications:{userID} {json}
type Notifier struct {
	client *redis.Client
	log    *logger.Logger
}

func NewNotifier(client *redis.Client, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{client: client, log: log.With("component", "redis-notifier")}
}

func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	raw, err := json.Marshal(note)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel(note.UserID), raw).Err()
}

// Subscribe streams the user's notifications until cancel is called or ctx ends.
func (n *Notifier) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, func(), error) {
	sub := n.client.Subscribe(ctx, channel(userID))
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Notification, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var note domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
					n.log.Warn("malformed notification", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- note:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func channel(userID string) string { return "notifications:" + userID }
