package memory

import (
	"context"
	"sync"

	"exam-ledger-service/internal/domain"
)

// Hub fans notifications out to in-process subscribers, keyed by user.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Notification]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Notification]struct{})}
}

// Notify never blocks: a full subscriber buffer drops its oldest message.
func (h *Hub) Notify(_ context.Context, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[n.UserID] {
		select {
		case ch <- n:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- n
		}
	}
	return nil
}

// Subscribe returns a channel of the user's notifications and a cancel func
// that closes it.
func (h *Hub) Subscribe(_ context.Context, userID string) (<-chan domain.Notification, func(), error) {
	ch := make(chan domain.Notification, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[userID]
	if !ok {
		subs = make(map[chan domain.Notification]struct{})
		h.subscribers[userID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[userID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, userID)
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many channels the user has open.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[userID])
}
