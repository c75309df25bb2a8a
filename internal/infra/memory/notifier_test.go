package memory

import (
	"context"
	"testing"
	"time"

	"exam-ledger-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToUserOnly(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	mine, cancelMine, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer cancelMine()
	other, cancelOther, err := hub.Subscribe(ctx, "u2")
	require.NoError(t, err)
	defer cancelOther()

	require.NoError(t, hub.Notify(ctx, domain.Notification{ID: "n1", UserID: "u1", Type: domain.NotifyLevelUp}))

	select {
	case n := <-mine:
		assert.Equal(t, "n1", n.ID)
	case <-time.After(time.Second):
		t.Fatal("no notification for u1")
	}
	assert.Empty(t, other, "u2 receives nothing")
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < 20; i++ {
		_ = hub.Notify(ctx, domain.Notification{ID: string(rune('a' + i)), UserID: "u1"})
	}
	var last domain.Notification
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, string(rune('a'+19)), last.ID, "newest notification kept")
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, cancel, err := hub.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "channel closed")
	assert.Zero(t, hub.Subscribers("u1"))
}
