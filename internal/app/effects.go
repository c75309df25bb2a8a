package app

import (
	"context"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/google/uuid"
)

// effects collects notifications produced inside a unit of work so they are
// only sent once the work has committed.
type effects struct {
	notes []domain.Notification
}

func (e *effects) notify(userID string, typ domain.NotificationType, title, message string, now time.Time, meta map[string]string) {
	if e == nil {
		return
	}
	e.notes = append(e.notes, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Metadata:  meta,
		CreatedAt: now,
	})
}

// flush delivers collected notifications. Failures are logged and dropped.
func (e *effects) flush(ctx context.Context, n Notifier, log *logger.Logger) {
	if e == nil || n == nil {
		return
	}
	for _, note := range e.notes {
		if err := n.Notify(ctx, note); err != nil {
			log.Warn("notification dropped", "user_id", note.UserID, "type", note.Type, "error", err)
		}
	}
	e.notes = nil
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Notification) error { return nil }
