package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/infra/memory"
	"exam-ledger-service/internal/logger"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	notes    *recordingNotifier
	clock    *clock
	services *app.Services
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func (n *recordingNotifier) ofType(typ domain.NotificationType) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, note := range n.notes {
		if note.Type == typ {
			out = append(out, note)
		}
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	seedCatalog(t, store)
	return newFixtureWithStore(t, store, store)
}

func newFixtureWithStore(t *testing.T, mem *memory.Store, store app.Store) *fixture {
	t.Helper()
	c := &clock{now: t0}
	notes := &recordingNotifier{}
	return &fixture{
		store: mem,
		notes: notes,
		clock: c,
		services: app.NewServices(store, nil, notes, app.Options{
			Now: c.Now,
			Log: logger.Nop(),
		}),
	}
}

func seedCatalog(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	questions := []domain.Question{
		{ID: "q-add", Text: "2 + 2?", Type: domain.QuestionSingle, Options: []string{"3", "4"}, CorrectAnswers: []string{"4"}, Marks: 1},
		{ID: "q-capital", Text: "Capital of France?", Type: domain.QuestionSingle, CorrectAnswers: []string{"Paris"}, Marks: 1},
		{ID: "q-primes", Text: "Primes below 6?", Type: domain.QuestionMultiple, CorrectAnswers: []string{"2", "3", "5"}, Marks: 2},
		{ID: "q-hard", Text: "Pick B", Type: domain.QuestionSingle, CorrectAnswers: []string{"Option B"}, Difficulty: domain.DifficultyHard, Explanation: "B is the only option that fits."},
		{ID: "q-easy", Text: "Pick A", Type: domain.QuestionSingle, CorrectAnswers: []string{"A"}, Difficulty: domain.DifficultyEasy},
	}
	for _, q := range questions {
		require.NoError(t, store.PutQuestion(ctx, q))
	}
	tests := []domain.Test{
		{ID: "quiz", Title: "Quick quiz", SubjectID: "general", DurationMinutes: 10, QuestionIDs: []string{"q-add", "q-capital"}},
		{ID: "retake", Title: "Practice round", DurationMinutes: 30, QuestionIDs: []string{"q-add", "q-primes"}, AllowMultipleAttempts: true},
		{ID: "untimed", Title: "Broken", QuestionIDs: []string{"q-add"}},
	}
	for _, tt := range tests {
		require.NoError(t, store.PutTest(ctx, tt))
	}
}

// failingStore fails leaderboard writes inside units of work.
type failingStore struct {
	*memory.Store
	fail bool
}

var errDiskFull = errors.New("disk full")

func (s *failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		if s.fail {
			tx = failingTx{Tx: tx}
		}
		return fn(ctx, tx)
	})
}

type failingTx struct{ app.Tx }

func (failingTx) AddLeaderboardScore(context.Context, string, string, int, time.Time) (domain.LeaderboardEntry, error) {
	return domain.LeaderboardEntry{}, errors.Join(domain.ErrTransientStore, errDiskFull)
}
