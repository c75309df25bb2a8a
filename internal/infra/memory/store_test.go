package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		require.NoError(t, tx.CreateUser(ctx, domain.User{ID: "u1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTxCommits(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		return tx.CreateUser(ctx, domain.User{ID: "u1", Name: "Asha"})
	})
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Level, "level is normalised to 1")
}

func TestCreateUserKeepsExistingRow(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateUser(ctx, domain.User{ID: "u1", Name: "Asha", XP: 40}))
	require.NoError(t, store.CreateUser(ctx, domain.User{ID: "u1", Name: "Other"}))

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
	assert.Equal(t, 40, u.XP)
}

func TestCreateAssignmentRejectsRepeatedQuestion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateAssignment(ctx, domain.DPPAssignment{ID: "d1", UserID: "u1", DPPID: "dpp-1", QuestionID: "q1"}))

	err := store.CreateAssignment(ctx, domain.DPPAssignment{ID: "d2", UserID: "u1", DPPID: "dpp-1", QuestionID: "q1"})
	assert.ErrorIs(t, err, domain.ErrAssignmentExists)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, store.CreateAssignment(ctx, domain.DPPAssignment{ID: "d3", UserID: "u1", DPPID: "dpp-2", QuestionID: "q1"}))
	require.NoError(t, store.CreateAssignment(ctx, domain.DPPAssignment{ID: "d4", UserID: "u2", DPPID: "dpp-1", QuestionID: "q1"}))
}

func TestFinishAttemptOnlyOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateAttempt(ctx, domain.TestAttempt{ID: "a1", UserID: "u1", TestID: "t1", Status: domain.AttemptInProgress, StartedAt: started}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			finished := started.Add(time.Minute)
			ok, err := store.FinishAttempt(ctx, domain.TestAttempt{ID: "a1", UserID: "u1", TestID: "t1", Status: domain.AttemptSubmitted, StartedAt: started, FinishedAt: &finished})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	ok, err := store.SaveAttemptProgress(ctx, "a1", map[string]domain.Answer{"q1": domain.TextAnswer("4")})
	require.NoError(t, err)
	assert.False(t, ok, "finished attempts reject progress")
}

func TestCompleteAssignmentOnlyOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateAssignment(ctx, domain.DPPAssignment{ID: "d1", UserID: "u1", QuestionID: "q1"}))

	ok, err := store.CompleteAssignment(ctx, domain.DPPAssignment{ID: "d1", UserID: "u1", QuestionID: "q1", Score: 10})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompleteAssignment(ctx, domain.DPPAssignment{ID: "d1", UserID: "u1", QuestionID: "q1", Score: 99})
	require.NoError(t, err)
	assert.False(t, ok)

	a, err := store.GetAssignment(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 10, a.Score)
	assert.True(t, a.Completed)
}

func TestLeaderboardOrdering(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_, _ = store.AddLeaderboardScore(ctx, "late", "", 80, t0.Add(time.Hour))
	_, _ = store.AddLeaderboardScore(ctx, "early", "", 80, t0)
	_, _ = store.AddLeaderboardScore(ctx, "top", "", 95, t0.Add(2*time.Hour))
	_, _ = store.AddLeaderboardScore(ctx, "top", "physics", 95, t0.Add(2*time.Hour))

	entries, err := store.ListLeaderboard(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"top", "early", "late"}, []string{entries[0].UserID, entries[1].UserID, entries[2].UserID})

	physics, err := store.ListLeaderboard(ctx, "physics")
	require.NoError(t, err)
	assert.Len(t, physics, 1)
}

func TestLeaderboardAverageTracksTotals(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var e domain.LeaderboardEntry
	for _, s := range []int{80, 70, 65, 43} {
		var err error
		e, err = store.AddLeaderboardScore(ctx, "u1", "", s, now)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, e.TestCount)
	assert.Equal(t, 258, e.TotalScore)
	assert.Equal(t, 65, e.AverageScore)
}

func TestWithinTxRejectsCancelledContext(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.WithinTx(ctx, func(context.Context, app.Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTransientStore)
}
