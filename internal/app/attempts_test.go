package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitGradesAndRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptInProgress, attempt.Status)
	assert.Equal(t, 2, attempt.TotalQuestions)

	f.clock.Advance(3 * time.Minute)
	res, err := svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{
		"q-add":     domain.TextAnswer("4"),
		"q-capital": domain.TextAnswer(" paris "),
	}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSubmitted, res.Status)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 2, res.CorrectAnswers)
	assert.Equal(t, 100.0, res.Percentage)
	require.Len(t, res.GradedQuestions, 2)
	assert.Equal(t, "4", res.GradedQuestions[0].CorrectAnswer)

	user, err := f.services.Ledger.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 30, user.XP)
	assert.Equal(t, 1, user.CurrentStreak)

	global, err := f.services.Leaderboard.Rank(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 100, global.TotalScore)
	subject, err := f.services.Leaderboard.Rank(ctx, "u1", "general")
	require.NoError(t, err)
	assert.Equal(t, 1, subject.TestCount)

	assert.Len(t, f.notes.ofType(domain.NotifyTestSubmitted), 1)
}

// 2 one-mark questions, one right and one wrong, time runs out.
func TestAutoSubmitAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	progress, err := svc.SaveProgress(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")})
	require.NoError(t, err)
	assert.Equal(t, 9, progress.RemainingMinutes)
	assert.False(t, progress.AutoSubmitted)

	f.clock.Advance(10 * time.Minute)
	progress, err = svc.SaveProgress(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-capital": domain.TextAnswer("Lyon")})
	require.NoError(t, err)
	require.True(t, progress.AutoSubmitted)
	require.NotNil(t, progress.Submission)
	assert.Equal(t, 50.0, progress.Submission.Percentage)
	assert.Equal(t, domain.AttemptAutoSubmitted, progress.Submission.Status)

	view, err := svc.Get(ctx, "u1", attempt.ID)
	require.NoError(t, err)
	require.NotNil(t, view.FinishedAt)
	assert.Equal(t, domain.AttemptAutoSubmitted, view.Status)
	assert.Equal(t, t0.Add(11*time.Minute), *view.FinishedAt)
}

func TestManualSubmitPastDeadlineIsAutoSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attempt, err := f.services.Attempts.Start(ctx, "u1", "quiz")
	require.NoError(t, err)
	f.clock.Advance(15 * time.Minute)

	res, err := f.services.Attempts.Submit(ctx, "u1", attempt.ID, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptAutoSubmitted, res.Status)
	assert.Equal(t, 0.0, res.Percentage)
}

func TestSubmitTwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")}, false)
	require.NoError(t, err)
	before, _ := f.services.Ledger.User(ctx, "u1")

	_, err = svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-capital": domain.TextAnswer("Paris")}, false)
	require.ErrorIs(t, err, domain.ErrAlreadySubmitted)
	assert.ErrorIs(t, err, domain.ErrConflict)

	after, _ := f.services.Ledger.User(ctx, "u1")
	assert.Equal(t, before.XP, after.XP)
	entry, err := f.services.Leaderboard.Rank(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TestCount)
	stored, _ := svc.Get(ctx, "u1", attempt.ID)
	assert.Equal(t, 1, stored.Score)
}

func TestConcurrentSubmitHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts
	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")}, false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrAlreadySubmitted):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
	user, _ := f.services.Ledger.User(ctx, "u1")
	assert.Equal(t, 25, user.XP)
	events, _ := f.services.Ledger.History(ctx, "u1")
	assert.Len(t, events, 1)
}

func TestTransientFailureLeavesAttemptOpen(t *testing.T) {
	mem := memory.NewStore()
	seedCatalog(t, mem)
	store := &failingStore{Store: mem}
	f := newFixtureWithStore(t, mem, store)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)

	store.fail = true
	_, err = svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")}, false)
	require.ErrorIs(t, err, domain.ErrTransientStore)

	view, err := svc.Get(ctx, "u1", attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptInProgress, view.Status)
	assert.Nil(t, view.FinishedAt)
	user, _ := f.services.Ledger.User(ctx, "u1")
	assert.Zero(t, user.XP)
	assert.Empty(t, f.notes.ofType(domain.NotifyTestSubmitted))

	store.fail = false
	res, err := svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")}, false)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptSubmitted, res.Status)
}

func TestNotifierFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(t)
	f.notes.err = errors.New("socket closed")
	ctx := context.Background()

	attempt, err := f.services.Attempts.Start(ctx, "u1", "quiz")
	require.NoError(t, err)
	_, err = f.services.Attempts.Submit(ctx, "u1", attempt.ID, nil, false)
	require.NoError(t, err)

	view, _ := f.services.Attempts.Get(ctx, "u1", attempt.ID)
	assert.Equal(t, domain.AttemptSubmitted, view.Status)
}

func TestStartRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	_, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)
	_, err = svc.Start(ctx, "u1", "quiz")
	assert.ErrorIs(t, err, domain.ErrAttemptExists)

	first, err := svc.Start(ctx, "u1", "retake")
	require.NoError(t, err)
	second, err := svc.Start(ctx, "u1", "retake")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = svc.Start(ctx, "u1", "untimed")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Start(ctx, "u1", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAttemptsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "quiz")
	require.NoError(t, err)

	_, err = svc.Get(ctx, "intruder", attempt.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Submit(ctx, "intruder", attempt.ID, nil, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.SaveProgress(ctx, "intruder", attempt.ID, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveProgressOnFinishedAttemptIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "retake")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "u1", attempt.ID, nil, false)
	require.NoError(t, err)

	_, err = svc.SaveProgress(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmitMergesSavedProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := f.services.Attempts

	attempt, err := svc.Start(ctx, "u1", "retake")
	require.NoError(t, err)
	_, err = svc.SaveProgress(ctx, "u1", attempt.ID, map[string]domain.Answer{
		"q-add":    domain.TextAnswer("3"),
		"q-primes": domain.ChoicesAnswer("5", "2", "3"),
	})
	require.NoError(t, err)

	res, err := svc.Submit(ctx, "u1", attempt.ID, map[string]domain.Answer{"q-add": domain.TextAnswer("4")}, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 3, res.TotalMarks)
	assert.Equal(t, 2, res.CorrectAnswers)
}
