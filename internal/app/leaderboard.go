package app

import (
	"context"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
)

// Leaderboard maintains per-user score aggregates, globally and per subject.
type Leaderboard struct {
	store Store
	now   func() time.Time
	log   *logger.Logger
}

func NewLeaderboard(store Store, now func() time.Time, log *logger.Logger) *Leaderboard {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Leaderboard{store: store, now: now, log: log.With("service", "leaderboard")}
}

// Standing is an entry with its 1-based position.
type Standing struct {
	domain.LeaderboardEntry
	Rank int `json:"rank"`
}

// RecordScore adds one score to the user's entry. subjectID "" is the global board.
func (b *Leaderboard) RecordScore(ctx context.Context, userID string, score int, subjectID string) (domain.LeaderboardEntry, error) {
	return b.store.AddLeaderboardScore(ctx, userID, subjectID, score, b.now())
}

// Rank returns the user's position; users without an entry are ErrNotRanked.
func (b *Leaderboard) Rank(ctx context.Context, userID, subjectID string) (Standing, error) {
	entries, err := b.store.ListLeaderboard(ctx, subjectID)
	if err != nil {
		return Standing{}, err
	}
	for i, e := range entries {
		if e.UserID == userID {
			return Standing{LeaderboardEntry: e, Rank: i + 1}, nil
		}
	}
	return Standing{}, domain.ErrNotRanked
}

// Top returns the first limit standings of a board.
func (b *Leaderboard) Top(ctx context.Context, subjectID string, limit int) ([]Standing, error) {
	entries, err := b.store.ListLeaderboard(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]Standing, 0, len(entries))
	for i, e := range entries {
		out = append(out, Standing{LeaderboardEntry: e, Rank: i + 1})
	}
	return out, nil
}

// recordTestScore writes the global board and, when the test has one, the subject board.
func (b *Leaderboard) recordTestScore(ctx context.Context, tx Tx, userID, subjectID string, score int, now time.Time) error {
	if _, err := tx.AddLeaderboardScore(ctx, userID, "", score, now); err != nil {
		return err
	}
	if subjectID == "" {
		return nil
	}
	_, err := tx.AddLeaderboardScore(ctx, userID, subjectID, score, now)
	return err
}
