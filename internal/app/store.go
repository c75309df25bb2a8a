package app

import (
	"context"
	"time"

	"exam-ledger-service/internal/domain"
)

// Catalog loads read-only test content (from cache/backing store).
type Catalog interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
	// GetQuestions returns the questions in the order of ids.
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// CatalogRepository is the writable side of the catalog, used for seeding.
type CatalogRepository interface {
	Catalog
	PutTest(ctx context.Context, t domain.Test) error
	PutQuestion(ctx context.Context, q domain.Question) error
}

// AttemptRepository persists test attempts. State changes are conditional:
// the returned bool is false when the precondition no longer held.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, a domain.TestAttempt) error
	GetAttempt(ctx context.Context, attemptID string) (domain.TestAttempt, error)
	ListAttempts(ctx context.Context, userID, testID string) ([]domain.TestAttempt, error)
	CountFinishedAttempts(ctx context.Context, userID string) (int, error)
	// SaveAttemptProgress stores answers only while the attempt is unfinished.
	SaveAttemptProgress(ctx context.Context, attemptID string, answers map[string]domain.Answer) (bool, error)
	// FinishAttempt writes the graded attempt only if finished_at is still unset.
	FinishAttempt(ctx context.Context, a domain.TestAttempt) (bool, error)
}

// PracticeRepository persists daily practice assignments and stats.
type PracticeRepository interface {
	CreateAssignment(ctx context.Context, a domain.DPPAssignment) error
	GetAssignment(ctx context.Context, assignmentID string) (domain.DPPAssignment, error)
	ListAssignments(ctx context.Context, userID string) ([]domain.DPPAssignment, error)
	// CompleteAssignment flips completed false->true; false when it was already completed.
	CompleteAssignment(ctx context.Context, a domain.DPPAssignment) (bool, error)
	// GetPracticeStats returns zeroed stats for users without any attempt.
	GetPracticeStats(ctx context.Context, userID string) (domain.UserDPPStats, error)
	SavePracticeStats(ctx context.Context, s domain.UserDPPStats) error
}

// UserRepository persists gamification fields and the XP audit trail.
type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, userID string) (domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	AppendXPEvent(ctx context.Context, e domain.XPEvent) error
	ListXPEvents(ctx context.Context, userID string) ([]domain.XPEvent, error)
}

// RewardRepository persists badge and challenge catalogs and their per-user rows.
type RewardRepository interface {
	PutBadge(ctx context.Context, b domain.Badge) error
	GetBadge(ctx context.Context, badgeID string) (domain.Badge, error)
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	GetUserBadge(ctx context.Context, userID, badgeID string) (domain.UserBadge, bool, error)
	// SaveUserBadge upserts by (UserID, BadgeID).
	SaveUserBadge(ctx context.Context, ub domain.UserBadge) error
	ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error)

	PutChallenge(ctx context.Context, c domain.Challenge) error
	GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error)
	ListChallenges(ctx context.Context) ([]domain.Challenge, error)
	GetUserChallenge(ctx context.Context, userID, challengeID string) (domain.UserChallenge, bool, error)
	// SaveUserChallenge upserts by (UserID, ChallengeID).
	SaveUserChallenge(ctx context.Context, uc domain.UserChallenge) error
}

// LeaderboardRepository maintains running aggregates keyed by (userID, subjectID).
type LeaderboardRepository interface {
	// AddLeaderboardScore upserts the entry, incrementing count and total and
	// recomputing the rounded average in the same write.
	AddLeaderboardScore(ctx context.Context, userID, subjectID string, score int, now time.Time) (domain.LeaderboardEntry, error)
	// ListLeaderboard returns entries ordered by total desc, last update asc, user id asc.
	ListLeaderboard(ctx context.Context, subjectID string) ([]domain.LeaderboardEntry, error)
}

// Tx is the set of repositories visible inside a unit of work.
type Tx interface {
	CatalogRepository
	AttemptRepository
	PracticeRepository
	UserRepository
	RewardRepository
	LeaderboardRepository
}

// Store is the persistence collaborator. WithinTx commits everything fn did
// or nothing; any error returned by fn rolls the unit of work back.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier is a fire-and-forget sink; failures never undo committed work.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
