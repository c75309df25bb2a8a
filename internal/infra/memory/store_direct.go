package memory

import (
	"context"
	"time"

	"exam-ledger-service/internal/domain"
)

// Outside a unit of work every call is atomic on its own.

func (s *Store) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	return view(s, func(st *state) (domain.Test, error) { return st.GetTest(ctx, testID) })
}

func (s *Store) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	return view(s, func(st *state) ([]domain.Question, error) { return st.GetQuestions(ctx, ids) })
}

func (s *Store) PutTest(ctx context.Context, t domain.Test) error {
	return s.exec(func(st *state) error { return st.PutTest(ctx, t) })
}

func (s *Store) PutQuestion(ctx context.Context, q domain.Question) error {
	return s.exec(func(st *state) error { return st.PutQuestion(ctx, q) })
}

func (s *Store) CreateAttempt(ctx context.Context, a domain.TestAttempt) error {
	return s.exec(func(st *state) error { return st.CreateAttempt(ctx, a) })
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.TestAttempt, error) {
	return view(s, func(st *state) (domain.TestAttempt, error) { return st.GetAttempt(ctx, attemptID) })
}

func (s *Store) ListAttempts(ctx context.Context, userID, testID string) ([]domain.TestAttempt, error) {
	return view(s, func(st *state) ([]domain.TestAttempt, error) { return st.ListAttempts(ctx, userID, testID) })
}

func (s *Store) CountFinishedAttempts(ctx context.Context, userID string) (int, error) {
	return view(s, func(st *state) (int, error) { return st.CountFinishedAttempts(ctx, userID) })
}

func (s *Store) SaveAttemptProgress(ctx context.Context, attemptID string, answers map[string]domain.Answer) (bool, error) {
	return view(s, func(st *state) (bool, error) { return st.SaveAttemptProgress(ctx, attemptID, answers) })
}

func (s *Store) FinishAttempt(ctx context.Context, a domain.TestAttempt) (bool, error) {
	return view(s, func(st *state) (bool, error) { return st.FinishAttempt(ctx, a) })
}

func (s *Store) CreateAssignment(ctx context.Context, a domain.DPPAssignment) error {
	return s.exec(func(st *state) error { return st.CreateAssignment(ctx, a) })
}

func (s *Store) GetAssignment(ctx context.Context, assignmentID string) (domain.DPPAssignment, error) {
	return view(s, func(st *state) (domain.DPPAssignment, error) { return st.GetAssignment(ctx, assignmentID) })
}

func (s *Store) ListAssignments(ctx context.Context, userID string) ([]domain.DPPAssignment, error) {
	return view(s, func(st *state) ([]domain.DPPAssignment, error) { return st.ListAssignments(ctx, userID) })
}

func (s *Store) CompleteAssignment(ctx context.Context, a domain.DPPAssignment) (bool, error) {
	return view(s, func(st *state) (bool, error) { return st.CompleteAssignment(ctx, a) })
}

func (s *Store) GetPracticeStats(ctx context.Context, userID string) (domain.UserDPPStats, error) {
	return view(s, func(st *state) (domain.UserDPPStats, error) { return st.GetPracticeStats(ctx, userID) })
}

func (s *Store) SavePracticeStats(ctx context.Context, ps domain.UserDPPStats) error {
	return s.exec(func(st *state) error { return st.SavePracticeStats(ctx, ps) })
}

func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	return s.exec(func(st *state) error { return st.CreateUser(ctx, u) })
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return view(s, func(st *state) (domain.User, error) { return st.GetUser(ctx, userID) })
}

func (s *Store) UpdateUser(ctx context.Context, u domain.User) error {
	return s.exec(func(st *state) error { return st.UpdateUser(ctx, u) })
}

func (s *Store) AppendXPEvent(ctx context.Context, e domain.XPEvent) error {
	return s.exec(func(st *state) error { return st.AppendXPEvent(ctx, e) })
}

func (s *Store) ListXPEvents(ctx context.Context, userID string) ([]domain.XPEvent, error) {
	return view(s, func(st *state) ([]domain.XPEvent, error) { return st.ListXPEvents(ctx, userID) })
}

func (s *Store) PutBadge(ctx context.Context, b domain.Badge) error {
	return s.exec(func(st *state) error { return st.PutBadge(ctx, b) })
}

func (s *Store) GetBadge(ctx context.Context, badgeID string) (domain.Badge, error) {
	return view(s, func(st *state) (domain.Badge, error) { return st.GetBadge(ctx, badgeID) })
}

func (s *Store) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	return view(s, func(st *state) ([]domain.Badge, error) { return st.ListBadges(ctx) })
}

func (s *Store) SaveUserBadge(ctx context.Context, ub domain.UserBadge) error {
	return s.exec(func(st *state) error { return st.SaveUserBadge(ctx, ub) })
}

func (s *Store) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	return view(s, func(st *state) ([]domain.UserBadge, error) { return st.ListUserBadges(ctx, userID) })
}

func (s *Store) PutChallenge(ctx context.Context, c domain.Challenge) error {
	return s.exec(func(st *state) error { return st.PutChallenge(ctx, c) })
}

func (s *Store) GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	return view(s, func(st *state) (domain.Challenge, error) { return st.GetChallenge(ctx, challengeID) })
}

func (s *Store) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	return view(s, func(st *state) ([]domain.Challenge, error) { return st.ListChallenges(ctx) })
}

func (s *Store) SaveUserChallenge(ctx context.Context, uc domain.UserChallenge) error {
	return s.exec(func(st *state) error { return st.SaveUserChallenge(ctx, uc) })
}

func (s *Store) AddLeaderboardScore(ctx context.Context, userID, subjectID string, score int, now time.Time) (domain.LeaderboardEntry, error) {
	return view(s, func(st *state) (domain.LeaderboardEntry, error) { return st.AddLeaderboardScore(ctx, userID, subjectID, score, now) })
}

func (s *Store) ListLeaderboard(ctx context.Context, subjectID string) ([]domain.LeaderboardEntry, error) {
	return view(s, func(st *state) ([]domain.LeaderboardEntry, error) { return st.ListLeaderboard(ctx, subjectID) })
}

func (s *Store) GetUserBadge(ctx context.Context, userID, badgeID string) (domain.UserBadge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserBadge(ctx, userID, badgeID)
}

func (s *Store) GetUserChallenge(ctx context.Context, userID, challengeID string) (domain.UserChallenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserChallenge(ctx, userID, challengeID)
}
