package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. Units of work run
// serially against a copy of the state which replaces the live state only
// when the work succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

// WithinTx serialises fn with every other unit of work. Calls on the Store
// itself from inside fn would deadlock; fn must use tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}
	work := s.st.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.st = work
	return nil
}

// view runs fn against the live state under the store lock.
func view[T any](s *Store, fn func(st *state) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) exec(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

type ubKey struct{ user, badge string }
type ucKey struct{ user, challenge string }
type boardKey struct{ user, subject string }

type state struct {
	tests          map[string]domain.Test
	questions      map[string]domain.Question
	attempts       map[string]domain.TestAttempt
	assignments    map[string]domain.DPPAssignment
	assignOrder    []string
	practice       map[string]domain.UserDPPStats
	users          map[string]domain.User
	xpEvents       map[string][]domain.XPEvent
	badges         map[string]domain.Badge
	userBadges     map[ubKey]domain.UserBadge
	challenges     map[string]domain.Challenge
	userChallenges map[ucKey]domain.UserChallenge
	board          map[boardKey]domain.LeaderboardEntry
}

func newState() *state {
	return &state{
		tests:          make(map[string]domain.Test),
		questions:      make(map[string]domain.Question),
		attempts:       make(map[string]domain.TestAttempt),
		assignments:    make(map[string]domain.DPPAssignment),
		practice:       make(map[string]domain.UserDPPStats),
		users:          make(map[string]domain.User),
		xpEvents:       make(map[string][]domain.XPEvent),
		badges:         make(map[string]domain.Badge),
		userBadges:     make(map[ubKey]domain.UserBadge),
		challenges:     make(map[string]domain.Challenge),
		userChallenges: make(map[ucKey]domain.UserChallenge),
		board:          make(map[boardKey]domain.LeaderboardEntry),
	}
}

// clone is shallow per record: records are replaced, never mutated in place.
func (st *state) clone() *state {
	return &state{
		tests:          maps.Clone(st.tests),
		questions:      maps.Clone(st.questions),
		attempts:       maps.Clone(st.attempts),
		assignments:    maps.Clone(st.assignments),
		assignOrder:    slices.Clone(st.assignOrder),
		practice:       maps.Clone(st.practice),
		users:          maps.Clone(st.users),
		xpEvents:       maps.Clone(st.xpEvents),
		badges:         maps.Clone(st.badges),
		userBadges:     maps.Clone(st.userBadges),
		challenges:     maps.Clone(st.challenges),
		userChallenges: maps.Clone(st.userChallenges),
		board:          maps.Clone(st.board),
	}
}

// --- catalog ---

func (st *state) GetTest(_ context.Context, testID string) (domain.Test, error) {
	t, ok := st.tests[testID]
	if !ok {
		return domain.Test{}, domain.ErrTestNotFound
	}
	t.QuestionIDs = slices.Clone(t.QuestionIDs)
	return t, nil
}

func (st *state) GetQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := st.questions[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

func (st *state) PutTest(_ context.Context, t domain.Test) error {
	t.QuestionIDs = slices.Clone(t.QuestionIDs)
	st.tests[t.ID] = t
	return nil
}

func (st *state) PutQuestion(_ context.Context, q domain.Question) error {
	st.questions[q.ID] = q
	return nil
}

// --- attempts ---

func (st *state) CreateAttempt(_ context.Context, a domain.TestAttempt) error {
	if _, ok := st.attempts[a.ID]; ok {
		return fmt.Errorf("%w: attempt %s exists", domain.ErrConflict, a.ID)
	}
	a.Answers = maps.Clone(a.Answers)
	st.attempts[a.ID] = a
	return nil
}

func (st *state) GetAttempt(_ context.Context, attemptID string) (domain.TestAttempt, error) {
	a, ok := st.attempts[attemptID]
	if !ok {
		return domain.TestAttempt{}, domain.ErrAttemptNotFound
	}
	a.Answers = maps.Clone(a.Answers)
	a.Details = slices.Clone(a.Details)
	return a, nil
}

func (st *state) ListAttempts(_ context.Context, userID, testID string) ([]domain.TestAttempt, error) {
	var out []domain.TestAttempt
	for _, a := range st.attempts {
		if a.UserID == userID && (testID == "" || a.TestID == testID) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *state) CountFinishedAttempts(_ context.Context, userID string) (int, error) {
	n := 0
	for _, a := range st.attempts {
		if a.UserID == userID && a.FinishedAt != nil {
			n++
		}
	}
	return n, nil
}

func (st *state) SaveAttemptProgress(_ context.Context, attemptID string, answers map[string]domain.Answer) (bool, error) {
	a, ok := st.attempts[attemptID]
	if !ok || a.FinishedAt != nil {
		return false, nil
	}
	a.Answers = maps.Clone(answers)
	st.attempts[attemptID] = a
	return true, nil
}

func (st *state) FinishAttempt(_ context.Context, a domain.TestAttempt) (bool, error) {
	cur, ok := st.attempts[a.ID]
	if !ok || cur.FinishedAt != nil {
		return false, nil
	}
	a.Answers = maps.Clone(a.Answers)
	a.Details = slices.Clone(a.Details)
	st.attempts[a.ID] = a
	return true, nil
}

// --- practice ---

func (st *state) CreateAssignment(_ context.Context, a domain.DPPAssignment) error {
	if _, ok := st.assignments[a.ID]; ok {
		return fmt.Errorf("%w: assignment %s exists", domain.ErrConflict, a.ID)
	}
	for _, other := range st.assignments {
		if other.UserID == a.UserID && other.DPPID == a.DPPID && other.QuestionID == a.QuestionID {
			return domain.ErrAssignmentExists
		}
	}
	st.assignments[a.ID] = a
	st.assignOrder = append(st.assignOrder, a.ID)
	return nil
}

func (st *state) GetAssignment(_ context.Context, assignmentID string) (domain.DPPAssignment, error) {
	a, ok := st.assignments[assignmentID]
	if !ok {
		return domain.DPPAssignment{}, domain.ErrAssignmentNotFound
	}
	return a, nil
}

func (st *state) ListAssignments(_ context.Context, userID string) ([]domain.DPPAssignment, error) {
	var out []domain.DPPAssignment
	for _, id := range st.assignOrder {
		if a := st.assignments[id]; a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (st *state) CompleteAssignment(_ context.Context, a domain.DPPAssignment) (bool, error) {
	cur, ok := st.assignments[a.ID]
	if !ok || cur.Completed {
		return false, nil
	}
	a.Completed = true
	st.assignments[a.ID] = a
	return true, nil
}

func (st *state) GetPracticeStats(_ context.Context, userID string) (domain.UserDPPStats, error) {
	s, ok := st.practice[userID]
	if !ok {
		return domain.UserDPPStats{UserID: userID}, nil
	}
	return s, nil
}

func (st *state) SavePracticeStats(_ context.Context, s domain.UserDPPStats) error {
	st.practice[s.UserID] = s
	return nil
}

// --- users ---

// CreateUser inserts u unless a user with the same id exists.
func (st *state) CreateUser(_ context.Context, u domain.User) error {
	if _, ok := st.users[u.ID]; ok {
		return nil
	}
	if u.Level < 1 {
		u.Level = 1
	}
	st.users[u.ID] = u
	return nil
}

func (st *state) GetUser(_ context.Context, userID string) (domain.User, error) {
	u, ok := st.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (st *state) UpdateUser(_ context.Context, u domain.User) error {
	if _, ok := st.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	st.users[u.ID] = u
	return nil
}

func (st *state) AppendXPEvent(_ context.Context, e domain.XPEvent) error {
	st.xpEvents[e.UserID] = append(slices.Clip(st.xpEvents[e.UserID]), e)
	return nil
}

func (st *state) ListXPEvents(_ context.Context, userID string) ([]domain.XPEvent, error) {
	return slices.Clone(st.xpEvents[userID]), nil
}

// --- rewards ---

func (st *state) PutBadge(_ context.Context, b domain.Badge) error {
	st.badges[b.ID] = b
	return nil
}

func (st *state) GetBadge(_ context.Context, badgeID string) (domain.Badge, error) {
	b, ok := st.badges[badgeID]
	if !ok {
		return domain.Badge{}, domain.ErrBadgeNotFound
	}
	return b, nil
}

func (st *state) ListBadges(_ context.Context) ([]domain.Badge, error) {
	out := slices.Collect(maps.Values(st.badges))
	slices.SortFunc(out, func(a, b domain.Badge) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (st *state) GetUserBadge(_ context.Context, userID, badgeID string) (domain.UserBadge, bool, error) {
	ub, ok := st.userBadges[ubKey{userID, badgeID}]
	return ub, ok, nil
}

func (st *state) SaveUserBadge(_ context.Context, ub domain.UserBadge) error {
	st.userBadges[ubKey{ub.UserID, ub.BadgeID}] = ub
	return nil
}

func (st *state) ListUserBadges(_ context.Context, userID string) ([]domain.UserBadge, error) {
	var out []domain.UserBadge
	for k, ub := range st.userBadges {
		if k.user == userID {
			out = append(out, ub)
		}
	}
	slices.SortFunc(out, func(a, b domain.UserBadge) int { return strings.Compare(a.BadgeID, b.BadgeID) })
	return out, nil
}

func (st *state) PutChallenge(_ context.Context, c domain.Challenge) error {
	st.challenges[c.ID] = c
	return nil
}

func (st *state) GetChallenge(_ context.Context, challengeID string) (domain.Challenge, error) {
	c, ok := st.challenges[challengeID]
	if !ok {
		return domain.Challenge{}, domain.ErrChallengeNotFound
	}
	return c, nil
}

func (st *state) ListChallenges(_ context.Context) ([]domain.Challenge, error) {
	out := slices.Collect(maps.Values(st.challenges))
	slices.SortFunc(out, func(a, b domain.Challenge) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (st *state) GetUserChallenge(_ context.Context, userID, challengeID string) (domain.UserChallenge, bool, error) {
	uc, ok := st.userChallenges[ucKey{userID, challengeID}]
	return uc, ok, nil
}

func (st *state) SaveUserChallenge(_ context.Context, uc domain.UserChallenge) error {
	st.userChallenges[ucKey{uc.UserID, uc.ChallengeID}] = uc
	return nil
}

// --- leaderboard ---

func (st *state) AddLeaderboardScore(_ context.Context, userID, subjectID string, score int, now time.Time) (domain.LeaderboardEntry, error) {
	k := boardKey{userID, subjectID}
	e, ok := st.board[k]
	if !ok {
		e = domain.LeaderboardEntry{UserID: userID, SubjectID: subjectID}
	}
	e.Apply(score, now)
	st.board[k] = e
	return e, nil
}

func (st *state) ListLeaderboard(_ context.Context, subjectID string) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	for k, e := range st.board {
		if k.subject == subjectID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.Before(out[j].LastUpdated)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
