package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is the bun-backed implementation of app.Store.
type Store struct {
	repo
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{repo: repo{db: db}, db: db}
}

// WithinTx runs fn inside a database transaction. Rows read for update inside
// fn are locked until commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx app.Tx) error) error {
	var fnErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		fnErr = fn(ctx, &repo{db: tx, locking: true})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return transient(err)
	}
	return nil
}

// repo implements app.Tx over a bun connection or transaction.
type repo struct {
	db      bun.IDB
	locking bool
}

// forUpdate locks the selected rows when running inside a transaction.
func (r *repo) forUpdate(q *bun.SelectQuery) *bun.SelectQuery {
	if r.locking {
		return q.For("UPDATE")
	}
	return q
}

func transient(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
}

func mapErr(err, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	default:
		return transient(err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, transient(err)
	}
	return n > 0, nil
}

// --- catalog ---

func (r *repo) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	row := new(testRow)
	err := r.db.NewSelect().Model(row).Where("id = ?", testID).Scan(ctx)
	if err != nil {
		return domain.Test{}, mapErr(err, domain.ErrTestNotFound)
	}
	return row.Data, nil
}

func (r *repo) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	var rows []questionRow
	if err := r.db.NewSelect().Model(&rows).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, mapErr(err, domain.ErrQuestionNotFound)
	}
	byID := make(map[string]domain.Question, len(rows))
	for _, row := range rows {
		byID[row.ID] = row.Data
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *repo) PutTest(ctx context.Context, t domain.Test) error {
	_, err := r.db.NewInsert().Model(&testRow{ID: t.ID, Data: t}).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return mapErr(err, domain.ErrTestNotFound)
}

func (r *repo) PutQuestion(ctx context.Context, q domain.Question) error {
	_, err := r.db.NewInsert().Model(&questionRow{ID: q.ID, Data: q}).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	return mapErr(err, domain.ErrQuestionNotFound)
}

// --- attempts ---

func (r *repo) CreateAttempt(ctx context.Context, a domain.TestAttempt) error {
	_, err := r.db.NewInsert().Model(toAttemptRow(a)).Exec(ctx)
	return mapErr(err, domain.ErrAttemptNotFound)
}

func (r *repo) GetAttempt(ctx context.Context, attemptID string) (domain.TestAttempt, error) {
	row := new(attemptRow)
	err := r.db.NewSelect().Model(row).Where("id = ?", attemptID).Scan(ctx)
	if err != nil {
		return domain.TestAttempt{}, mapErr(err, domain.ErrAttemptNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) ListAttempts(ctx context.Context, userID, testID string) ([]domain.TestAttempt, error) {
	var rows []attemptRow
	q := r.db.NewSelect().Model(&rows).Where("user_id = ?", userID)
	if testID != "" {
		q = q.Where("test_id = ?", testID)
	}
	if err := q.OrderExpr("started_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.TestAttempt, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *repo) CountFinishedAttempts(ctx context.Context, userID string) (int, error) {
	n, err := r.db.NewSelect().Model((*attemptRow)(nil)).
		Where("user_id = ?", userID).
		Where("finished_at IS NOT NULL").
		Count(ctx)
	if err != nil {
		return 0, transient(err)
	}
	return n, nil
}

func (r *repo) SaveAttemptProgress(ctx context.Context, attemptID string, answers map[string]domain.Answer) (bool, error) {
	row := &attemptRow{ID: attemptID, Answers: answers}
	if row.Answers == nil {
		row.Answers = map[string]domain.Answer{}
	}
	return affected(r.db.NewUpdate().Model(row).
		Column("answers").
		WherePK().
		Where("finished_at IS NULL").
		Exec(ctx))
}

func (r *repo) FinishAttempt(ctx context.Context, a domain.TestAttempt) (bool, error) {
	return affected(r.db.NewUpdate().Model(toAttemptRow(a)).
		Column("status", "finished_at", "answers", "details", "score", "total_marks", "percentage", "correct_answers", "total_questions").
		WherePK().
		Where("finished_at IS NULL").
		Exec(ctx))
}

// --- practice ---

func (r *repo) CreateAssignment(ctx context.Context, a domain.DPPAssignment) error {
	_, err := r.db.NewInsert().Model(toAssignmentRow(a)).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAssignmentExists
	}
	return mapErr(err, domain.ErrAssignmentNotFound)
}

func (r *repo) GetAssignment(ctx context.Context, assignmentID string) (domain.DPPAssignment, error) {
	row := new(assignmentRow)
	err := r.db.NewSelect().Model(row).Where("id = ?", assignmentID).Scan(ctx)
	if err != nil {
		return domain.DPPAssignment{}, mapErr(err, domain.ErrAssignmentNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) ListAssignments(ctx context.Context, userID string) ([]domain.DPPAssignment, error) {
	var rows []assignmentRow
	if err := r.db.NewSelect().Model(&rows).Where("user_id = ?", userID).OrderExpr("dpp_id ASC, id ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.DPPAssignment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *repo) CompleteAssignment(ctx context.Context, a domain.DPPAssignment) (bool, error) {
	a.Completed = true
	return affected(r.db.NewUpdate().Model(toAssignmentRow(a)).
		Column("completed", "completed_at", "time_spent", "score", "is_correct", "answer").
		WherePK().
		Where("completed = false").
		Exec(ctx))
}

func (r *repo) GetPracticeStats(ctx context.Context, userID string) (domain.UserDPPStats, error) {
	row := new(practiceStatsRow)
	err := r.forUpdate(r.db.NewSelect().Model(row).Where("user_id = ?", userID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserDPPStats{UserID: userID}, nil
	}
	if err != nil {
		return domain.UserDPPStats{}, transient(err)
	}
	return domain.UserDPPStats{
		UserID:          row.UserID,
		TotalAttempts:   row.TotalAttempts,
		CorrectAttempts: row.CorrectAttempts,
		TotalTimeSpent:  row.TotalTimeSpent,
		CurrentStreak:   row.CurrentStreak,
		LongestStreak:   row.LongestStreak,
		LastAttemptedAt: row.LastAttemptedAt,
	}, nil
}

func (r *repo) SavePracticeStats(ctx context.Context, s domain.UserDPPStats) error {
	row := &practiceStatsRow{
		UserID:          s.UserID,
		TotalAttempts:   s.TotalAttempts,
		CorrectAttempts: s.CorrectAttempts,
		TotalTimeSpent:  s.TotalTimeSpent,
		CurrentStreak:   s.CurrentStreak,
		LongestStreak:   s.LongestStreak,
		LastAttemptedAt: s.LastAttemptedAt,
	}
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (user_id) DO UPDATE").
		Set("total_attempts = EXCLUDED.total_attempts").
		Set("correct_attempts = EXCLUDED.correct_attempts").
		Set("total_time_spent = EXCLUDED.total_time_spent").
		Set("current_streak = EXCLUDED.current_streak").
		Set("longest_streak = EXCLUDED.longest_streak").
		Set("last_attempted_at = EXCLUDED.last_attempted_at").
		Exec(ctx)
	return mapErr(err, domain.ErrUserNotFound)
}

// --- users ---

// CreateUser inserts u unless a user with the same id exists, so concurrent
// first requests for a new user do not fail each other.
func (r *repo) CreateUser(ctx context.Context, u domain.User) error {
	if u.Level < 1 {
		u.Level = 1
	}
	_, err := r.db.NewInsert().Model(toUserRow(u)).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	return mapErr(err, domain.ErrUserNotFound)
}

func (r *repo) GetUser(ctx context.Context, userID string) (domain.User, error) {
	row := new(userRow)
	err := r.forUpdate(r.db.NewSelect().Model(row).Where("id = ?", userID)).Scan(ctx)
	if err != nil {
		return domain.User{}, mapErr(err, domain.ErrUserNotFound)
	}
	return domain.User{
		ID:             row.ID,
		Name:           row.Name,
		XP:             row.XP,
		Level:          row.Level,
		CurrentStreak:  row.CurrentStreak,
		LongestStreak:  row.LongestStreak,
		LastActiveDate: row.LastActiveDate,
	}, nil
}

func (r *repo) UpdateUser(ctx context.Context, u domain.User) error {
	ok, err := affected(r.db.NewUpdate().Model(toUserRow(u)).
		Column("name", "xp", "level", "current_streak", "longest_streak", "last_active_date").
		WherePK().
		Exec(ctx))
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func toUserRow(u domain.User) *userRow {
	return &userRow{
		ID:             u.ID,
		Name:           u.Name,
		XP:             u.XP,
		Level:          u.Level,
		CurrentStreak:  u.CurrentStreak,
		LongestStreak:  u.LongestStreak,
		LastActiveDate: u.LastActiveDate,
	}
}

func (r *repo) AppendXPEvent(ctx context.Context, e domain.XPEvent) error {
	_, err := r.db.NewInsert().Model(&xpEventRow{
		ID:        e.ID,
		UserID:    e.UserID,
		Amount:    e.Amount,
		Source:    e.Source,
		Total:     e.Total,
		CreatedAt: e.CreatedAt,
	}).Exec(ctx)
	return mapErr(err, domain.ErrUserNotFound)
}

func (r *repo) ListXPEvents(ctx context.Context, userID string) ([]domain.XPEvent, error) {
	var rows []xpEventRow
	if err := r.db.NewSelect().Model(&rows).Where("user_id = ?", userID).OrderExpr("created_at ASC, total ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.XPEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.XPEvent{
			ID:        row.ID,
			UserID:    row.UserID,
			Amount:    row.Amount,
			Source:    row.Source,
			Total:     row.Total,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// --- rewards ---

func (r *repo) PutBadge(ctx context.Context, b domain.Badge) error {
	_, err := r.db.NewInsert().Model(&badgeRow{
		ID:            b.ID,
		Name:          b.Name,
		Description:   b.Description,
		Metric:        string(b.Metric),
		RequiredValue: b.RequiredValue,
		XPReward:      b.XPReward,
	}).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("metric = EXCLUDED.metric").
		Set("required_value = EXCLUDED.required_value").
		Set("xp_reward = EXCLUDED.xp_reward").
		Exec(ctx)
	return mapErr(err, domain.ErrBadgeNotFound)
}

func (r *repo) GetBadge(ctx context.Context, badgeID string) (domain.Badge, error) {
	row := new(badgeRow)
	if err := r.db.NewSelect().Model(row).Where("id = ?", badgeID).Scan(ctx); err != nil {
		return domain.Badge{}, mapErr(err, domain.ErrBadgeNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	var rows []badgeRow
	if err := r.db.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.Badge, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (row *badgeRow) toDomain() domain.Badge {
	return domain.Badge{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		Metric:        domain.Metric(row.Metric),
		RequiredValue: row.RequiredValue,
		XPReward:      row.XPReward,
	}
}

func (r *repo) GetUserBadge(ctx context.Context, userID, badgeID string) (domain.UserBadge, bool, error) {
	row := new(userBadgeRow)
	err := r.forUpdate(r.db.NewSelect().Model(row).Where("user_id = ? AND badge_id = ?", userID, badgeID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserBadge{}, false, nil
	}
	if err != nil {
		return domain.UserBadge{}, false, transient(err)
	}
	return domain.UserBadge{
		UserID:     row.UserID,
		BadgeID:    row.BadgeID,
		IsUnlocked: row.IsUnlocked,
		Progress:   row.Progress,
		EarnedAt:   row.EarnedAt,
	}, true, nil
}

// SaveUserBadge never reverts an unlocked row.
func (r *repo) SaveUserBadge(ctx context.Context, ub domain.UserBadge) error {
	_, err := r.db.NewInsert().Model(&userBadgeRow{
		UserID:     ub.UserID,
		BadgeID:    ub.BadgeID,
		IsUnlocked: ub.IsUnlocked,
		Progress:   ub.Progress,
		EarnedAt:   ub.EarnedAt,
	}).
		On("CONFLICT (user_id, badge_id) DO UPDATE").
		Set("is_unlocked = EXCLUDED.is_unlocked").
		Set("progress = EXCLUDED.progress").
		Set("earned_at = EXCLUDED.earned_at").
		Where("ub.is_unlocked = false").
		Exec(ctx)
	return mapErr(err, domain.ErrBadgeNotFound)
}

func (r *repo) ListUserBadges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	var rows []userBadgeRow
	if err := r.db.NewSelect().Model(&rows).Where("user_id = ?", userID).OrderExpr("badge_id ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.UserBadge, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.UserBadge{
			UserID:     row.UserID,
			BadgeID:    row.BadgeID,
			IsUnlocked: row.IsUnlocked,
			Progress:   row.Progress,
			EarnedAt:   row.EarnedAt,
		})
	}
	return out, nil
}

func (r *repo) PutChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := r.db.NewInsert().Model(&challengeRow{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Metric:        string(c.Metric),
		RequiredValue: c.RequiredValue,
		XPReward:      c.XPReward,
		BadgeID:       c.BadgeID,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
	}).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("description = EXCLUDED.description").
		Set("metric = EXCLUDED.metric").
		Set("required_value = EXCLUDED.required_value").
		Set("xp_reward = EXCLUDED.xp_reward").
		Set("badge_id = EXCLUDED.badge_id").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Exec(ctx)
	return mapErr(err, domain.ErrChallengeNotFound)
}

func (r *repo) GetChallenge(ctx context.Context, challengeID string) (domain.Challenge, error) {
	row := new(challengeRow)
	if err := r.db.NewSelect().Model(row).Where("id = ?", challengeID).Scan(ctx); err != nil {
		return domain.Challenge{}, mapErr(err, domain.ErrChallengeNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) ListChallenges(ctx context.Context) ([]domain.Challenge, error) {
	var rows []challengeRow
	if err := r.db.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, transient(err)
	}
	out := make([]domain.Challenge, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (row *challengeRow) toDomain() domain.Challenge {
	return domain.Challenge{
		ID:            row.ID,
		Name:          row.Name,
		Description:   row.Description,
		Metric:        domain.Metric(row.Metric),
		RequiredValue: row.RequiredValue,
		XPReward:      row.XPReward,
		BadgeID:       row.BadgeID,
		StartDate:     row.StartDate,
		EndDate:       row.EndDate,
	}
}

func (r *repo) GetUserChallenge(ctx context.Context, userID, challengeID string) (domain.UserChallenge, bool, error) {
	row := new(userChallengeRow)
	err := r.forUpdate(r.db.NewSelect().Model(row).Where("user_id = ? AND challenge_id = ?", userID, challengeID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserChallenge{}, false, nil
	}
	if err != nil {
		return domain.UserChallenge{}, false, transient(err)
	}
	return domain.UserChallenge{
		UserID:      row.UserID,
		ChallengeID: row.ChallengeID,
		Progress:    row.Progress,
		IsCompleted: row.IsCompleted,
		CompletedAt: row.CompletedAt,
	}, true, nil
}

func (r *repo) SaveUserChallenge(ctx context.Context, uc domain.UserChallenge) error {
	_, err := r.db.NewInsert().Model(&userChallengeRow{
		UserID:      uc.UserID,
		ChallengeID: uc.ChallengeID,
		Progress:    uc.Progress,
		IsCompleted: uc.IsCompleted,
		CompletedAt: uc.CompletedAt,
	}).
		On("CONFLICT (user_id, challenge_id) DO UPDATE").
		Set("progress = EXCLUDED.progress").
		Set("is_completed = EXCLUDED.is_completed").
		Set("completed_at = EXCLUDED.completed_at").
		Where("uc.is_completed = false").
		Exec(ctx)
	return mapErr(err, domain.ErrChallengeNotFound)
}

// --- leaderboard ---

// AddLeaderboardScore is a single upsert so concurrent submissions never lose
// an increment; the average is recomputed from the new totals in the same statement.
func (r *repo) AddLeaderboardScore(ctx context.Context, userID, subjectID string, score int, now time.Time) (domain.LeaderboardEntry, error) {
	row := &leaderboardRow{
		UserID:       userID,
		SubjectID:    subjectID,
		TestCount:    1,
		TotalScore:   score,
		AverageScore: score,
		LastUpdated:  now,
	}
	_, err := r.db.NewInsert().Model(row).
		On("CONFLICT (user_id, subject_id) DO UPDATE").
		Set("test_count = le.test_count + 1").
		Set("total_score = le.total_score + EXCLUDED.total_score").
		Set("average_score = round((le.total_score + EXCLUDED.total_score)::numeric / (le.test_count + 1))").
		Set("last_updated = EXCLUDED.last_updated").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.LeaderboardEntry{}, transient(err)
	}
	return row.toDomain(), nil
}

func (r *repo) ListLeaderboard(ctx context.Context, subjectID string) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := r.db.NewSelect().Model(&rows).
		Where("subject_id = ?", subjectID).
		OrderExpr("total_score DESC, last_updated ASC, user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, transient(err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}
