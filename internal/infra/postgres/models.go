package postgres

import (
	"time"

	"exam-ledger-service/internal/domain"
	"github.com/uptrace/bun"
)

// Catalog content is stored as JSONB documents, one row per test or question.
type testRow struct {
	bun.BaseModel `bun:"table:catalog_tests,alias:ct"`

	ID   string      `bun:"id,pk"`
	Data domain.Test `bun:"data,type:jsonb"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:catalog_questions,alias:cq"`

	ID   string          `bun:"id,pk"`
	Data domain.Question `bun:"data,type:jsonb"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:test_attempts,alias:ta"`

	ID             string                   `bun:"id,pk"`
	TestID         string                   `bun:"test_id,notnull"`
	UserID         string                   `bun:"user_id,notnull"`
	Status         string                   `bun:"status,notnull"`
	StartedAt      time.Time                `bun:"started_at,notnull"`
	FinishedAt     *time.Time               `bun:"finished_at"`
	Answers        map[string]domain.Answer `bun:"answers,type:jsonb,notnull"`
	Details        []domain.AnswerRecord    `bun:"details,type:jsonb,notnull"`
	Score          int                      `bun:"score,notnull"`
	TotalMarks     int                      `bun:"total_marks,notnull"`
	Percentage     float64                  `bun:"percentage,notnull"`
	CorrectAnswers int                      `bun:"correct_answers,notnull"`
	TotalQuestions int                      `bun:"total_questions,notnull"`
}

func toAttemptRow(a domain.TestAttempt) *attemptRow {
	answers := a.Answers
	if answers == nil {
		answers = map[string]domain.Answer{}
	}
	details := a.Details
	if details == nil {
		details = []domain.AnswerRecord{}
	}
	return &attemptRow{
		ID:             a.ID,
		TestID:         a.TestID,
		UserID:         a.UserID,
		Status:         string(a.Status),
		StartedAt:      a.StartedAt,
		FinishedAt:     a.FinishedAt,
		Answers:        answers,
		Details:        details,
		Score:          a.Score,
		TotalMarks:     a.TotalMarks,
		Percentage:     a.Percentage,
		CorrectAnswers: a.CorrectAnswers,
		TotalQuestions: a.TotalQuestions,
	}
}

func (r *attemptRow) toDomain() domain.TestAttempt {
	return domain.TestAttempt{
		ID:             r.ID,
		TestID:         r.TestID,
		UserID:         r.UserID,
		Status:         domain.AttemptStatus(r.Status),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Answers:        r.Answers,
		Details:        r.Details,
		Score:          r.Score,
		TotalMarks:     r.TotalMarks,
		Percentage:     r.Percentage,
		CorrectAnswers: r.CorrectAnswers,
		TotalQuestions: r.TotalQuestions,
	}
}

type assignmentRow struct {
	bun.BaseModel `bun:"table:dpp_assignments,alias:da"`

	ID          string         `bun:"id,pk"`
	UserID      string         `bun:"user_id,notnull"`
	QuestionID  string         `bun:"question_id,notnull"`
	DPPID       string         `bun:"dpp_id,notnull"`
	Completed   bool           `bun:"completed,notnull"`
	CompletedAt *time.Time     `bun:"completed_at"`
	TimeSpent   int            `bun:"time_spent,notnull"`
	Score       int            `bun:"score,notnull"`
	IsCorrect   bool           `bun:"is_correct,notnull"`
	Answer      *domain.Answer `bun:"answer,type:jsonb"`
}

func toAssignmentRow(a domain.DPPAssignment) *assignmentRow {
	return &assignmentRow{
		ID:          a.ID,
		UserID:      a.UserID,
		QuestionID:  a.QuestionID,
		DPPID:       a.DPPID,
		Completed:   a.Completed,
		CompletedAt: a.CompletedAt,
		TimeSpent:   a.TimeSpent,
		Score:       a.Score,
		IsCorrect:   a.IsCorrect,
		Answer:      a.Answer,
	}
}

func (r *assignmentRow) toDomain() domain.DPPAssignment {
	return domain.DPPAssignment{
		ID:          r.ID,
		UserID:      r.UserID,
		QuestionID:  r.QuestionID,
		DPPID:       r.DPPID,
		Completed:   r.Completed,
		CompletedAt: r.CompletedAt,
		TimeSpent:   r.TimeSpent,
		Score:       r.Score,
		IsCorrect:   r.IsCorrect,
		Answer:      r.Answer,
	}
}

type practiceStatsRow struct {
	bun.BaseModel `bun:"table:user_dpp_stats,alias:ds"`

	UserID          string     `bun:"user_id,pk"`
	TotalAttempts   int        `bun:"total_attempts,notnull"`
	CorrectAttempts int        `bun:"correct_attempts,notnull"`
	TotalTimeSpent  int        `bun:"total_time_spent,notnull"`
	CurrentStreak   int        `bun:"current_streak,notnull"`
	LongestStreak   int        `bun:"longest_streak,notnull"`
	LastAttemptedAt *time.Time `bun:"last_attempted_at"`
}

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID             string     `bun:"id,pk"`
	Name           string     `bun:"name,notnull"`
	XP             int        `bun:"xp,notnull"`
	Level          int        `bun:"level,notnull"`
	CurrentStreak  int        `bun:"current_streak,notnull"`
	LongestStreak  int        `bun:"longest_streak,notnull"`
	LastActiveDate *time.Time `bun:"last_active_date"`
}

type xpEventRow struct {
	bun.BaseModel `bun:"table:xp_events,alias:xe"`

	ID        string    `bun:"id,pk"`
	UserID    string    `bun:"user_id,notnull"`
	Amount    int       `bun:"amount,notnull"`
	Source    string    `bun:"source,notnull"`
	Total     int       `bun:"total,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type badgeRow struct {
	bun.BaseModel `bun:"table:badges,alias:b"`

	ID            string `bun:"id,pk"`
	Name          string `bun:"name,notnull"`
	Description   string `bun:"description,notnull"`
	Metric        string `bun:"metric,notnull"`
	RequiredValue int    `bun:"required_value,notnull"`
	XPReward      int    `bun:"xp_reward,notnull"`
}

type userBadgeRow struct {
	bun.BaseModel `bun:"table:user_badges,alias:ub"`

	UserID     string     `bun:"user_id,pk"`
	BadgeID    string     `bun:"badge_id,pk"`
	IsUnlocked bool       `bun:"is_unlocked,notnull"`
	Progress   int        `bun:"progress,notnull"`
	EarnedAt   *time.Time `bun:"earned_at"`
}

type challengeRow struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name,notnull"`
	Description   string    `bun:"description,notnull"`
	Metric        string    `bun:"metric,notnull"`
	RequiredValue int       `bun:"required_value,notnull"`
	XPReward      int       `bun:"xp_reward,notnull"`
	BadgeID       string    `bun:"badge_id,notnull"`
	StartDate     time.Time `bun:"start_date,nullzero"`
	EndDate       time.Time `bun:"end_date,nullzero"`
}

type userChallengeRow struct {
	bun.BaseModel `bun:"table:user_challenges,alias:uc"`

	UserID      string     `bun:"user_id,pk"`
	ChallengeID string     `bun:"challenge_id,pk"`
	Progress    int        `bun:"progress,notnull"`
	IsCompleted bool       `bun:"is_completed,notnull"`
	CompletedAt *time.Time `bun:"completed_at"`
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	UserID       string    `bun:"user_id,pk"`
	SubjectID    string    `bun:"subject_id,pk"`
	TestCount    int       `bun:"test_count,notnull"`
	TotalScore   int       `bun:"total_score,notnull"`
	AverageScore int       `bun:"average_score,notnull"`
	LastUpdated  time.Time `bun:"last_updated,notnull"`
}

func (r *leaderboardRow) toDomain() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		UserID:       r.UserID,
		SubjectID:    r.SubjectID,
		TestCount:    r.TestCount,
		TotalScore:   r.TotalScore,
		AverageScore: r.AverageScore,
		LastUpdated:  r.LastUpdated,
	}
}
