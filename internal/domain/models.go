package domain

import "time"

// QuestionType selects how a question is graded.
type QuestionType string

const (
	QuestionSingle     QuestionType = "single"
	QuestionMultiple   QuestionType = "multiple"
	QuestionSubjective QuestionType = "subjective"
)

// Difficulty drives the base score of practice questions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is shared, read-only content referenced by attempts and assignments.
type Question struct {
	ID             string       `json:"id" yaml:"id"`
	SubjectID      string       `json:"subjectId,omitempty" yaml:"subjectId"`
	TopicID        string       `json:"topicId,omitempty" yaml:"topicId"`
	Text           string       `json:"text" yaml:"text"`
	Type           QuestionType `json:"type" yaml:"type"`
	Options        []string     `json:"options,omitempty" yaml:"options"`
	CorrectAnswers []string     `json:"correctAnswers" yaml:"correctAnswers"`
	Difficulty     Difficulty   `json:"difficulty" yaml:"difficulty"`
	Marks          int          `json:"marks" yaml:"marks"` // defaults to 1 if zero
	Explanation    string       `json:"explanation,omitempty" yaml:"explanation"`
}

// MarksOrDefault returns the marks a correct answer is worth.
func (q Question) MarksOrDefault() int {
	if q.Marks <= 0 {
		return 1
	}
	return q.Marks
}

// Test is a timed collection of questions.
type Test struct {
	ID                    string   `json:"id" yaml:"id"`
	Title                 string   `json:"title" yaml:"title"`
	SubjectID             string   `json:"subjectId,omitempty" yaml:"subjectId"`
	DurationMinutes       int      `json:"durationMinutes" yaml:"durationMinutes"`
	QuestionIDs           []string `json:"questionIds" yaml:"questionIds"`
	AllowMultipleAttempts bool     `json:"allowMultipleAttempts" yaml:"allowMultipleAttempts"`
}

// AttemptStatus is the lifecycle state of a TestAttempt.
type AttemptStatus string

const (
	AttemptNotStarted    AttemptStatus = "not_started"
	AttemptInProgress    AttemptStatus = "in_progress"
	AttemptSubmitted     AttemptStatus = "submitted"
	AttemptAutoSubmitted AttemptStatus = "auto_submitted"
)

// Terminal reports whether no further transition is allowed.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSubmitted || s == AttemptAutoSubmitted
}

// AnswerRecord is the graded outcome of one question inside an attempt.
type AnswerRecord struct {
	QuestionID     string `json:"questionId"`
	Answer         Answer `json:"answer"`
	IsCorrect      bool   `json:"isCorrect"`
	MarksObtained  int    `json:"marksObtained"`
	RequiresReview bool   `json:"requiresReview,omitempty"`
}

// TestAttempt is one user's run of one test. It is immutable once FinishedAt is set.
type TestAttempt struct {
	ID             string            `json:"id"`
	TestID         string            `json:"testId"`
	UserID         string            `json:"userId"`
	Status         AttemptStatus     `json:"status"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     *time.Time        `json:"finishedAt,omitempty"`
	Answers        map[string]Answer `json:"answers,omitempty"`
	Details        []AnswerRecord    `json:"details,omitempty"`
	Score          int               `json:"score"`
	TotalMarks     int               `json:"totalMarks"`
	Percentage     float64           `json:"percentage"`
	CorrectAnswers int               `json:"correctAnswers"`
	TotalQuestions int               `json:"totalQuestions"`
}

// DPPAssignment is one practice question assigned to one user.
type DPPAssignment struct {
	ID          string     `json:"id" yaml:"id"`
	UserID      string     `json:"userId" yaml:"userId"`
	QuestionID  string     `json:"questionId" yaml:"questionId"`
	DPPID       string     `json:"dppId" yaml:"dppId"`
	Completed   bool       `json:"completed" yaml:"-"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"-"`
	TimeSpent   int        `json:"timeSpent" yaml:"-"`
	Score       int        `json:"score" yaml:"-"`
	IsCorrect   bool       `json:"isCorrect" yaml:"-"`
	Answer      *Answer    `json:"answer,omitempty" yaml:"-"`
}

// UserDPPStats holds a user's rolling practice counters.
type UserDPPStats struct {
	UserID          string     `json:"userId"`
	TotalAttempts   int        `json:"totalAttempts"`
	CorrectAttempts int        `json:"correctAttempts"`
	TotalTimeSpent  int        `json:"totalTimeSpent"`
	CurrentStreak   int        `json:"currentStreak"`
	LongestStreak   int        `json:"longestStreak"`
	LastAttemptedAt *time.Time `json:"lastAttemptedAt,omitempty"`
}

// User carries the gamification fields of a platform user.
type User struct {
	ID             string     `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	XP             int        `json:"xp" yaml:"-"`
	Level          int        `json:"level" yaml:"-"`
	CurrentStreak  int        `json:"currentStreak" yaml:"-"`
	LongestStreak  int        `json:"longestStreak" yaml:"-"`
	LastActiveDate *time.Time `json:"lastActiveDate,omitempty" yaml:"-"`
}

// XPEvent is an append-only audit entry of the XP ledger.
type XPEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Amount    int       `json:"amount"`
	Source    string    `json:"source"`
	Total     int       `json:"total"`
	CreatedAt time.Time `json:"createdAt"`
}

// Metric names a per-user counter that badges and challenges track.
type Metric string

const (
	MetricTestsCompleted Metric = "tests_completed"
	MetricDPPCorrect     Metric = "dpp_correct"
	MetricDPPStreak      Metric = "dpp_streak"
	MetricActivityStreak Metric = "activity_streak"
	MetricXPTotal        Metric = "xp_total"
	MetricLevel          Metric = "level"
)

// Badge is a catalog entry unlocked once per user.
type Badge struct {
	ID            string `json:"id" yaml:"id"`
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description,omitempty" yaml:"description"`
	Metric        Metric `json:"metric,omitempty" yaml:"metric"`
	RequiredValue int    `json:"requiredValue" yaml:"requiredValue"`
	XPReward      int    `json:"xpReward" yaml:"xpReward"`
}

// UserBadge joins a user to a badge. At most one per (UserID, BadgeID).
type UserBadge struct {
	UserID     string     `json:"userId"`
	BadgeID    string     `json:"badgeId"`
	IsUnlocked bool       `json:"isUnlocked"`
	Progress   int        `json:"progress"`
	EarnedAt   *time.Time `json:"earnedAt,omitempty"`
}

// Challenge is a time-boxed, progress-accumulating goal.
type Challenge struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description"`
	Metric        Metric    `json:"metric,omitempty" yaml:"metric"`
	RequiredValue int       `json:"requiredValue" yaml:"requiredValue"`
	XPReward      int       `json:"xpReward" yaml:"xpReward"`
	BadgeID       string    `json:"badgeId,omitempty" yaml:"badgeId"`
	StartDate     time.Time `json:"startDate" yaml:"startDate"`
	EndDate       time.Time `json:"endDate" yaml:"endDate"`
}

// Active reports whether now falls inside the challenge window.
func (c Challenge) Active(now time.Time) bool {
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return false
	}
	if !c.EndDate.IsZero() && now.After(c.EndDate) {
		return false
	}
	return true
}

// UserChallenge tracks one user's progress through a challenge.
type UserChallenge struct {
	UserID      string     `json:"userId"`
	ChallengeID string     `json:"challengeId"`
	Progress    int        `json:"progress"`
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// LeaderboardEntry is a per-user running aggregate. SubjectID "" is the global board.
type LeaderboardEntry struct {
	UserID       string    `json:"userId"`
	SubjectID    string    `json:"subjectId,omitempty"`
	TestCount    int       `json:"testCount"`
	TotalScore   int       `json:"totalScore"`
	AverageScore int       `json:"averageScore"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// NotificationType classifies notifications pushed to users.
type NotificationType string

const (
	NotifyCorrectAnswer      NotificationType = "correct_answer"
	NotifyTestSubmitted      NotificationType = "test_submitted"
	NotifyBadgeUnlocked      NotificationType = "badge_unlocked"
	NotifyLevelUp            NotificationType = "level_up"
	NotifyChallengeCompleted NotificationType = "challenge_completed"
)

// Notification is delivered fire-and-forget to a user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      NotificationType  `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
