package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/grading"
	"exam-ledger-service/internal/logger"
	"github.com/google/uuid"
)

const (
	testCompletionXP   = 20
	xpPerCorrectAnswer = 5
)

// AttemptService runs the timed-test lifecycle:
// not_started -> in_progress -> submitted | auto_submitted.
type AttemptService struct {
	store    Store
	catalog  Catalog
	ledger   *Ledger
	awards   *Awards
	board    *Leaderboard
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

func NewAttemptService(store Store, catalog Catalog, ledger *Ledger, awards *Awards, board *Leaderboard, notifier Notifier, now func() time.Time, log *logger.Logger) *AttemptService {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &AttemptService{
		store:    store,
		catalog:  catalog,
		ledger:   ledger,
		awards:   awards,
		board:    board,
		notifier: notifier,
		now:      now,
		log:      log.With("service", "attempts"),
	}
}

// GradedQuestion is the per-question part of a submission result.
type GradedQuestion struct {
	QuestionID     string        `json:"questionId"`
	Answer         domain.Answer `json:"answer"`
	IsCorrect      bool          `json:"isCorrect"`
	MarksObtained  int           `json:"marksObtained"`
	Marks          int           `json:"marks"`
	RequiresReview bool          `json:"requiresReview,omitempty"`
	CorrectAnswer  string        `json:"correctAnswer"`
	Explanation    string        `json:"explanation,omitempty"`
}

// SubmitResult summarises a finished attempt.
type SubmitResult struct {
	AttemptID       string               `json:"attemptId"`
	Status          domain.AttemptStatus `json:"status"`
	Score           int                  `json:"score"`
	TotalMarks      int                  `json:"totalMarks"`
	Percentage      float64              `json:"percentage"`
	CorrectAnswers  int                  `json:"correctAnswers"`
	TotalQuestions  int                  `json:"totalQuestions"`
	GradedQuestions []GradedQuestion     `json:"gradedQuestions"`
	FinishedAt      time.Time            `json:"finishedAt"`
}

// ProgressResult is returned by SaveProgress. When time ran out the save was
// turned into an automatic submission and Submission is set.
type ProgressResult struct {
	AttemptID        string        `json:"attemptId"`
	RemainingMinutes int           `json:"remainingMinutes"`
	AutoSubmitted    bool          `json:"autoSubmitted"`
	Submission       *SubmitResult `json:"submission,omitempty"`
}

// AttemptView is an attempt with its remaining time.
type AttemptView struct {
	domain.TestAttempt
	RemainingMinutes int `json:"remainingMinutes"`
}

// Start opens a new attempt. Tests that allow a single attempt reject a
// second one whether or not the first has finished.
func (s *AttemptService) Start(ctx context.Context, userID, testID string) (domain.TestAttempt, error) {
	now := s.now()
	test, err := s.catalog.GetTest(ctx, testID)
	if err != nil {
		return domain.TestAttempt{}, err
	}
	if test.DurationMinutes <= 0 {
		return domain.TestAttempt{}, domain.ErrMissingDuration
	}

	var attempt domain.TestAttempt
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := ensureUser(ctx, tx, userID, ""); err != nil {
			return err
		}
		existing, err := tx.ListAttempts(ctx, userID, testID)
		if err != nil {
			return err
		}
		if !test.AllowMultipleAttempts && len(existing) > 0 {
			return domain.ErrAttemptExists
		}
		attempt = domain.TestAttempt{
			ID:             uuid.NewString(),
			TestID:         testID,
			UserID:         userID,
			Status:         domain.AttemptInProgress,
			StartedAt:      now,
			Answers:        map[string]domain.Answer{},
			TotalQuestions: len(test.QuestionIDs),
		}
		return tx.CreateAttempt(ctx, attempt)
	})
	if err != nil {
		return domain.TestAttempt{}, err
	}
	s.log.Info("attempt started", "attempt_id", attempt.ID, "test_id", testID, "user_id", userID)
	return attempt, nil
}

// Get returns the caller's attempt.
func (s *AttemptService) Get(ctx context.Context, userID, attemptID string) (AttemptView, error) {
	now := s.now()
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	view := AttemptView{TestAttempt: attempt}
	if attempt.FinishedAt == nil {
		test, err := s.catalog.GetTest(ctx, attempt.TestID)
		if err != nil {
			return AttemptView{}, err
		}
		view.RemainingMinutes = max(remainingMinutes(test, attempt, now), 0)
	}
	return view, nil
}

// SaveProgress stores answers of an in-progress attempt. Once the time budget
// is spent the call submits the attempt instead.
func (s *AttemptService) SaveProgress(ctx context.Context, userID, attemptID string, answers map[string]domain.Answer) (ProgressResult, error) {
	now := s.now()
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return ProgressResult{}, err
	}
	if attempt.FinishedAt != nil || attempt.Status.Terminal() {
		return ProgressResult{}, domain.ErrAttemptNotFound
	}
	test, err := s.catalog.GetTest(ctx, attempt.TestID)
	if err != nil {
		return ProgressResult{}, err
	}
	if test.DurationMinutes <= 0 {
		return ProgressResult{}, domain.ErrMissingDuration
	}

	remaining := remainingMinutes(test, attempt, now)
	if remaining <= 0 {
		res, err := s.submit(ctx, userID, attemptID, answers, true, now)
		if err != nil {
			return ProgressResult{}, err
		}
		return ProgressResult{AttemptID: attemptID, AutoSubmitted: true, Submission: &res}, nil
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		ok, err := tx.SaveAttemptProgress(ctx, attemptID, mergeAnswers(current.Answers, answers))
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAttemptNotFound
		}
		return nil
	})
	if err != nil {
		return ProgressResult{}, err
	}
	return ProgressResult{AttemptID: attemptID, RemainingMinutes: remaining}, nil
}

// Submit grades and finishes the attempt. A second submit of the same attempt
// fails with ErrAlreadySubmitted and changes nothing.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID string, answers map[string]domain.Answer, isAutoSubmit bool) (SubmitResult, error) {
	return s.submit(ctx, userID, attemptID, answers, isAutoSubmit, s.now())
}

func (s *AttemptService) submit(ctx context.Context, userID, attemptID string, answers map[string]domain.Answer, isAutoSubmit bool, now time.Time) (SubmitResult, error) {
	attempt, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.FinishedAt != nil {
		return SubmitResult{}, domain.ErrAlreadySubmitted
	}
	test, err := s.catalog.GetTest(ctx, attempt.TestID)
	if err != nil {
		return SubmitResult{}, err
	}
	questions, err := s.catalog.GetQuestions(ctx, test.QuestionIDs)
	if err != nil {
		return SubmitResult{}, err
	}

	fx := &effects{}
	var result SubmitResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if current.FinishedAt != nil {
			return domain.ErrAlreadySubmitted
		}

		merged := mergeAnswers(current.Answers, answers)
		result = gradeAttempt(questions, merged)

		status := domain.AttemptSubmitted
		if isAutoSubmit || (test.DurationMinutes > 0 && remainingMinutes(test, current, now) <= 0) {
			status = domain.AttemptAutoSubmitted
		}
		finished := now
		current.Status = status
		current.FinishedAt = &finished
		current.Answers = merged
		current.Details = detailsOf(result.GradedQuestions)
		current.Score = result.Score
		current.TotalMarks = result.TotalMarks
		current.Percentage = result.Percentage
		current.CorrectAnswers = result.CorrectAnswers
		current.TotalQuestions = result.TotalQuestions

		ok, err := tx.FinishAttempt(ctx, current)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadySubmitted
		}

		if _, err := s.ledger.recordActivity(ctx, tx, userID, now); err != nil {
			return err
		}
		xp := testCompletionXP + xpPerCorrectAnswer*result.CorrectAnswers
		if _, err := s.ledger.addXP(ctx, tx, userID, xp, "test:"+test.ID, now, fx); err != nil {
			return err
		}
		if err := s.board.recordTestScore(ctx, tx, userID, test.SubjectID, int(math.Round(result.Percentage)), now); err != nil {
			return err
		}
		if _, err := s.awards.evaluate(ctx, tx, userID, map[domain.Metric]int{domain.MetricTestsCompleted: 1}, now, fx); err != nil {
			return err
		}

		result.AttemptID = attemptID
		result.Status = status
		result.FinishedAt = finished
		fx.notify(userID, domain.NotifyTestSubmitted, "Test submitted",
			fmt.Sprintf("You scored %.2f%% on %s", result.Percentage, test.Title), now,
			map[string]string{"attemptId": attemptID, "testId": test.ID})
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("submit failed", "attempt_id", attemptID, "user_id", userID, "error", err)
		}
		return SubmitResult{}, err
	}

	s.log.Info("attempt submitted", "attempt_id", attemptID, "status", result.Status, "percentage", result.Percentage)
	fx.flush(ctx, s.notifier, s.log)
	return result, nil
}

// ownedAttempt hides attempts of other users behind ErrAttemptNotFound.
func (s *AttemptService) ownedAttempt(ctx context.Context, userID, attemptID string) (domain.TestAttempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.TestAttempt{}, err
	}
	if attempt.UserID != userID {
		return domain.TestAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func remainingMinutes(test domain.Test, attempt domain.TestAttempt, now time.Time) int {
	elapsed := now.Sub(attempt.StartedAt).Milliseconds() / 60000
	return test.DurationMinutes - int(elapsed)
}

func mergeAnswers(saved, submitted map[string]domain.Answer) map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(saved)+len(submitted))
	for k, v := range saved {
		out[k] = v
	}
	for k, v := range submitted {
		out[k] = v
	}
	return out
}

func gradeAttempt(questions []domain.Question, answers map[string]domain.Answer) SubmitResult {
	res := SubmitResult{
		TotalQuestions:  len(questions),
		GradedQuestions: make([]GradedQuestion, 0, len(questions)),
	}
	for _, q := range questions {
		a := answers[q.ID]
		g := grading.Grade(q, a)
		res.TotalMarks += q.MarksOrDefault()
		res.Score += g.MarksObtained
		if g.IsCorrect {
			res.CorrectAnswers++
		}
		res.GradedQuestions = append(res.GradedQuestions, GradedQuestion{
			QuestionID:     q.ID,
			Answer:         a,
			IsCorrect:      g.IsCorrect,
			MarksObtained:  g.MarksObtained,
			Marks:          q.MarksOrDefault(),
			RequiresReview: g.RequiresReview,
			CorrectAnswer:  grading.CorrectAnswerText(q),
			Explanation:    q.Explanation,
		})
	}
	res.Percentage = percentage(res.Score, res.TotalMarks)
	return res
}

// percentage is rounded to two decimals; an empty test scores 0.
func percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*100*100) / 100
}

func detailsOf(graded []GradedQuestion) []domain.AnswerRecord {
	out := make([]domain.AnswerRecord, 0, len(graded))
	for _, g := range graded {
		out = append(out, domain.AnswerRecord{
			QuestionID:     g.QuestionID,
			Answer:         g.Answer,
			IsCorrect:      g.IsCorrect,
			MarksObtained:  g.MarksObtained,
			RequiresReview: g.RequiresReview,
		})
	}
	return out
}
