package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/grading"
	"exam-ledger-service/internal/logger"
	"github.com/google/uuid"
)

// PracticeService grades daily practice problems, one assignment at a time.
type PracticeService struct {
	store    Store
	catalog  Catalog
	ledger   *Ledger
	awards   *Awards
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

func NewPracticeService(store Store, catalog Catalog, ledger *Ledger, awards *Awards, notifier Notifier, now func() time.Time, log *logger.Logger) *PracticeService {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PracticeService{
		store:    store,
		catalog:  catalog,
		ledger:   ledger,
		awards:   awards,
		notifier: notifier,
		now:      now,
		log:      log.With("service", "practice"),
	}
}

// PracticeResult is the response to a single practice submission.
type PracticeResult struct {
	AssignmentID   string `json:"assignmentId"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalQuestions int    `json:"totalQuestions"`
	TimeSpent      int    `json:"timeSpent"`
	IsCorrect      bool   `json:"isCorrect"`
	RequiresReview bool   `json:"requiresReview,omitempty"`
	Feedback       string `json:"feedback"`
	CorrectAnswer  string `json:"correctAnswer"`
	Explanation    string `json:"explanation,omitempty"`
}

// Assign creates one assignment per question for the user.
func (s *PracticeService) Assign(ctx context.Context, userID, dppID string, questionIDs []string) ([]domain.DPPAssignment, error) {
	if _, err := s.catalog.GetQuestions(ctx, questionIDs); err != nil {
		return nil, err
	}
	out := make([]domain.DPPAssignment, 0, len(questionIDs))
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := ensureUser(ctx, tx, userID, ""); err != nil {
			return err
		}
		for _, qid := range questionIDs {
			a := domain.DPPAssignment{ID: uuid.NewString(), UserID: userID, QuestionID: qid, DPPID: dppID}
			if err := tx.CreateAssignment(ctx, a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Assignments lists the user's assignments.
func (s *PracticeService) Assignments(ctx context.Context, userID string) ([]domain.DPPAssignment, error) {
	return s.store.ListAssignments(ctx, userID)
}

// Stats returns the user's rolling practice counters.
func (s *PracticeService) Stats(ctx context.Context, userID string) (domain.UserDPPStats, error) {
	return s.store.GetPracticeStats(ctx, userID)
}

// Submit grades the answer, completes the assignment and updates stats, XP,
// streaks and rewards in one unit of work. A completed assignment cannot be
// submitted again.
func (s *PracticeService) Submit(ctx context.Context, userID, assignmentID string, answer domain.Answer, timeSpentSeconds int) (PracticeResult, error) {
	now := s.now()
	if timeSpentSeconds < 0 {
		return PracticeResult{}, domain.ErrInvalidTimeSpent
	}
	if answer.Empty() {
		return PracticeResult{}, domain.ErrMissingAnswer
	}
	assignment, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return PracticeResult{}, err
	}
	if assignment.UserID != userID {
		return PracticeResult{}, domain.ErrAssignmentNotFound
	}
	if assignment.Completed {
		return PracticeResult{}, domain.ErrAssignmentCompleted
	}
	questions, err := s.catalog.GetQuestions(ctx, []string{assignment.QuestionID})
	if err != nil {
		return PracticeResult{}, err
	}
	q := questions[0]
	g := grading.GradePractice(q, answer, timeSpentSeconds)

	fx := &effects{}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		done := now
		a := answer
		assignment.Completed = true
		assignment.CompletedAt = &done
		assignment.TimeSpent = timeSpentSeconds
		assignment.Score = g.MarksObtained
		assignment.IsCorrect = g.IsCorrect
		assignment.Answer = &a
		ok, err := tx.CompleteAssignment(ctx, assignment)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAssignmentCompleted
		}

		if _, err := ensureUser(ctx, tx, userID, ""); err != nil {
			return err
		}
		stats, err := tx.GetPracticeStats(ctx, userID)
		if err != nil {
			return err
		}
		stats.UserID = userID
		stats.ApplyPractice(g.IsCorrect, timeSpentSeconds, now)
		if err := tx.SavePracticeStats(ctx, stats); err != nil {
			return err
		}

		if _, err := s.ledger.recordActivity(ctx, tx, userID, now); err != nil {
			return err
		}
		deltas := map[domain.Metric]int{}
		if g.IsCorrect {
			if _, err := s.ledger.addXP(ctx, tx, userID, g.MarksObtained, "dpp:"+assignment.ID, now, fx); err != nil {
				return err
			}
			deltas[domain.MetricDPPCorrect] = 1
			fx.notify(userID, domain.NotifyCorrectAnswer, "Correct answer!",
				fmt.Sprintf("You earned %d points", g.MarksObtained), now,
				map[string]string{"assignmentId": assignment.ID, "score": strconv.Itoa(g.MarksObtained)})
		}
		_, err = s.awards.evaluate(ctx, tx, userID, deltas, now, fx)
		return err
	})
	if err != nil {
		return PracticeResult{}, err
	}
	fx.flush(ctx, s.notifier, s.log)

	res := PracticeResult{
		AssignmentID:   assignment.ID,
		Score:          g.MarksObtained,
		TotalQuestions: 1,
		TimeSpent:      timeSpentSeconds,
		IsCorrect:      g.IsCorrect,
		RequiresReview: g.RequiresReview,
		CorrectAnswer:  grading.CorrectAnswerText(q),
		Explanation:    q.Explanation,
	}
	switch {
	case g.IsCorrect:
		res.CorrectAnswers = 1
		res.Feedback = "Correct! Well done."
	case g.RequiresReview:
		res.Feedback = "Submitted for review."
	default:
		res.Feedback = "Incorrect. Review the explanation and try the next one."
	}
	return res, nil
}
