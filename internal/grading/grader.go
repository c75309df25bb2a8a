// Package grading decides correctness and marks for submitted answers.
// Everything here is a pure function of its inputs.
package grading

import (
	"strings"

	"exam-ledger-service/internal/domain"
)

// Result is the outcome of grading one answer.
type Result struct {
	IsCorrect      bool
	MarksObtained  int
	RequiresReview bool
}

const (
	maxTimePenalty     = 5
	penaltyStepSeconds = 30
)

var practiceBase = map[domain.Difficulty]int{
	domain.DifficultyEasy:   10,
	domain.DifficultyMedium: 20,
	domain.DifficultyHard:   30,
}

// Grade scores an answer for a timed test: full marks when correct, zero otherwise.
func Grade(q domain.Question, a domain.Answer) Result {
	if q.Type == domain.QuestionSubjective {
		return Result{RequiresReview: true}
	}
	if !IsCorrect(q, a) {
		return Result{}
	}
	return Result{IsCorrect: true, MarksObtained: q.MarksOrDefault()}
}

// GradePractice scores a daily practice answer with the difficulty/time scheme.
func GradePractice(q domain.Question, a domain.Answer, timeSpentSeconds int) Result {
	if q.Type == domain.QuestionSubjective {
		return Result{RequiresReview: true}
	}
	if !IsCorrect(q, a) {
		return Result{}
	}
	return Result{IsCorrect: true, MarksObtained: PracticeScore(q.Difficulty, timeSpentSeconds)}
}

// PracticeScore is base(difficulty) - min(floor(t/30), 5), never below 1.
// Unknown difficulties score as medium.
func PracticeScore(d domain.Difficulty, timeSpentSeconds int) int {
	base, ok := practiceBase[d]
	if !ok {
		base = practiceBase[domain.DifficultyMedium]
	}
	if timeSpentSeconds < 0 {
		timeSpentSeconds = 0
	}
	penalty := timeSpentSeconds / penaltyStepSeconds
	if penalty > maxTimePenalty {
		penalty = maxTimePenalty
	}
	score := base - penalty
	if score < 1 {
		return 1
	}
	return score
}

// IsCorrect reports whether the answer matches the question's key.
// Subjective questions are never auto-correct.
func IsCorrect(q domain.Question, a domain.Answer) bool {
	if a.Empty() || len(q.CorrectAnswers) == 0 {
		return false
	}
	switch q.Type {
	case domain.QuestionMultiple:
		return matchesSet(a.Values(), q.CorrectAnswers)
	case domain.QuestionSubjective:
		return false
	default:
		return matchesAny(a, q.CorrectAnswers)
	}
}

func matchesAny(a domain.Answer, correct []string) bool {
	var submitted string
	switch {
	case a.Kind == domain.AnswerText:
		submitted = a.Text
	case len(a.Choices) == 1:
		submitted = a.Choices[0]
	default:
		return false
	}
	want := normalize(submitted)
	for _, c := range correct {
		if normalize(c) == want {
			return true
		}
	}
	return false
}

// matchesSet requires identical cardinality and every correct value present.
// Duplicate submissions shrink the set and therefore fail.
func matchesSet(submitted, correct []string) bool {
	if len(submitted) != len(correct) {
		return false
	}
	set := make(map[string]struct{}, len(submitted))
	for _, s := range submitted {
		set[normalize(s)] = struct{}{}
	}
	if len(set) != len(correct) {
		return false
	}
	for _, c := range correct {
		if _, ok := set[normalize(c)]; !ok {
			return false
		}
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CorrectAnswerText renders the answer key for feedback.
func CorrectAnswerText(q domain.Question) string {
	return strings.Join(q.CorrectAnswers, ", ")
}
