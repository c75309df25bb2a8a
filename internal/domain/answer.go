package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// AnswerKind discriminates the shapes an answer can take.
type AnswerKind string

const (
	// AnswerText is a single free-form or single-choice value.
	AnswerText AnswerKind = "text"
	// AnswerChoices is an ordered set of selected values.
	AnswerChoices AnswerKind = "choices"
)

// Answer is a submitted value, decoded from either a JSON string or a JSON string array.
type Answer struct {
	Kind    AnswerKind
	Text    string
	Choices []string
}

// TextAnswer builds a single-value answer.
func TextAnswer(v string) Answer { return Answer{Kind: AnswerText, Text: v} }

// ChoicesAnswer builds a multiple-select answer.
func ChoicesAnswer(v ...string) Answer {
	return Answer{Kind: AnswerChoices, Choices: append([]string(nil), v...)}
}

// Empty reports whether nothing was submitted.
func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerText:
		return a.Text == ""
	case AnswerChoices:
		return len(a.Choices) == 0
	default:
		return true
	}
}

// Values returns the answer as a list regardless of its kind.
func (a Answer) Values() []string {
	switch a.Kind {
	case AnswerText:
		return []string{a.Text}
	case AnswerChoices:
		return a.Choices
	default:
		return nil
	}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Kind == AnswerChoices {
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	}
	if a.Kind == "" {
		return []byte("null"), nil
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswers, err)
		}
		*a = TextAnswer(s)
		return nil
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAnswers, err)
		}
		*a = ChoicesAnswer(list...)
		return nil
	default:
		return fmt.Errorf("%w: answer must be a string or a list of strings", ErrInvalidAnswers)
	}
}

// ParseAnswers decodes a submission payload of questionId -> answer.
// Anything other than a JSON object is rejected.
func ParseAnswers(raw json.RawMessage) (map[string]Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]Answer{}, nil
	}
	if raw[0] != '{' {
		return nil, ErrInvalidAnswers
	}
	out := map[string]Answer{}
	if err := json.Unmarshal(raw, &out); err != nil {
		if errors.Is(err, ErrInvalidAnswers) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnswers, err)
	}
	return out, nil
}
