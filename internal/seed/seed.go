// Package seed loads catalog and reward fixtures from a YAML bundle.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"exam-ledger-service/internal/app"
	"exam-ledger-service/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed sample.yaml
var sampleBundle []byte

// Bundle is the YAML document applied by the seed command.
type Bundle struct {
	Users       []domain.User          `yaml:"users"`
	Questions   []domain.Question      `yaml:"questions"`
	Tests       []domain.Test          `yaml:"tests"`
	Badges      []domain.Badge         `yaml:"badges"`
	Challenges  []domain.Challenge     `yaml:"challenges"`
	Assignments []domain.DPPAssignment `yaml:"assignments"`
}

// Sample returns the bundle shipped with the binary.
func Sample() (Bundle, error) {
	return Parse(sampleBundle)
}

// Load reads a bundle from path.
func Load(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("read seed bundle: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("parse seed bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// Validate checks references inside the bundle.
func (b Bundle) Validate() error {
	questions := make(map[string]bool, len(b.Questions))
	for _, q := range b.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question without id", domain.ErrValidation)
		}
		questions[q.ID] = true
	}
	for _, t := range b.Tests {
		if t.DurationMinutes <= 0 {
			return fmt.Errorf("%w: test %s: %v", domain.ErrValidation, t.ID, domain.ErrMissingDuration)
		}
		for _, qid := range t.QuestionIDs {
			if !questions[qid] {
				return fmt.Errorf("%w: test %s references unknown question %s", domain.ErrValidation, t.ID, qid)
			}
		}
	}
	badges := make(map[string]bool, len(b.Badges))
	for _, bd := range b.Badges {
		if bd.RequiredValue < 1 {
			return fmt.Errorf("%w: badge %s needs requiredValue >= 1", domain.ErrValidation, bd.ID)
		}
		badges[bd.ID] = true
	}
	for _, c := range b.Challenges {
		if c.BadgeID != "" && !badges[c.BadgeID] {
			return fmt.Errorf("%w: challenge %s references unknown badge %s", domain.ErrValidation, c.ID, c.BadgeID)
		}
		if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
			return fmt.Errorf("%w: challenge %s ends before it starts", domain.ErrValidation, c.ID)
		}
	}
	for _, a := range b.Assignments {
		if !questions[a.QuestionID] {
			return fmt.Errorf("%w: assignment %s references unknown question %s", domain.ErrValidation, a.ID, a.QuestionID)
		}
	}
	return nil
}

// Stats counts what Apply wrote.
type Stats struct {
	Users       int
	Questions   int
	Tests       int
	Badges      int
	Challenges  int
	Assignments int
}

// Apply writes the bundle in one unit of work. Catalog and reward entries are
// upserted; users and assignments that already exist are left untouched.
func Apply(ctx context.Context, store app.Store, b Bundle) (Stats, error) {
	var st Stats
	err := store.WithinTx(ctx, func(ctx context.Context, tx app.Tx) error {
		for _, u := range b.Users {
			_, err := tx.GetUser(ctx, u.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := tx.CreateUser(ctx, domain.User{ID: u.ID, Name: u.Name, Level: 1}); err != nil {
				return err
			}
			st.Users++
		}
		for _, q := range b.Questions {
			if err := tx.PutQuestion(ctx, q); err != nil {
				return err
			}
			st.Questions++
		}
		for _, t := range b.Tests {
			if err := tx.PutTest(ctx, t); err != nil {
				return err
			}
			st.Tests++
		}
		for _, bd := range b.Badges {
			if err := tx.PutBadge(ctx, bd); err != nil {
				return err
			}
			st.Badges++
		}
		for _, c := range b.Challenges {
			if err := tx.PutChallenge(ctx, c); err != nil {
				return err
			}
			st.Challenges++
		}
		for _, a := range b.Assignments {
			_, err := tx.GetAssignment(ctx, a.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := tx.CreateAssignment(ctx, domain.DPPAssignment{ID: a.ID, UserID: a.UserID, QuestionID: a.QuestionID, DPPID: a.DPPID}); err != nil {
				return err
			}
			st.Assignments++
		}
		return nil
	})
	return st, err
}
