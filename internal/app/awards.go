package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
)

// Awards unlocks badges and advances challenges. Badge unlocking itself never
// grants XP; callers that want the reward use GrantBadge or Evaluate.
type Awards struct {
	store    Store
	ledger   *Ledger
	notifier Notifier
	now      func() time.Time
	log      *logger.Logger
}

func NewAwards(store Store, ledger *Ledger, notifier Notifier, now func() time.Time, log *logger.Logger) *Awards {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Awards{store: store, ledger: ledger, notifier: notifier, now: now, log: log.With("service", "awards")}
}

// AwardBadge records progress towards a badge, unlocking it when progress is
// absent or reaches the required value. Unlocking twice fails with ErrAlreadyAwarded.
func (a *Awards) AwardBadge(ctx context.Context, userID, badgeID string, progress *int) (domain.UserBadge, error) {
	now := a.now()
	var ub domain.UserBadge
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		ub, _, err = a.awardBadge(ctx, tx, userID, badgeID, progress, now)
		return err
	})
	return ub, err
}

// GrantBadge awards a badge and, on unlock, credits the badge's XP reward in
// the same unit of work.
func (a *Awards) GrantBadge(ctx context.Context, userID, badgeID string, progress *int) (domain.UserBadge, error) {
	now := a.now()
	fx := &effects{}
	var ub domain.UserBadge
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		ub, err = a.grantBadge(ctx, tx, userID, badgeID, progress, now, fx)
		return err
	})
	if err != nil {
		return domain.UserBadge{}, err
	}
	fx.flush(ctx, a.notifier, a.log)
	return ub, nil
}

// ChallengeProgress is the result of advancing a challenge.
type ChallengeProgress struct {
	domain.UserChallenge
	// CompletedNow is true only for the call that crossed the required value.
	CompletedNow bool `json:"completedNow"`
}

// UpdateChallengeProgress adds delta to the user's challenge progress.
// Rewards fire once, on the call that completes the challenge.
func (a *Awards) UpdateChallengeProgress(ctx context.Context, userID, challengeID string, delta int) (ChallengeProgress, error) {
	now := a.now()
	fx := &effects{}
	var res ChallengeProgress
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		c, err := tx.GetChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		res, err = a.advanceChallenge(ctx, tx, userID, c, delta, now, fx)
		return err
	})
	if err != nil {
		return ChallengeProgress{}, err
	}
	fx.flush(ctx, a.notifier, a.log)
	return res, nil
}

// Badges lists the user's badge rows.
func (a *Awards) Badges(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	return a.store.ListUserBadges(ctx, userID)
}

// Evaluate recomputes every metric for the user and unlocks whatever badges are due.
func (a *Awards) Evaluate(ctx context.Context, userID string) ([]domain.UserBadge, error) {
	now := a.now()
	fx := &effects{}
	var unlocked []domain.UserBadge
	err := a.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		unlocked, err = a.evaluate(ctx, tx, userID, nil, now, fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	fx.flush(ctx, a.notifier, a.log)
	return unlocked, nil
}

// awardBadge returns the stored row and whether this call unlocked it.
func (a *Awards) awardBadge(ctx context.Context, tx Tx, userID, badgeID string, progress *int, now time.Time) (domain.UserBadge, bool, error) {
	badge, err := tx.GetBadge(ctx, badgeID)
	if err != nil {
		return domain.UserBadge{}, false, err
	}
	ub, ok, err := tx.GetUserBadge(ctx, userID, badgeID)
	if err != nil {
		return domain.UserBadge{}, false, err
	}
	if ok && ub.IsUnlocked {
		return ub, false, domain.ErrAlreadyAwarded
	}
	if !ok {
		ub = domain.UserBadge{UserID: userID, BadgeID: badgeID}
	}
	if progress != nil && *progress < badge.RequiredValue {
		ub.Progress = *progress
		if err := tx.SaveUserBadge(ctx, ub); err != nil {
			return domain.UserBadge{}, false, err
		}
		return ub, false, nil
	}
	earned := now
	ub.IsUnlocked = true
	ub.EarnedAt = &earned
	ub.Progress = badge.RequiredValue
	if err := tx.SaveUserBadge(ctx, ub); err != nil {
		return domain.UserBadge{}, false, err
	}
	return ub, true, nil
}

func (a *Awards) grantBadge(ctx context.Context, tx Tx, userID, badgeID string, progress *int, now time.Time, fx *effects) (domain.UserBadge, error) {
	ub, unlocked, err := a.awardBadge(ctx, tx, userID, badgeID, progress, now)
	if err != nil || !unlocked {
		return ub, err
	}
	badge, err := tx.GetBadge(ctx, badgeID)
	if err != nil {
		return domain.UserBadge{}, err
	}
	if badge.XPReward > 0 {
		if _, err := a.ledger.addXP(ctx, tx, userID, badge.XPReward, "badge:"+badge.ID, now, fx); err != nil {
			return domain.UserBadge{}, err
		}
	}
	fx.notify(userID, domain.NotifyBadgeUnlocked, "Badge unlocked",
		fmt.Sprintf("You earned the %q badge", badge.Name), now,
		map[string]string{"badgeId": badge.ID})
	return ub, nil
}

func (a *Awards) advanceChallenge(ctx context.Context, tx Tx, userID string, c domain.Challenge, delta int, now time.Time, fx *effects) (ChallengeProgress, error) {
	if delta <= 0 {
		return ChallengeProgress{}, domain.ErrInvalidDelta
	}
	uc, ok, err := tx.GetUserChallenge(ctx, userID, c.ID)
	if err != nil {
		return ChallengeProgress{}, err
	}
	if !ok {
		uc = domain.UserChallenge{UserID: userID, ChallengeID: c.ID}
	}
	if uc.IsCompleted {
		return ChallengeProgress{UserChallenge: uc}, nil
	}
	if !c.Active(now) {
		return ChallengeProgress{}, domain.ErrChallengeClosed
	}
	uc.Progress += delta
	completedNow := uc.Progress >= c.RequiredValue
	if completedNow {
		done := now
		uc.IsCompleted = true
		uc.CompletedAt = &done
	}
	if err := tx.SaveUserChallenge(ctx, uc); err != nil {
		return ChallengeProgress{}, err
	}
	if !completedNow {
		return ChallengeProgress{UserChallenge: uc}, nil
	}

	if c.XPReward > 0 {
		if _, err := a.ledger.addXP(ctx, tx, userID, c.XPReward, "challenge:"+c.ID, now, fx); err != nil {
			return ChallengeProgress{}, err
		}
	}
	if c.BadgeID != "" {
		if _, err := a.grantBadge(ctx, tx, userID, c.BadgeID, nil, now, fx); err != nil && !errors.Is(err, domain.ErrAlreadyAwarded) {
			return ChallengeProgress{}, err
		}
	}
	fx.notify(userID, domain.NotifyChallengeCompleted, "Challenge completed",
		fmt.Sprintf("You completed %q", c.Name), now,
		map[string]string{"challengeId": c.ID})
	return ChallengeProgress{UserChallenge: uc, CompletedNow: true}, nil
}

// evaluate advances active challenges by the event deltas, then unlocks badges
// whose metric has reached the required value.
func (a *Awards) evaluate(ctx context.Context, tx Tx, userID string, deltas map[domain.Metric]int, now time.Time, fx *effects) ([]domain.UserBadge, error) {
	if len(deltas) > 0 {
		challenges, err := tx.ListChallenges(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range challenges {
			d := deltas[c.Metric]
			if d <= 0 || !c.Active(now) {
				continue
			}
			if _, err := a.advanceChallenge(ctx, tx, userID, c, d, now, fx); err != nil {
				return nil, err
			}
		}
	}

	badges, err := tx.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := a.metrics(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	var unlocked []domain.UserBadge
	for _, b := range badges {
		if b.Metric == "" {
			continue
		}
		ub, ok, err := tx.GetUserBadge(ctx, userID, b.ID)
		if err != nil {
			return nil, err
		}
		if ok && ub.IsUnlocked {
			continue
		}
		value := metrics[b.Metric]
		if value == ub.Progress && value < b.RequiredValue {
			continue
		}
		ub, err = a.grantBadge(ctx, tx, userID, b.ID, &value, now, fx)
		if err != nil {
			return nil, err
		}
		if ub.IsUnlocked {
			unlocked = append(unlocked, ub)
			// the XP reward may move xp/level metrics for later badges
			if metrics, err = a.metrics(ctx, tx, userID); err != nil {
				return nil, err
			}
		}
	}
	return unlocked, nil
}

func (a *Awards) metrics(ctx context.Context, tx Tx, userID string) (map[domain.Metric]int, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := tx.GetPracticeStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	tests, err := tx.CountFinishedAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[domain.Metric]int{
		domain.MetricTestsCompleted: tests,
		domain.MetricDPPCorrect:     stats.CorrectAttempts,
		domain.MetricDPPStreak:      stats.LongestStreak,
		domain.MetricActivityStreak: user.LongestStreak,
		domain.MetricXPTotal:        user.XP,
		domain.MetricLevel:          user.Level,
	}, nil
}
