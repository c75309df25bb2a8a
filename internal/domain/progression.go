package domain

import (
	"math"
	"time"
)

// XPForLevel is the total XP needed to reach level n.
func XPForLevel(n int) int {
	if n <= 1 {
		return 100
	}
	return int(math.Floor(100 * math.Pow(1.5, float64(n-1))))
}

// NextLevel returns the level after an XP change. It advances by at most one level
// per call, so a large XP jump catches up on later events.
func NextLevel(level, xp int) int {
	if level < 1 {
		level = 1
	}
	if xp >= XPForLevel(level+1) {
		return level + 1
	}
	return level
}

// TouchActivity applies a calendar-day activity event to the user's streak.
// Days are compared in loc, not as 24h windows.
func TouchActivity(u *User, now time.Time, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	today := dayOf(now, loc)
	switch {
	case u.LastActiveDate == nil:
		u.CurrentStreak = 1
	case dayOf(*u.LastActiveDate, loc).Equal(today):
		// same day; nothing to extend
		if u.CurrentStreak == 0 {
			u.CurrentStreak = 1
		}
	case dayOf(*u.LastActiveDate, loc).Equal(today.AddDate(0, 0, -1)):
		u.CurrentStreak++
	default:
		u.CurrentStreak = 1
	}
	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	t := now
	u.LastActiveDate = &t
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ApplyPractice folds one practice outcome into the stats.
// A wrong answer resets the answer streak to zero.
func (s *UserDPPStats) ApplyPractice(correct bool, timeSpent int, now time.Time) {
	s.TotalAttempts++
	s.TotalTimeSpent += timeSpent
	if correct {
		s.CorrectAttempts++
		s.CurrentStreak++
	} else {
		s.CurrentStreak = 0
	}
	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	t := now
	s.LastAttemptedAt = &t
}

// Apply adds one score to the entry and recomputes the rounded average.
func (e *LeaderboardEntry) Apply(score int, now time.Time) {
	e.TestCount++
	e.TotalScore += score
	e.AverageScore = RoundedAverage(e.TotalScore, e.TestCount)
	e.LastUpdated = now
}

// RoundedAverage rounds half away from zero, matching Postgres round(numeric).
func RoundedAverage(total, count int) int {
	if count == 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(count)))
}
