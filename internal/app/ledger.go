package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"exam-ledger-service/internal/domain"
	"exam-ledger-service/internal/logger"
	"github.com/google/uuid"
)

// Ledger owns XP, level and the calendar-day activity streak.
type Ledger struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	loc      *time.Location
	log      *logger.Logger
}

func NewLedger(store Store, notifier Notifier, now func() time.Time, loc *time.Location, log *logger.Logger) *Ledger {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Ledger{store: store, notifier: notifier, now: now, loc: loc, log: log.With("service", "ledger")}
}

// AddXP credits amount to the user and appends an audit entry.
func (l *Ledger) AddXP(ctx context.Context, userID string, amount int, source string) (domain.User, error) {
	now := l.now()
	fx := &effects{}
	var user domain.User
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = l.addXP(ctx, tx, userID, amount, source, now, fx)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	fx.flush(ctx, l.notifier, l.log)
	return user, nil
}

// RecordActivity marks the user active now and updates the activity streak.
func (l *Ledger) RecordActivity(ctx context.Context, userID string) (domain.User, error) {
	now := l.now()
	var user domain.User
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = l.recordActivity(ctx, tx, userID, now)
		return err
	})
	return user, err
}

// User returns the user's gamification state.
func (l *Ledger) User(ctx context.Context, userID string) (domain.User, error) {
	return l.store.GetUser(ctx, userID)
}

// History returns the XP audit trail, oldest first.
func (l *Ledger) History(ctx context.Context, userID string) ([]domain.XPEvent, error) {
	if _, err := l.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return l.store.ListXPEvents(ctx, userID)
}

// Reconciliation compares the stored XP total with the audit trail.
type Reconciliation struct {
	UserID    string `json:"userId"`
	StoredXP  int    `json:"storedXp"`
	LedgerXP  int    `json:"ledgerXp"`
	Events    int    `json:"events"`
	Balanced  bool   `json:"balanced"`
	LastTotal int    `json:"lastTotal"`
}

// Reconcile sums the audit trail and checks it against the user's XP.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (Reconciliation, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}
	events, err := l.store.ListXPEvents(ctx, userID)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconciliation{UserID: userID, StoredXP: user.XP, Events: len(events)}
	for _, e := range events {
		r.LedgerXP += e.Amount
		r.LastTotal = e.Total
	}
	r.Balanced = r.LedgerXP == r.StoredXP && (len(events) == 0 || r.LastTotal == r.StoredXP)
	return r, nil
}

// EnsureUser creates the ledger row for a user seen for the first time.
func (l *Ledger) EnsureUser(ctx context.Context, userID, name string) (domain.User, error) {
	var user domain.User
	err := l.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		user, err = ensureUser(ctx, tx, userID, name)
		return err
	})
	return user, err
}

func ensureUser(ctx context.Context, tx Tx, userID, name string) (domain.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	if err := tx.CreateUser(ctx, domain.User{ID: userID, Name: name, Level: 1}); err != nil {
		return domain.User{}, err
	}
	// a concurrent request may have created the row first
	return tx.GetUser(ctx, userID)
}

func (l *Ledger) addXP(ctx context.Context, tx Tx, userID string, amount int, source string, now time.Time, fx *effects) (domain.User, error) {
	if amount <= 0 {
		return domain.User{}, domain.ErrInvalidAmount
	}
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	user.XP += amount
	prevLevel := user.Level
	user.Level = domain.NextLevel(user.Level, user.XP)
	if err := tx.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	if err := tx.AppendXPEvent(ctx, domain.XPEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    source,
		Total:     user.XP,
		CreatedAt: now,
	}); err != nil {
		return domain.User{}, err
	}
	if user.Level > prevLevel && prevLevel > 0 {
		fx.notify(userID, domain.NotifyLevelUp, "Level up!",
			fmt.Sprintf("You reached level %d", user.Level), now,
			map[string]string{"level": strconv.Itoa(user.Level)})
	}
	return user, nil
}

func (l *Ledger) recordActivity(ctx context.Context, tx Tx, userID string, now time.Time) (domain.User, error) {
	user, err := tx.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	domain.TouchActivity(&user, now, l.loc)
	if err := tx.UpdateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}
