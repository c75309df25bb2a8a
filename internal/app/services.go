package app

import (
	"time"

	"exam-ledger-service/internal/logger"
)

// Options carries the ambient collaborators shared by every service.
type Options struct {
	Now      func() time.Time
	Location *time.Location
	Log      *logger.Logger
}

// Services is the set of use cases exposed to transports.
type Services struct {
	Ledger      *Ledger
	Awards      *Awards
	Leaderboard *Leaderboard
	Attempts    *AttemptService
	Practice    *PracticeService
}

// NewServices wires the services over one store. catalog may be a cache in
// front of the store; nil reads the catalog straight from the store.
func NewServices(store Store, catalog Catalog, notifier Notifier, opts Options) *Services {
	if catalog == nil {
		catalog = store
	}
	ledger := NewLedger(store, notifier, opts.Now, opts.Location, opts.Log)
	awards := NewAwards(store, ledger, notifier, opts.Now, opts.Log)
	board := NewLeaderboard(store, opts.Now, opts.Log)
	return &Services{
		Ledger:      ledger,
		Awards:      awards,
		Leaderboard: board,
		Attempts:    NewAttemptService(store, catalog, ledger, awards, board, notifier, opts.Now, opts.Log),
		Practice:    NewPracticeService(store, catalog, ledger, awards, notifier, opts.Now, opts.Log),
	}
}
