package duty

import (
	"go.uber.org/zap"
)

// Observer is notified after each committed write. metrics.Recorder
// implements it.
type Observer interface {
	ClockedIn(personID string)
	ClockedOut(personID string, durationSeconds int64)
	Adjusted(personID string, secondsDelta int64)
}

type nopObserver struct{}

func (nopObserver) ClockedIn(string)         {}
func (nopObserver) ClockedOut(string, int64) {}
func (nopObserver) Adjusted(string, int64)   {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// Core bundles the three services over one store.
type Core struct {
	Sessions    *SessionManager
	Queries     *Queries
	Adjustments *Adjuster
}

// NewCore wires every service to store, clock and logger.
func NewCore(store TxStore, clock Clock, logger *zap.Logger, observer Observer) *Core {
	sessions := NewSessionManager(store, clock, logger)
	sessions.Observer = observer
	adjuster := NewAdjuster(store, clock, logger)
	adjuster.Observer = observer
	return &Core{
		Sessions:    sessions,
		Queries:     NewQueries(store, clock),
		Adjustments: adjuster,
	}
}
