package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Locks serializes turns per session. At most one turn may run on a
// session at a time; a second caller gets ErrSessionBusy immediately
// instead of queueing.
//
// Locks are held in process memory only, so a crash can never leave a
// session permanently locked.
type Locks struct {
	mu   sync.Mutex
	busy map[uuid.UUID]struct{}
}

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{busy: make(map[uuid.UUID]struct{})}
}

// TryAcquire marks the session busy. Returns ErrSessionBusy if a turn
// is already running.
func (l *Locks) TryAcquire(sessionID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.busy[sessionID]; held {
		return fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	l.busy[sessionID] = struct{}{}
	return nil
}

// Release clears the busy mark. Releasing an unheld lock is a no-op,
// which keeps deferred releases safe on every exit path.
func (l *Locks) Release(sessionID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.busy, sessionID)
}
