package dialog

import "sync"

// userLocks serializes event handling per user. Events for one user
// read-modify-write the same session row and must never interleave;
// distinct users proceed in parallel.
type userLocks struct {
	mu    sync.Mutex
	users map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{users: make(map[int64]*sync.Mutex)}
}

// acquire locks the user's mutex and returns its release func.
func (l *userLocks) acquire(userID int64) func() {
	l.mu.Lock()
	m, ok := l.users[userID]
	if !ok {
		m = &sync.Mutex{}
		l.users[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
