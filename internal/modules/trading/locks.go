package trading

import (
	"context"
	"sync"
)

// userLocks serialises trades per user. Waiting honours context cancellation
// and idle entries are dropped.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire blocks until userID's lock is held or ctx ends
func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &userLock{ch: make(chan struct{}, 1)}
		l.locks[userID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(userID, lock, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(userID, lock, true) })
	}, nil
}

func (l *userLocks) release(userID string, lock *userLock, held bool) {
	if held {
		<-lock.ch
	}
	l.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
