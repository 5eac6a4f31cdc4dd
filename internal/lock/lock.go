// Package lock provides per-table write locks so that two runs never write
// the same output table at once.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when the lock is already taken.
var ErrHeld = errors.New("lock is held")

// Locker hands out non-blocking named locks.
type Locker interface {
	// TryLock acquires name or returns ErrHeld. The returned func releases it.
	TryLock(ctx context.Context, name string) (release func(), err error)
}

// LocalLocker locks within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return nil, ErrHeld
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}
