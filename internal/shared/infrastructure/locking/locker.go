// Package locking serializes scheduling runs per user and capture.
package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld means another scheduling run owns the lock.
var ErrLockHeld = errors.New("scheduling lock held")

// Locker acquires an exclusive lease for one capture of one user. Release is
// idempotent.
type Locker interface {
	Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (release func(), err error)
}

func lockKey(userID, captureID uuid.UUID) string {
	return fmt.Sprintf("sched:lock:%s:%s", userID, captureID)
}

// LocalLocker serializes within a single process. Suitable for the sqlite
// single-node deployment.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Acquire takes the lock or fails fast with ErrLockHeld.
func (l *LocalLocker) Acquire(ctx context.Context, userID, captureID uuid.UUID, ttl time.Duration) (func(), error) {
	key := lockKey(userID, captureID)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return nil, ErrLockHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}
