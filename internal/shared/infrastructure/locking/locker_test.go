package locking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerIsExclusivePerCapture(t *testing.T) {
	locker := NewLocalLocker()
	userID := uuid.New()
	captureID := uuid.New()

	release, err := locker.Acquire(context.Background(), userID, captureID, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), userID, captureID, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// A different capture of the same user is independent.
	otherRelease, err := locker.Acquire(context.Background(), userID, uuid.New(), time.Minute)
	require.NoError(t, err)
	otherRelease()

	release()
	release, err = locker.Acquire(context.Background(), userID, captureID, time.Minute)
	require.NoError(t, err)
	release()
}

func TestLocalLockerReleaseIsIdempotent(t *testing.T) {
	locker := NewLocalLocker()
	userID := uuid.New()
	captureID := uuid.New()

	release, err := locker.Acquire(context.Background(), userID, captureID, time.Minute)
	require.NoError(t, err)

	release()
	release()

	again, err := locker.Acquire(context.Background(), userID, captureID, time.Minute)
	require.NoError(t, err)

	// The stale release must not free the new holder's lock.
	release()
	_, err = locker.Acquire(context.Background(), userID, captureID, time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	again()
}
