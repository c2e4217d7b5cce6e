package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== LOCAL LOCKER TESTS =====

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "disbursement:company-1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "disbursement:company-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := l.Acquire(ctx, "disbursement:company-2", time.Minute)
	require.NoError(t, err, "locks are per key")
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "disbursement:company-1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalLocker_Expires(t *testing.T) {
	l := NewLocalLocker().(*localLocker)
	now := time.Now()
	l.now = func() time.Time { return now }

	_, err := l.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = l.Acquire(context.Background(), "k", time.Second)
	assert.NoError(t, err, "an expired holder no longer blocks")
}

// ===== REDIS LOCKER TESTS =====

const uuidPattern = `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)
	key := "lock:disbursement:company-1"

	mock.Regexp().ExpectSetNX(key, uuidPattern, time.Minute).SetVal(true)
	mock.Regexp().ExpectEvalSha(releaseScript.Hash(), []string{key}, uuidPattern).SetVal(int64(1))

	release, err := l.Acquire(context.Background(), "disbursement:company-1", time.Minute)
	require.NoError(t, err)

	release()
	release()

	assert.NoError(t, mock.ExpectationsWereMet(), "release runs the owner script exactly once")
}

func TestRedisLocker_HeldByAnotherOwner(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)

	mock.Regexp().ExpectSetNX("lock:disbursement:company-1", uuidPattern, time.Minute).SetVal(false)

	release, err := l.Acquire(context.Background(), "disbursement:company-1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Nil(t, release)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLocker_RedisUnavailable(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)

	mock.Regexp().ExpectSetNX("lock:disbursement:company-1", uuidPattern, time.Minute).SetErr(errors.New("connection refused"))

	_, err := l.Acquire(context.Background(), "disbursement:company-1", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockHeld)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisLocker_ReleaseSurvivesCancelledContext(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := NewRedisLocker(db)
	key := "lock:disbursement:company-1"

	mock.Regexp().ExpectSetNX(key, uuidPattern, time.Minute).SetVal(true)
	mock.Regexp().ExpectEvalSha(releaseScript.Hash(), []string{key}, uuidPattern).SetVal(int64(1))

	ctx, cancel := context.WithCancel(context.Background())
	release, err := l.Acquire(ctx, "disbursement:company-1", time.Minute)
	require.NoError(t, err)

	cancel()
	release()

	assert.NoError(t, mock.ExpectationsWereMet())
}
