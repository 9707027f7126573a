package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, token string) (*Coordinator, redismock.ClientMock) {
	t.Helper()

	client, mock := redismock.NewClientMock()
	c := NewCoordinator(client)
	c.newToken = func() string { return token }

	return c, mock
}

func TestAcquireAndRelease(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-1")

	mock.ExpectSetNX("lock:seats:1,2,3", "token-1", 10*time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"lock:seats:1,2,3"}, "token-1").SetVal(int64(1))

	h, err := c.Acquire(context.Background(), []int64{1, 2, 3}, 5*time.Second, 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, h.Release(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireSortsSeatIDs(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-2")

	// Requests for [3 1 2] and [1 2 3] must contend on the same key.
	mock.ExpectSetNX("lock:seats:1,2,3", "token-2", 10*time.Second).SetVal(true)

	_, err := c.Acquire(context.Background(), []int64{3, 1, 2}, 5*time.Second, 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireDeduplicatesSeatIDs(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-7")

	// [2 1 2] and [1 2] must contend on the same key.
	mock.ExpectSetNX("lock:seats:1,2", "token-7", 10*time.Second).SetVal(true)

	_, err := c.Acquire(context.Background(), []int64{2, 1, 2}, 5*time.Second, 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireContention(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-3")

	mock.ExpectSetNX("lock:seats:7", "token-3", time.Second).SetVal(false)

	_, err := c.Acquire(context.Background(), []int64{7}, 0, time.Second)
	assert.ErrorIs(t, err, ErrContention)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireRetriesUntilLockFrees(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-4")

	mock.ExpectSetNX("lock:seats:7", "token-4", time.Second).SetVal(false)
	mock.ExpectSetNX("lock:seats:7", "token-4", time.Second).SetVal(true)

	h, err := c.Acquire(context.Background(), []int64{7}, time.Second, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "lock:seats:7", h.key)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseIsIdempotent(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-5")

	mock.ExpectSetNX("lock:seats:9", "token-5", time.Second).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"lock:seats:9"}, "token-5").SetVal(int64(1))

	h, err := c.Acquire(context.Background(), []int64{9}, time.Second, time.Second)
	require.NoError(t, err)

	require.NoError(t, h.Release(context.Background()))
	// Second release must not touch Redis again.
	require.NoError(t, h.Release(context.Background()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	c, mock := newTestCoordinator(t, "token-6")

	mock.ExpectSetNX("lock:seats:5", "token-6", time.Second).SetVal(false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Acquire(ctx, []int64{5}, time.Minute, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
