// Package lock provides distributed mutual exclusion over sets of seat
// IDs, backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrContention is returned when the lock could not be acquired within
// the wait timeout. It is retryable by the caller, never automatically.
var ErrContention = errors.New("seats are being processed by another request")

const keyPrefix = "lock:seats:"

// Seat IDs are sorted and de-duplicated before key construction, so
// overlapping seat sets always contend on the same composite key
// regardless of request order or repeated ids.
func lockKey(seatIDs []int64) string {
	sorted := make([]int64, len(seatIDs))
	copy(sorted, seatIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && id == sorted[i-1] {
			continue
		}
		parts = append(parts, strconv.FormatInt(id, 10))
	}

	return keyPrefix + strings.Join(parts, ",")
}

// Release deletes the key only if it still holds this handle's token, so
// a holder whose lock already expired cannot delete a successor's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

const acquireRetryInterval = 50 * time.Millisecond

type Coordinator struct {
	client redis.Cmdable

	newToken func() string
}

func NewCoordinator(client redis.Cmdable) *Coordinator {
	return &Coordinator{
		client:   client,
		newToken: uuid.NewString,
	}
}

// Handle represents a held lock. Release is idempotent.
type Handle struct {
	client   redis.Cmdable
	key      string
	token    string
	released bool
}

// Acquire blocks until the composite lock for seatIDs is taken or wait
// elapses, in which case it returns ErrContention. The hold duration is
// the auto-expiry ceiling: a crashed holder cannot wedge the lock past
// it.
func (c *Coordinator) Acquire(ctx context.Context, seatIDs []int64, wait, hold time.Duration) (*Handle, error) {
	key := lockKey(seatIDs)
	token := c.newToken()

	deadline := time.Now().Add(wait)
	for {
		ok, err := c.client.SetNX(ctx, key, token, hold).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
		}
		if ok {
			return &Handle{client: c.client, key: key, token: token}, nil
		}

		if time.Now().Add(acquireRetryInterval).After(deadline) {
			return nil, ErrContention
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquireRetryInterval):
		}
	}
}

// Release frees the lock. Calling it more than once is safe; the second
// call is a no-op.
func (h *Handle) Release(ctx context.Context) error {
	if h.released {
		return nil
	}
	h.released = true

	if err := h.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Err(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", h.key, err)
	}

	return nil
}
