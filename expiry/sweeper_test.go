package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderRepo struct {
	expirable  []int64
	findErr    error
	terminal   map[int64]bool
	expireErrs map[int64]error
	expired    []int64
	cutoffSeen time.Time
}

func (r *fakeOrderRepo) FindExpirable(_ context.Context, cutoff time.Time) ([]int64, error) {
	r.cutoffSeen = cutoff
	return r.expirable, r.findErr
}

func (r *fakeOrderRepo) Expire(_ context.Context, orderID int64) (bool, error) {
	if err := r.expireErrs[orderID]; err != nil {
		return false, err
	}
	if r.terminal[orderID] {
		return false, nil
	}

	r.expired = append(r.expired, orderID)
	return true, nil
}

func TestSweepExpiresAbandonedOrders(t *testing.T) {
	repo := &fakeOrderRepo{expirable: []int64{1, 2, 3}}
	s := NewSweeper(repo, 15*time.Minute, time.Minute)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Sweep(context.Background()))

	assert.Equal(t, []int64{1, 2, 3}, repo.expired)
	assert.Equal(t, now.Add(-15*time.Minute), repo.cutoffSeen)
}

func TestSweepToleratesLosingTerminalRace(t *testing.T) {
	// Order 2 was settled by the consumer between FindExpirable and
	// Expire; the sweeper must accept that outcome.
	repo := &fakeOrderRepo{
		expirable: []int64{1, 2},
		terminal:  map[int64]bool{2: true},
	}
	s := NewSweeper(repo, 15*time.Minute, time.Minute)

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, []int64{1}, repo.expired)
}

func TestSweepContinuesPastFailingOrder(t *testing.T) {
	repo := &fakeOrderRepo{
		expirable:  []int64{1, 2, 3},
		expireErrs: map[int64]error{2: errors.New("deadlock detected")},
	}
	s := NewSweeper(repo, 15*time.Minute, time.Minute)

	require.NoError(t, s.Sweep(context.Background()))
	assert.Equal(t, []int64{1, 3}, repo.expired)
}

func TestSweepPropagatesFindError(t *testing.T) {
	repo := &fakeOrderRepo{findErr: errors.New("connection refused")}
	s := NewSweeper(repo, 15*time.Minute, time.Minute)

	assert.Error(t, s.Sweep(context.Background()))
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	repo := &fakeOrderRepo{}
	s := NewSweeper(repo, 15*time.Minute, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
