package order_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"booking/entity"
	"booking/lock"
	"booking/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	locker   *fakeLocker
	key      string
	released bool
}

func (h *fakeHandle) Release(_ context.Context) error {
	if h.released {
		return nil
	}
	h.released = true

	h.locker.mu.Lock()
	delete(h.locker.held, h.key)
	h.locker.mu.Unlock()

	return nil
}

// fakeLocker mimics the coordinator's composite-key semantics: sorted
// seat sets, one holder per key, contention instead of blocking.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(_ context.Context, seatIDs []int64, _, _ time.Duration) (order.LockHandle, error) {
	sorted := make([]int64, len(seatIDs))
	copy(sorted, seatIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	key := strings.Join(parts, ",")

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, lock.ErrContention
	}
	l.held[key] = true

	return &fakeHandle{locker: l, key: key}, nil
}

type fakeOrderRepo struct {
	mu         sync.Mutex
	nextID     int64
	created    []entity.Order
	waiting    map[int64]string
	released   []int64
	createErr  error
	waitingErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, waiting: map[int64]string{}}
}

func (r *fakeOrderRepo) Create(_ context.Context, userID int64, seatIDs []int64, payType string) (entity.Order, error) {
	if r.createErr != nil {
		return entity.Order{}, r.createErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o := entity.Order{
		ID:      r.nextID,
		UserID:  userID,
		Amount:  int64(len(seatIDs)) * 100,
		PayType: payType,
		Status:  entity.OrderPending,
	}
	for _, seatID := range seatIDs {
		o.Tickets = append(o.Tickets, entity.Ticket{
			OrderID: o.ID,
			SeatID:  seatID,
			EventID: 1,
			Status:  entity.TicketReserved,
		})
	}
	r.nextID++
	r.created = append(r.created, o)

	return o, nil
}

func (r *fakeOrderRepo) MarkWaitingPayment(_ context.Context, orderID int64, gatewaySession string) error {
	if r.waitingErr != nil {
		return r.waitingErr
	}

	r.mu.Lock()
	r.waiting[orderID] = gatewaySession
	r.mu.Unlock()

	return nil
}

func (r *fakeOrderRepo) Release(_ context.Context, orderID int64) error {
	r.mu.Lock()
	r.released = append(r.released, orderID)
	r.mu.Unlock()

	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	sessions []int64
	err      error

	beforeCall func()
}

func (g *fakeGateway) CreateSession(_ context.Context, orderID, _ int64, _ string) (string, error) {
	if g.beforeCall != nil {
		g.beforeCall()
	}
	if g.err != nil {
		return "", g.err
	}

	g.mu.Lock()
	g.sessions = append(g.sessions, orderID)
	g.mu.Unlock()

	return "https://gateway.example.com/pay/" + strconv.FormatInt(orderID, 10), nil
}

type fakeSeatCache struct {
	mu       sync.Mutex
	statuses map[int64]entity.SeatStatus
}

func newFakeSeatCache() *fakeSeatCache {
	return &fakeSeatCache{statuses: map[int64]entity.SeatStatus{}}
}

func (c *fakeSeatCache) Set(_ context.Context, _, seatID int64, status entity.SeatStatus) error {
	c.mu.Lock()
	c.statuses[seatID] = status
	c.mu.Unlock()

	return nil
}

func newTestService(locker order.Locker, repo *fakeOrderRepo, gateway *fakeGateway, cache *fakeSeatCache) *order.Service {
	return order.NewService(locker, repo, gateway, cache, 5*time.Second, 10*time.Second)
}

func TestCreateOrder(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	gateway := &fakeGateway{}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	res, err := svc.Create(context.Background(), 7, []int64{1, 2}, "MOMO")
	require.NoError(t, err)

	assert.Equal(t, int64(200), res.Order.Amount)
	assert.Equal(t, entity.OrderWaitingPayment, res.Order.Status)
	assert.Equal(t, "https://gateway.example.com/pay/1", res.PayURL)
	assert.Len(t, res.Order.Tickets, 2)

	assert.Equal(t, res.PayURL, repo.waiting[res.Order.ID])
	assert.Equal(t, entity.SeatHold, cache.statuses[1])
	assert.Equal(t, entity.SeatHold, cache.statuses[2])

	// The composite lock must be free once checkout completes.
	assert.Empty(t, locker.held)
}

func TestCreateOrderReleasesLockBeforeGatewayCall(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	cache := newFakeSeatCache()

	gateway := &fakeGateway{}
	gateway.beforeCall = func() {
		locker.mu.Lock()
		defer locker.mu.Unlock()
		assert.Empty(t, locker.held, "lock still held during gateway call")
	}

	svc := newTestService(locker, repo, gateway, cache)

	_, err := svc.Create(context.Background(), 7, []int64{1}, "MOMO")
	require.NoError(t, err)
}

func TestCreateOrderContention(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	gateway := &fakeGateway{}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	held, err := locker.Acquire(context.Background(), []int64{2, 1}, 0, 0)
	require.NoError(t, err)
	defer held.Release(context.Background())

	// Overlap in any order contends on the same key.
	_, err = svc.Create(context.Background(), 7, []int64{1, 2}, "MOMO")
	assert.ErrorIs(t, err, lock.ErrContention)

	// Contention must cause no mutation at all.
	assert.Empty(t, repo.created)
	assert.Empty(t, gateway.sessions)
}

func TestCreateOrderDisjointSetsDoNotBlock(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	gateway := &fakeGateway{}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Create(context.Background(), 7, []int64{1, 2}, "MOMO")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Create(context.Background(), 8, []int64{3, 4}, "MOMO")
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, repo.created, 2)
}

func TestCreateOrderSeatUnavailable(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	repo.createErr = errors.New("seat A1 is not available (status HOLD)")
	gateway := &fakeGateway{}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	_, err := svc.Create(context.Background(), 7, []int64{1}, "MOMO")
	require.Error(t, err)

	// Validation failure exits through the deferred release.
	assert.Empty(t, locker.held)
	assert.Empty(t, gateway.sessions)
	assert.Empty(t, repo.released)
}

func TestCreateOrderGatewayFailureCompensates(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	gateway := &fakeGateway{err: errors.New("gateway unavailable")}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	_, err := svc.Create(context.Background(), 7, []int64{1, 2}, "MOMO")

	var initErr order.PaymentInitiationError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, initErr.PaymentInitiationFailed())

	// Seats must be compensated back to AVAILABLE, not left on HOLD.
	assert.Equal(t, []int64{1}, repo.released)
	assert.Equal(t, entity.SeatAvailable, cache.statuses[1])
	assert.Equal(t, entity.SeatAvailable, cache.statuses[2])
	assert.Empty(t, locker.held)
}

func TestCreateOrderDeduplicatesSeatIDs(t *testing.T) {
	locker := newFakeLocker()
	repo := newFakeOrderRepo()
	gateway := &fakeGateway{}
	cache := newFakeSeatCache()
	svc := newTestService(locker, repo, gateway, cache)

	// Naming a seat twice means one seat, not a missing one.
	res, err := svc.Create(context.Background(), 7, []int64{1, 1, 2}, "MOMO")
	require.NoError(t, err)

	assert.Equal(t, int64(200), res.Order.Amount)
	assert.Len(t, res.Order.Tickets, 2)
}

func TestCreateOrderNoSeats(t *testing.T) {
	svc := newTestService(newFakeLocker(), newFakeOrderRepo(), &fakeGateway{}, newFakeSeatCache())

	_, err := svc.Create(context.Background(), 7, nil, "MOMO")
	assert.ErrorIs(t, err, order.ErrNoSeats)
}
