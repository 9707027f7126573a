package cache_test

import (
	"context"
	"testing"
	"time"

	"booking/cache"
	"booking/entity"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmWritesEverySeat(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := cache.NewSeatStatus(client, time.Hour)

	mock.ExpectSet("event:1::seat:10", "AVAILABLE", time.Hour).SetVal("OK")
	mock.ExpectSet("event:1::seat:11", "HOLD", time.Hour).SetVal("OK")

	err := c.Warm(context.Background(), []entity.Seat{
		{ID: 10, EventID: 1, Status: entity.SeatAvailable},
		{ID: 11, EventID: 1, Status: entity.SeatHold},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHitAndMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := cache.NewSeatStatus(client, time.Hour)

	mock.ExpectGet("event:1::seat:10").SetVal("BOOKED")
	mock.ExpectGet("event:1::seat:11").RedisNil()

	status, ok, err := c.Get(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entity.SeatBooked, status)

	_, ok, err = c.Get(context.Background(), 1, 11)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
