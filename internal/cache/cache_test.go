package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestRedisCache_Set(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name        string
		value       any
		setupMock   func(mock redismock.ClientMock, value any)
		expectedErr string
	}{
		{
			name:  "Success",
			value: []sample{{ID: "105", Name: "WIEN/HOHE WARTE"}},
			setupMock: func(mock redismock.ClientMock, value any) {
				jsonData, _ := json.Marshal(value)
				mock.ExpectSet("geoclim:stations", jsonData, time.Hour).SetVal("OK")
			},
		},
		{
			name:        "Error on marshal",
			value:       make(chan int),
			setupMock:   func(mock redismock.ClientMock, value any) {},
			expectedErr: "unsupported type",
		},
		{
			name:  "Error from Redis client",
			value: "x",
			setupMock: func(mock redismock.ClientMock, value any) {
				jsonData, _ := json.Marshal(value)
				mock.ExpectSet("geoclim:stations", jsonData, time.Hour).SetErr(errors.New("redis error"))
			},
			expectedErr: "redis error",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			defer client.Close()
			c := NewRedisCache(client, "geoclim:")

			tc.setupMock(mock, tc.value)
			err := c.Set(ctx, "stations", tc.value, time.Hour)

			if tc.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErr)
			} else {
				require.NoError(t, err)
				assert.NoError(t, mock.ExpectationsWereMet())
			}
		})
	}
}

func TestRedisCache_Get(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	defer client.Close()
	c := NewRedisCache(client, "geoclim:")

	mock.ExpectGet("geoclim:stations").SetVal(`[{"id":"105","name":"WIEN/HOHE WARTE"}]`)
	var got []sample
	require.NoError(t, c.Get(ctx, "stations", &got))
	assert.Equal(t, []sample{{ID: "105", Name: "WIEN/HOHE WARTE"}}, got)

	mock.ExpectGet("geoclim:stations").RedisNil()
	assert.ErrorIs(t, c.Get(ctx, "stations", &got), ErrCacheMiss)

	mock.ExpectGet("geoclim:stations").SetErr(errors.New("connection refused"))
	err := c.Get(ctx, "stations", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))

	mock.ExpectDel("geoclim:stations").SetVal(1)
	assert.NoError(t, c.Delete(ctx, "stations"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "ttl", sample{ID: "1"}, time.Minute))
	require.NoError(t, c.Set(ctx, "forever", sample{ID: "2"}, 0))

	var got sample
	require.NoError(t, c.Get(ctx, "ttl", &got))
	assert.Equal(t, "1", got.ID)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "ttl", &got), ErrCacheMiss)

	now = now.Add(24 * 365 * time.Hour)
	require.NoError(t, c.Get(ctx, "forever", &got))
	assert.Equal(t, "2", got.ID)

	require.NoError(t, c.Delete(ctx, "forever"))
	assert.ErrorIs(t, c.Get(ctx, "forever", &got), ErrCacheMiss)
}
