package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esfe/pkg/requestcontext"
)

func TestInMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := range 3 {
		res, err := s.Allow(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)

	other, err := s.Allow(ctx, "other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	now = now.Add(61 * time.Second)
	res, err = s.Allow(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestRedisSlidingWindow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client)
	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for range 2 {
		res, err := s.Allow(ctx, "public:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := s.Allow(ctx, "public:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())
	assert.True(t, mr.Exists("rl:public:10.0.0.1"))

	now = now.Add(2 * time.Minute)
	res, err = s.Allow(ctx, "public:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	request := func(ip string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/public/enrollments/tok", nil)
		return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
	}

	t.Run("refuses past the limit per ip", func(t *testing.T) {
		h := New(NewInMemory(), 2, time.Minute, logger).Limit("public")(ok)

		for range 2 {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("10.0.0.1"))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.2"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("store failure lets requests through", func(t *testing.T) {
		h := New(failingStore{}, 1, time.Minute, logger).Limit("public")(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("zero limit disables", func(t *testing.T) {
		h := New(failingStore{}, 0, time.Minute, logger).Limit("public")(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	})
}
