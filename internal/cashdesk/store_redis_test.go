package cashdesk

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "esfe/pkg/domain"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreIssueReusesLiveCode(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	enrollmentID := id.EnrollmentID(uuid.New())

	first, err := store.Issue(ctx, enrollmentID, "A1B2C3", "123456", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, first.Reused)
	assert.Equal(t, "123456", first.Code)

	second, err := store.Issue(ctx, enrollmentID, "FFFFFF", "654321", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, "123456", second.Code)
	assert.Equal(t, "A1B2C3", second.AgentCode)
}

func TestRedisStoreConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	enrollmentID := id.EnrollmentID(uuid.New())

	_, err := store.Issue(ctx, enrollmentID, "A1B2C3", "123456", 5*time.Minute)
	require.NoError(t, err)

	_, ok, err := store.Consume(ctx, enrollmentID, "000000")
	require.NoError(t, err)
	assert.False(t, ok, "wrong code must not burn the session")

	agentCode, ok, err := store.Consume(ctx, enrollmentID, "123456")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "A1B2C3", agentCode)

	_, ok, err = store.Consume(ctx, enrollmentID, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(sessionKey(enrollmentID)))

	next, err := store.Issue(ctx, enrollmentID, "A1B2C3", "777777", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, next.Reused)
	assert.Equal(t, "777777", next.Code)
}

func TestRedisStoreCodeExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	enrollmentID := id.EnrollmentID(uuid.New())

	_, err := store.Issue(ctx, enrollmentID, "A1B2C3", "123456", 5*time.Minute)
	require.NoError(t, err)
	mr.FastForward(6 * time.Minute)

	_, ok, err := store.Consume(ctx, enrollmentID, "123456")
	require.NoError(t, err)
	assert.False(t, ok)

	fresh, err := store.Issue(ctx, enrollmentID, "A1B2C3", "222222", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh.Reused)
}

func TestRedisStoreCodesAreScopedToEnrollment(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)
	owner := id.EnrollmentID(uuid.New())
	other := id.EnrollmentID(uuid.New())

	_, err := store.Issue(ctx, owner, "A1B2C3", "123456", 5*time.Minute)
	require.NoError(t, err)

	_, ok, err := store.Consume(ctx, other, "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}
