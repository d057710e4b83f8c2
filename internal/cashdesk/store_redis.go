package cashdesk

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	id "esfe/pkg/domain"
)

const (
	// cash:session:{enrollment} -> code
	sessionKeyPrefix = "cash:session:"
	// cash:code:{enrollment}:{code} -> agent code
	codeKeyPrefix = "cash:code:"
)

// RedisStore keeps codes in Redis so every instance sees the same sessions.
// A code lives under two keys with the same TTL: the session pointer used to
// hand the live code out again, and the code key spent with GETDEL.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(enrollmentID id.EnrollmentID) string {
	return sessionKeyPrefix + enrollmentID.String()
}

func codeKey(enrollmentID id.EnrollmentID, code string) string {
	return codeKeyPrefix + enrollmentID.String() + ":" + code
}

func (s *RedisStore) Issue(ctx context.Context, enrollmentID id.EnrollmentID, agentCode, candidate string, ttl time.Duration) (*Session, error) {
	created, err := s.client.SetNX(ctx, sessionKey(enrollmentID), candidate, ttl).Result()
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.client.Set(ctx, codeKey(enrollmentID, candidate), agentCode, ttl).Err(); err != nil {
			return nil, err
		}
		return &Session{
			EnrollmentID: enrollmentID,
			AgentCode:    agentCode,
			Code:         candidate,
			ExpiresAt:    time.Now().Add(ttl),
		}, nil
	}

	code, err := s.client.Get(ctx, sessionKey(enrollmentID)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Issue(ctx, enrollmentID, agentCode, candidate, ttl)
	}
	if err != nil {
		return nil, err
	}
	remaining, err := s.client.PTTL(ctx, codeKey(enrollmentID, code)).Result()
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		// the code was spent; drop the stale pointer and start over
		if err := s.client.Del(ctx, sessionKey(enrollmentID)).Err(); err != nil {
			return nil, err
		}
		return s.Issue(ctx, enrollmentID, agentCode, candidate, ttl)
	}
	owner, err := s.client.Get(ctx, codeKey(enrollmentID, code)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return &Session{
		EnrollmentID: enrollmentID,
		AgentCode:    owner,
		Code:         code,
		ExpiresAt:    time.Now().Add(remaining),
		Reused:       true,
	}, nil
}

func (s *RedisStore) Consume(ctx context.Context, enrollmentID id.EnrollmentID, code string) (string, bool, error) {
	if code == "" {
		return "", false, nil
	}
	agentCode, err := s.client.GetDel(ctx, codeKey(enrollmentID, code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := s.client.Del(ctx, sessionKey(enrollmentID)).Err(); err != nil {
		return agentCode, true, err
	}
	return agentCode, true, nil
}
