package cashdesk

import (
	"context"
	"sync"
	"time"

	id "esfe/pkg/domain"
)

type memorySession struct {
	agentCode string
	code      string
	expiresAt time.Time
}

// InMemory is the single-instance code store used when Redis is not
// configured.
type InMemory struct {
	mu       sync.Mutex
	sessions map[id.EnrollmentID]memorySession
	now      func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[id.EnrollmentID]memorySession),
		now:      time.Now,
	}
}

func (s *InMemory) Issue(_ context.Context, enrollmentID id.EnrollmentID, agentCode, candidate string, ttl time.Duration) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if live, ok := s.sessions[enrollmentID]; ok && now.Before(live.expiresAt) {
		return &Session{
			EnrollmentID: enrollmentID,
			AgentCode:    live.agentCode,
			Code:         live.code,
			ExpiresAt:    live.expiresAt,
			Reused:       true,
		}, nil
	}
	session := memorySession{agentCode: agentCode, code: candidate, expiresAt: now.Add(ttl)}
	s.sessions[enrollmentID] = session
	return &Session{
		EnrollmentID: enrollmentID,
		AgentCode:    agentCode,
		Code:         candidate,
		ExpiresAt:    session.expiresAt,
	}, nil
}

func (s *InMemory) Consume(_ context.Context, enrollmentID id.EnrollmentID, code string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[enrollmentID]
	if !ok || code == "" || live.code != code {
		return "", false, nil
	}
	delete(s.sessions, enrollmentID)
	if !s.now().Before(live.expiresAt) {
		return "", false, nil
	}
	return live.agentCode, true, nil
}
