package cashdesk

import (
	"context"
	"sync"
	"time"

	id "esfe/pkg/domain"
	"esfe/pkg/platform/sentinel"
)

// InMemoryAgents is the agent registry used without Postgres.
type InMemoryAgents struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewInMemoryAgents() *InMemoryAgents {
	return &InMemoryAgents{agents: make(map[string]*Agent)}
}

func (s *InMemoryAgents) CreateAgent(_ context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agent.Code]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range s.agents {
		if existing.StaffID == agent.StaffID {
			return sentinel.ErrConflict
		}
	}
	stored := *agent
	s.agents[agent.Code] = &stored
	return nil
}

func (s *InMemoryAgents) FindAgent(_ context.Context, code string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[code]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *agent
	return &out, nil
}

func (s *InMemoryAgents) FindAgentByStaff(_ context.Context, staffID id.StaffID) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, agent := range s.agents {
		if agent.StaffID == staffID {
			out := *agent
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryAgents) SetAgentActive(_ context.Context, code string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[code]
	if !ok {
		return sentinel.ErrNotFound
	}
	agent.Active = active
	agent.UpdatedAt = at
	return nil
}
