package cashdesk

import (
	"context"
	"errors"
	"strings"
	"time"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/sentinel"
	"esfe/pkg/requestcontext"
	"esfe/pkg/secrets"
)

const maxAgentCodeAttempts = 5

// Agent is a staff member allowed to take cash at the desk. A staff member
// has at most one agent code and the code never changes.
type Agent struct {
	Code      string     `json:"agent_code"`
	StaffID   id.StaffID `json:"staff_id"`
	Name      string     `json:"name"`
	Active    bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AgentStore persists the agent registry. CreateAgent returns
// sentinel.ErrConflict when the code or the staff member is taken.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	FindAgent(ctx context.Context, code string) (*Agent, error)
	FindAgentByStaff(ctx context.Context, staffID id.StaffID) (*Agent, error)
	SetAgentActive(ctx context.Context, code string, active bool, at time.Time) error
}

// RegisterAgent gives a staff member a fresh agent code.
func (s *Service) RegisterAgent(ctx context.Context, staffID id.StaffID, name string) (*Agent, error) {
	if staffID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "staff is required")
	}
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		return nil, dErrors.New(dErrors.CodeValidation, "agent name is required")
	}

	switch _, err := s.agents.FindAgentByStaff(ctx, staffID); {
	case err == nil:
		return nil, dErrors.New(dErrors.CodeConflict, "staff member already has an agent code")
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, agentErr(err)
	}

	now := requestcontext.Now(ctx)
	var err error
	for range maxAgentCodeAttempts {
		var code string
		code, err = secrets.HexCode(3)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate agent code")
		}
		agent := &Agent{
			Code:      code,
			StaffID:   staffID,
			Name:      name,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.agents.CreateAgent(ctx, agent)
		if err == nil {
			s.emit(ctx, audit.EventCashAgentRegistered, code, "")
			s.logger.InfoContext(ctx, "cash agent registered",
				"agent_code", code,
				"staff_id", staffID.String(),
				"request_id", requestcontext.RequestID(ctx),
			)
			return agent, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register agent")
		}
	}
	return nil, dErrors.Wrap(err, dErrors.CodeConflict, "could not allocate a unique agent code")
}

// SetAgentActive enables or disables an agent. Disabled agents cannot open
// sessions; codes they already handed out stay valid until they expire.
func (s *Service) SetAgentActive(ctx context.Context, code string, active bool) (*Agent, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := s.agents.SetAgentActive(ctx, code, active, requestcontext.Now(ctx)); err != nil {
		return nil, agentErr(err)
	}
	agent, err := s.agents.FindAgent(ctx, code)
	if err != nil {
		return nil, agentErr(err)
	}
	reason := "deactivated"
	if active {
		reason = "activated"
	}
	s.emit(ctx, audit.EventCashAgentStatus, code, reason)
	return agent, nil
}

// verifyAgent resolves a code to an active agent.
func (s *Service) verifyAgent(ctx context.Context, code string) (*Agent, error) {
	agent, err := s.agents.FindAgent(ctx, code)
	if err != nil {
		return nil, agentErr(err)
	}
	if !agent.Active {
		return nil, dErrors.New(dErrors.CodeForbidden, "payment agent is inactive")
	}
	return agent, nil
}

func agentErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "payment agent not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access payment agents")
}
