package cashdesk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"esfe/internal/platform/postgres"
	id "esfe/pkg/domain"
	"esfe/pkg/platform/sentinel"
)

const agentColumns = `agent_code, staff_id, name, is_active, created_at, updated_at`

// PostgresAgents persists the agent registry in the payment_agents table.
type PostgresAgents struct {
	db *sql.DB
}

func NewPostgresAgents(db *sql.DB) *PostgresAgents {
	return &PostgresAgents{db: db}
}

func (s *PostgresAgents) CreateAgent(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, agent.Code, uuid.UUID(agent.StaffID), agent.Name, agent.Active, agent.CreatedAt, agent.UpdatedAt)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert payment agent: %w", err)
	}
	return nil
}

func (s *PostgresAgents) FindAgent(ctx context.Context, code string) (*Agent, error) {
	return s.findAgent(ctx, `agent_code = $1`, code)
}

func (s *PostgresAgents) FindAgentByStaff(ctx context.Context, staffID id.StaffID) (*Agent, error) {
	return s.findAgent(ctx, `staff_id = $1`, uuid.UUID(staffID))
}

func (s *PostgresAgents) findAgent(ctx context.Context, where string, arg any) (*Agent, error) {
	var (
		agent Agent
		staff uuid.UUID
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM payment_agents WHERE `+where, arg).
		Scan(&agent.Code, &staff, &agent.Name, &agent.Active, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment agent: %w", err)
	}
	agent.StaffID = id.StaffID(staff)
	return &agent, nil
}

func (s *PostgresAgents) SetAgentActive(ctx context.Context, code string, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_agents SET is_active = $2, updated_at = $3 WHERE agent_code = $1`,
		code, active, at,
	)
	if err != nil {
		return fmt.Errorf("update payment agent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
