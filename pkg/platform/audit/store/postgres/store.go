package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "esfe/pkg/platform/audit"
	txcontext "esfe/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// outbox relay. When ctx carries a transaction the outbox row joins it.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON structure published to Kafka.
type Payload struct {
	ID           string `json:"id"`
	Category     string `json:"category"`
	Timestamp    string `json:"timestamp"`
	EnrollmentID string `json:"enrollment_id,omitempty"`
	Subject      string `json:"subject"`
	Action       string `json:"action"`
	Amount       string `json:"amount,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	ActorID      string `json:"actor_id,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	payloadBytes, err := json.Marshal(Payload{
		ID:           eventID.String(),
		Category:     string(category),
		Timestamp:    event.Timestamp.Format(time.RFC3339Nano),
		EnrollmentID: event.EnrollmentID,
		Subject:      event.Subject,
		Action:       event.Action,
		Amount:       event.Amount,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
		ActorID:      event.ActorID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.EnrollmentID != "" {
		aggregateType = "enrollment"
		aggregateID = event.EnrollmentID
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// OutboxEntry is an unpublished outbox row.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// ClaimBatch locks up to limit unpublished rows and hands them to publish.
// Rows publish accepted are marked published in the same transaction;
// SKIP LOCKED lets several relays run side by side.
func (s *Store) ClaimBatch(ctx context.Context, limit int, publish func(ctx context.Context, entries []OutboxEntry) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox claim: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("select outbox batch: %w", err)
	}
	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox batch: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	if err := publish(ctx, entries); err != nil {
		return 0, err
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID.String()
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`,
		pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox claim: %w", err)
	}
	return len(entries), nil
}
