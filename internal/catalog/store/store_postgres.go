package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"esfe/internal/catalog/models"
	"esfe/internal/platform/postgres"
	id "esfe/pkg/domain"
	"esfe/pkg/platform/sentinel"
)

const ruleColumns = `id, programme_id, label, fee_type, amount, sort_order, mandatory, active, created_at, updated_at`

// PostgresStore persists the catalog in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateProgramme(ctx context.Context, p *models.Programme) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO programmes (id, code, name, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(p.ID), p.Code, p.Name, p.CreatedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert programme: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindProgramme(ctx context.Context, programmeID id.ProgrammeID) (*models.Programme, error) {
	var p models.Programme
	var pid uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM programmes WHERE id = $1`,
		uuid.UUID(programmeID),
	).Scan(&pid, &p.Code, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find programme: %w", err)
	}
	p.ID = id.ProgrammeID(pid)
	return &p, nil
}

func (s *PostgresStore) CreateRule(ctx context.Context, rule *models.FeeRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fee_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(rule.ID), uuid.UUID(rule.ProgrammeID), rule.Label, string(rule.Type),
		rule.Amount, rule.Order, rule.Mandatory, rule.Active, rule.CreatedAt, rule.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, "fee_rules_programme_label_key") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert fee rule: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, rule *models.FeeRule) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fee_rules
		SET amount = $2, sort_order = $3, mandatory = $4, active = $5, updated_at = $6
		WHERE id = $1
	`,
		uuid.UUID(rule.ID), rule.Amount, rule.Order, rule.Mandatory, rule.Active, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update fee rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindRule(ctx context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM fee_rules WHERE id = $1`, uuid.UUID(ruleID))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find fee rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, programmeID id.ProgrammeID, activeOnly bool) ([]*models.FeeRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM fee_rules
		WHERE programme_id = $1 AND (active OR NOT $2)
		ORDER BY sort_order, label
	`, uuid.UUID(programmeID), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}
	defer rows.Close()

	var out []*models.FeeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateYear(ctx context.Context, year *models.AcademicYear) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO academic_years (id, label, start_year, is_active, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
	`, uuid.UUID(year.ID), year.Label, year.StartYear, year.CreatedAt)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert academic year: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindYear(ctx context.Context, yearID id.AcademicYearID) (*models.AcademicYear, error) {
	return s.findYear(ctx, `WHERE id = $1`, uuid.UUID(yearID))
}

func (s *PostgresStore) ActiveYear(ctx context.Context) (*models.AcademicYear, error) {
	return s.findYear(ctx, `WHERE is_active`)
}

func (s *PostgresStore) findYear(ctx context.Context, where string, args ...any) (*models.AcademicYear, error) {
	var year models.AcademicYear
	var yid uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, start_year, is_active, created_at FROM academic_years `+where,
		args...,
	).Scan(&yid, &year.Label, &year.StartYear, &year.IsActive, &year.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find academic year: %w", err)
	}
	year.ID = id.AcademicYearID(yid)
	return &year, nil
}

// ActivateYear clears every other active flag and sets yearID in one
// transaction. The partial unique index on is_active backs this up.
func (s *PostgresStore) ActivateYear(ctx context.Context, yearID id.AcademicYearID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin activate year: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT TRUE FROM academic_years WHERE id = $1 FOR UPDATE`, uuid.UUID(yearID),
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock academic year: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE academic_years SET is_active = FALSE WHERE is_active AND id <> $1`, uuid.UUID(yearID),
	); err != nil {
		return fmt.Errorf("clear active year: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE academic_years SET is_active = TRUE WHERE id = $1`, uuid.UUID(yearID),
	); err != nil {
		return fmt.Errorf("set active year: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.FeeRule, error) {
	var rule models.FeeRule
	var rid, pid uuid.UUID
	var feeType string
	if err := row.Scan(&rid, &pid, &rule.Label, &feeType, &rule.Amount, &rule.Order,
		&rule.Mandatory, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}
	rule.ID = id.FeeRuleID(rid)
	rule.ProgrammeID = id.ProgrammeID(pid)
	rule.Type = models.FeeType(feeType)
	return &rule, nil
}
