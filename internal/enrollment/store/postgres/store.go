// Package postgres persists the enrollment pipeline in PostgreSQL.
//
// Row locks (SELECT ... FOR UPDATE) are always taken enrollment first, then
// payment, then fee, so concurrent validations on one enrollment queue on the
// enrollment row instead of deadlocking.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	"esfe/internal/platform/postgres"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/sentinel"
	txcontext "esfe/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store implements service.Store over a *sql.DB or a *sql.Tx.
type Store struct {
	exec txcontext.Executor
}

func New(db *sql.DB) *Store {
	return &Store{exec: db}
}

// NewPostgresTx binds a store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *Store {
	return &Store{exec: tx}
}

// TxRunner opens a transaction per RunInTx call.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db, timeout: defaultTxTimeout}
}

func (t *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), NewPostgresTx(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify folds serialization failures and deadlocks into ErrConflict so
// callers retry them like any other contention.
func classify(err error) error {
	if postgres.IsRetryable(err) {
		return errors.Join(sentinel.ErrConflict, err)
	}
	return err
}

const enrollmentColumns = `id, application_id, programme_id, academic_year_id, start_year,
	candidate_name, candidate_email, status, is_active, matricule, public_token, access_code_hash,
	validated_by, validated_at, finalized_at, status_reason, notes, created_at, updated_at`

func (s *Store) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, enrollmentArgs(e)...)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) FindEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	return s.findEnrollment(ctx, `WHERE id = $1`, uuid.UUID(enrollmentID))
}

func (s *Store) FindEnrollmentForUpdate(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	return s.findEnrollment(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(enrollmentID))
}

func (s *Store) FindEnrollmentByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.Enrollment, error) {
	return s.findEnrollment(ctx, `WHERE application_id = $1`, uuid.UUID(applicationID))
}

func (s *Store) FindEnrollmentByToken(ctx context.Context, token string) (*models.Enrollment, error) {
	return s.findEnrollment(ctx, `WHERE public_token = $1`, token)
}

func (s *Store) findEnrollment(ctx context.Context, where string, args ...any) (*models.Enrollment, error) {
	row := s.exec.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments `+where, args...)
	e, err := scanEnrollment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return e, nil
}

// UpdateEnrollment writes the mutable columns. A matricule, once stored, is
// kept by the COALESCE.
func (s *Store) UpdateEnrollment(ctx context.Context, e *models.Enrollment) error {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $2, is_active = $3, matricule = COALESCE(matricule, $4),
			validated_by = $5, validated_at = $6, finalized_at = $7,
			status_reason = $8, notes = $9, updated_at = $10
		WHERE id = $1
	`,
		uuid.UUID(e.ID), string(e.Status), e.IsActive, nullString(e.Matricule),
		nullStaff(e.ValidatedBy), e.ValidatedAt, e.FinalizedAt,
		e.StatusReason, e.Notes, e.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, "enrollments_matricule_key") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const feeColumns = `id, enrollment_id, rule_id, label, fee_type, sort_order, mandatory,
	amount_expected, amount_override, is_settled, settled_at, created_at`

// CreateFees inserts all fees in one statement; existing (enrollment, rule)
// pairs are skipped by ON CONFLICT.
func (s *Store) CreateFees(ctx context.Context, fees []*models.FeeInstance) (int, error) {
	if len(fees) == 0 {
		return 0, nil
	}
	var (
		ids, enrollments, rules, labels, types []string
		orders                                 []int64
		mandatory                              []bool
		amounts                                []string
		created                                []time.Time
	)
	for _, f := range fees {
		ids = append(ids, f.ID.String())
		enrollments = append(enrollments, f.EnrollmentID.String())
		rules = append(rules, f.RuleID.String())
		labels = append(labels, f.Label)
		types = append(types, f.Type)
		orders = append(orders, int64(f.Order))
		mandatory = append(mandatory, f.Mandatory)
		amounts = append(amounts, f.AmountExpected.String())
		created = append(created, f.CreatedAt)
	}
	res, err := s.exec.ExecContext(ctx, `
		INSERT INTO fee_instances (id, enrollment_id, rule_id, label, fee_type, sort_order, mandatory,
			amount_expected, is_settled, created_at)
		SELECT u.id::uuid, u.enrollment_id::uuid, u.rule_id::uuid, u.label, u.fee_type, u.sort_order,
			u.mandatory, u.amount::numeric, FALSE, u.created_at
		FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::bigint[],
			$7::boolean[], $8::text[], $9::timestamptz[])
			AS u(id, enrollment_id, rule_id, label, fee_type, sort_order, mandatory, amount, created_at)
		ON CONFLICT (enrollment_id, rule_id) DO NOTHING
	`,
		pq.Array(ids), pq.Array(enrollments), pq.Array(rules), pq.Array(labels), pq.Array(types),
		pq.Array(orders), pq.Array(mandatory), pq.Array(amounts), timeArray(created),
	)
	if err != nil {
		return 0, fmt.Errorf("insert fee instances: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) FindFee(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	return s.findFee(ctx, `WHERE id = $1`, uuid.UUID(feeID))
}

func (s *Store) FindFeeForUpdate(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	return s.findFee(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(feeID))
}

func (s *Store) findFee(ctx context.Context, where string, args ...any) (*models.FeeInstance, error) {
	row := s.exec.QueryRowContext(ctx, `SELECT `+feeColumns+` FROM fee_instances `+where, args...)
	f, err := scanFee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find fee instance: %w", err)
	}
	return f, nil
}

func (s *Store) ListFees(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error) {
	rows, err := s.exec.QueryContext(ctx,
		`SELECT `+feeColumns+` FROM fee_instances WHERE enrollment_id = $1 ORDER BY sort_order, label`,
		uuid.UUID(enrollmentID),
	)
	if err != nil {
		return nil, fmt.Errorf("list fee instances: %w", err)
	}
	defer rows.Close()
	var out []*models.FeeInstance
	for rows.Next() {
		f, err := scanFee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee instance: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFee writes the override and settlement columns. amount_expected is
// never updated.
func (s *Store) UpdateFee(ctx context.Context, fee *models.FeeInstance) error {
	var override decimal.NullDecimal
	if fee.AmountOverride != nil {
		override = decimal.NullDecimal{Decimal: *fee.AmountOverride, Valid: true}
	}
	res, err := s.exec.ExecContext(ctx, `
		UPDATE fee_instances
		SET amount_override = $2, is_settled = (is_settled OR $3), settled_at = COALESCE(settled_at, $4)
		WHERE id = $1
	`, uuid.UUID(fee.ID), override, fee.IsSettled, fee.SettledAt)
	if err != nil {
		return fmt.Errorf("update fee instance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const paymentColumns = `id, fee_id, enrollment_id, amount, method, status, reference,
	agent_code, validated_by, rejected_reason, paid_at, created_at, updated_at`

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(p.ID), uuid.UUID(p.FeeID), uuid.UUID(p.EnrollmentID), p.Amount, string(p.Method),
		string(p.Status), p.Reference, nullString(p.AgentCode), nullStaff(p.ValidatedBy), p.RejectedReason, p.PaidAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Store) FindPayment(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.findPayment(ctx, `WHERE id = $1`, uuid.UUID(paymentID))
}

func (s *Store) FindPaymentForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.findPayment(ctx, `WHERE id = $1 FOR UPDATE`, uuid.UUID(paymentID))
}

func (s *Store) findPayment(ctx context.Context, where string, args ...any) (*models.Payment, error) {
	row := s.exec.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments `+where, args...)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (s *Store) ListPaymentsByFee(ctx context.Context, feeID id.FeeID) ([]*models.Payment, error) {
	return s.listPayments(ctx, `fee_id = $1`, uuid.UUID(feeID))
}

func (s *Store) ListPaymentsByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Payment, error) {
	return s.listPayments(ctx, `enrollment_id = $1`, uuid.UUID(enrollmentID))
}

func (s *Store) listPayments(ctx context.Context, where string, args ...any) ([]*models.Payment, error) {
	rows, err := s.exec.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TransitionPayment is the conditional "... WHERE status = from" update.
func (s *Store) TransitionPayment(ctx context.Context, p *models.Payment, from models.PaymentStatus) error {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE payments
		SET status = $3, validated_by = $4, rejected_reason = $5, paid_at = $6, updated_at = $7
		WHERE id = $1 AND status = $2
	`,
		uuid.UUID(p.ID), string(from), string(p.Status), nullStaff(p.ValidatedBy),
		p.RejectedReason, p.PaidAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("transition payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrInvalidState
	}
	return nil
}

const receiptColumns = `id, payment_id, enrollment_id, reference, year, sequence, artifact_ref, issued_at`

func (s *Store) CreateReceipt(ctx context.Context, r *models.Receipt) error {
	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO receipts (`+receiptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(r.ID), uuid.UUID(r.PaymentID), uuid.UUID(r.EnrollmentID), r.Reference,
		r.Year, r.Sequence, r.ArtifactRef, r.IssuedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (s *Store) FindReceiptByPayment(ctx context.Context, paymentID id.PaymentID) (*models.Receipt, error) {
	return s.findReceipt(ctx, `WHERE payment_id = $1`, uuid.UUID(paymentID))
}

func (s *Store) FindReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error) {
	return s.findReceipt(ctx, `WHERE reference = $1`, reference)
}

func (s *Store) findReceipt(ctx context.Context, where string, args ...any) (*models.Receipt, error) {
	var r models.Receipt
	var rid, pid, eid uuid.UUID
	err := s.exec.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts `+where, args...).
		Scan(&rid, &pid, &eid, &r.Reference, &r.Year, &r.Sequence, &r.ArtifactRef, &r.IssuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find receipt: %w", err)
	}
	r.ID = id.ReceiptID(rid)
	r.PaymentID = id.PaymentID(pid)
	r.EnrollmentID = id.EnrollmentID(eid)
	return &r, nil
}

func (s *Store) SetReceiptArtifact(ctx context.Context, receiptID id.ReceiptID, ref string) error {
	res, err := s.exec.ExecContext(ctx,
		`UPDATE receipts SET artifact_ref = $2 WHERE id = $1`, uuid.UUID(receiptID), ref)
	if err != nil {
		return fmt.Errorf("update receipt artifact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) CreateStudent(ctx context.Context, st *models.StudentProfile) error {
	_, err := s.exec.ExecContext(ctx, `
		INSERT INTO student_profiles (id, enrollment_id, matricule, username, password_hash, activated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.UUID(st.ID), uuid.UUID(st.EnrollmentID), st.Matricule, st.Username, st.PasswordHash, st.ActivatedAt,
	)
	if postgres.IsUniqueViolation(err, "") {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert student profile: %w", err)
	}
	return nil
}

func (s *Store) FindStudentByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.StudentProfile, error) {
	var st models.StudentProfile
	var sid, eid uuid.UUID
	err := s.exec.QueryRowContext(ctx, `
		SELECT id, enrollment_id, matricule, username, password_hash, activated_at
		FROM student_profiles WHERE enrollment_id = $1
	`, uuid.UUID(enrollmentID)).Scan(&sid, &eid, &st.Matricule, &st.Username, &st.PasswordHash, &st.ActivatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find student profile: %w", err)
	}
	st.ID = id.StudentID(sid)
	st.EnrollmentID = id.EnrollmentID(eid)
	return &st, nil
}

func (s *Store) UpdateStudentPassword(ctx context.Context, enrollmentID id.EnrollmentID, passwordHash string) error {
	res, err := s.exec.ExecContext(ctx, `
		UPDATE student_profiles SET password_hash = $2 WHERE enrollment_id = $1
	`, uuid.UUID(enrollmentID), passwordHash)
	if err != nil {
		return fmt.Errorf("update student password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// NextSequence upserts the counter row. The row lock taken by the upsert
// serializes concurrent callers until their transactions end.
func (s *Store) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var value int64
	err := s.exec.QueryRowContext(ctx, `
		INSERT INTO sequence_counters (scope, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE SET value = sequence_counters.value + 1
		RETURNING value
	`, scope, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s/%d: %w", scope, year, err)
	}
	return value, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*models.Enrollment, error) {
	var (
		e                          models.Enrollment
		eid, appID, progID, yearID uuid.UUID
		status                     string
		matricule                  sql.NullString
		validatedBy                uuid.NullUUID
		validatedAt, finalizedAt   sql.NullTime
	)
	if err := row.Scan(&eid, &appID, &progID, &yearID, &e.StartYear,
		&e.CandidateName, &e.CandidateEmail, &status, &e.IsActive, &matricule, &e.PublicToken, &e.AccessCodeHash,
		&validatedBy, &validatedAt, &finalizedAt, &e.StatusReason, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ID = id.EnrollmentID(eid)
	e.ApplicationID = id.ApplicationID(appID)
	e.ProgrammeID = id.ProgrammeID(progID)
	e.AcademicYearID = id.AcademicYearID(yearID)
	e.Status = models.Status(status)
	e.Matricule = matricule.String
	if validatedBy.Valid {
		staff := id.StaffID(validatedBy.UUID)
		e.ValidatedBy = &staff
	}
	e.ValidatedAt = timePtr(validatedAt)
	e.FinalizedAt = timePtr(finalizedAt)
	return &e, nil
}

func enrollmentArgs(e *models.Enrollment) []any {
	return []any{
		uuid.UUID(e.ID), uuid.UUID(e.ApplicationID), uuid.UUID(e.ProgrammeID), uuid.UUID(e.AcademicYearID),
		e.StartYear, e.CandidateName, e.CandidateEmail, string(e.Status), e.IsActive,
		nullString(e.Matricule), e.PublicToken, e.AccessCodeHash, nullStaff(e.ValidatedBy),
		e.ValidatedAt, e.FinalizedAt, e.StatusReason, e.Notes, e.CreatedAt, e.UpdatedAt,
	}
}

func scanFee(row rowScanner) (*models.FeeInstance, error) {
	var (
		f             models.FeeInstance
		fid, eid, rid uuid.UUID
		override      decimal.NullDecimal
		settledAt     sql.NullTime
	)
	if err := row.Scan(&fid, &eid, &rid, &f.Label, &f.Type, &f.Order, &f.Mandatory,
		&f.AmountExpected, &override, &f.IsSettled, &settledAt, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ID = id.FeeID(fid)
	f.EnrollmentID = id.EnrollmentID(eid)
	f.RuleID = id.FeeRuleID(rid)
	if override.Valid {
		amount := override.Decimal
		f.AmountOverride = &amount
	}
	f.SettledAt = timePtr(settledAt)
	return &f, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p              models.Payment
		pid, fid, eid  uuid.UUID
		method, status string
		agentCode      sql.NullString
		validatedBy    uuid.NullUUID
		paidAt         sql.NullTime
	)
	if err := row.Scan(&pid, &fid, &eid, &p.Amount, &method, &status, &p.Reference,
		&agentCode, &validatedBy, &p.RejectedReason, &paidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PaymentID(pid)
	p.FeeID = id.FeeID(fid)
	p.EnrollmentID = id.EnrollmentID(eid)
	p.Method = models.PaymentMethod(method)
	p.Status = models.PaymentStatus(status)
	p.AgentCode = agentCode.String
	if validatedBy.Valid {
		staff := id.StaffID(validatedBy.UUID)
		p.ValidatedBy = &staff
	}
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStaff(staff *id.StaffID) uuid.NullUUID {
	if staff == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*staff), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeArray(ts []time.Time) any {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().Format(time.RFC3339Nano)
	}
	return pq.Array(out)
}
