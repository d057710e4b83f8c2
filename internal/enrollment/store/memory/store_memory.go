// Package memory is the in-process enrollment store used by tests and the
// database-less development mode.
//
// Transactions are serialized by one mutex and run against a copy of the
// state that replaces the live state only when fn succeeds, so a failed
// transaction leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

type counterKey struct {
	scope string
	year  int
}

type state struct {
	enrollments map[id.EnrollmentID]models.Enrollment
	fees        map[id.FeeID]models.FeeInstance
	payments    map[id.PaymentID]models.Payment
	receipts    map[id.PaymentID]models.Receipt
	students    map[id.EnrollmentID]models.StudentProfile
	counters    map[counterKey]int64
}

func newState() *state {
	return &state{
		enrollments: make(map[id.EnrollmentID]models.Enrollment),
		fees:        make(map[id.FeeID]models.FeeInstance),
		payments:    make(map[id.PaymentID]models.Payment),
		receipts:    make(map[id.PaymentID]models.Receipt),
		students:    make(map[id.EnrollmentID]models.StudentProfile),
		counters:    make(map[counterKey]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range s.fees {
		c.fees[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.receipts {
		c.receipts[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

// InMemory implements service.Store and service.TxRunner.
type InMemory struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	state   *state
	timeout time.Duration
}

func New() *InMemory {
	return &InMemory{state: newState(), timeout: defaultTxTimeout}
}

// RunInTx runs fn against a private copy of the state and publishes the copy
// when fn returns nil.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &view{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

// read grabs the current state pointer. A published state is never mutated
// in place, so the returned view needs no further locking.
func (s *InMemory) read() *view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &view{st: s.state}
}

// write runs a single mutation as its own transaction.
func (s *InMemory) write(ctx context.Context, fn func(v *view) error) error {
	return s.RunInTx(ctx, func(_ context.Context, store service.Store) error {
		return fn(store.(*view))
	})
}

func (s *InMemory) CreateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return s.write(ctx, func(v *view) error { return v.CreateEnrollment(ctx, e) })
}

func (s *InMemory) FindEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	return s.read().FindEnrollment(ctx, enrollmentID)
}

func (s *InMemory) FindEnrollmentForUpdate(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	return s.read().FindEnrollment(ctx, enrollmentID)
}

func (s *InMemory) FindEnrollmentByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.Enrollment, error) {
	return s.read().FindEnrollmentByApplication(ctx, applicationID)
}

func (s *InMemory) FindEnrollmentByToken(ctx context.Context, token string) (*models.Enrollment, error) {
	return s.read().FindEnrollmentByToken(ctx, token)
}

func (s *InMemory) UpdateEnrollment(ctx context.Context, e *models.Enrollment) error {
	return s.write(ctx, func(v *view) error { return v.UpdateEnrollment(ctx, e) })
}

func (s *InMemory) CreateFees(ctx context.Context, fees []*models.FeeInstance) (int, error) {
	var n int
	err := s.write(ctx, func(v *view) error {
		var err error
		n, err = v.CreateFees(ctx, fees)
		return err
	})
	return n, err
}

func (s *InMemory) FindFee(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	return s.read().FindFee(ctx, feeID)
}

func (s *InMemory) FindFeeForUpdate(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	return s.read().FindFee(ctx, feeID)
}

func (s *InMemory) ListFees(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error) {
	return s.read().ListFees(ctx, enrollmentID)
}

func (s *InMemory) UpdateFee(ctx context.Context, fee *models.FeeInstance) error {
	return s.write(ctx, func(v *view) error { return v.UpdateFee(ctx, fee) })
}

func (s *InMemory) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.write(ctx, func(v *view) error { return v.CreatePayment(ctx, p) })
}

func (s *InMemory) FindPayment(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.read().FindPayment(ctx, paymentID)
}

func (s *InMemory) FindPaymentForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return s.read().FindPayment(ctx, paymentID)
}

func (s *InMemory) ListPaymentsByFee(ctx context.Context, feeID id.FeeID) ([]*models.Payment, error) {
	return s.read().ListPaymentsByFee(ctx, feeID)
}

func (s *InMemory) ListPaymentsByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.Payment, error) {
	return s.read().ListPaymentsByEnrollment(ctx, enrollmentID)
}

func (s *InMemory) TransitionPayment(ctx context.Context, p *models.Payment, from models.PaymentStatus) error {
	return s.write(ctx, func(v *view) error { return v.TransitionPayment(ctx, p, from) })
}

func (s *InMemory) CreateReceipt(ctx context.Context, r *models.Receipt) error {
	return s.write(ctx, func(v *view) error { return v.CreateReceipt(ctx, r) })
}

func (s *InMemory) FindReceiptByPayment(ctx context.Context, paymentID id.PaymentID) (*models.Receipt, error) {
	return s.read().FindReceiptByPayment(ctx, paymentID)
}

func (s *InMemory) FindReceiptByReference(ctx context.Context, reference string) (*models.Receipt, error) {
	return s.read().FindReceiptByReference(ctx, reference)
}

func (s *InMemory) SetReceiptArtifact(ctx context.Context, receiptID id.ReceiptID, ref string) error {
	return s.write(ctx, func(v *view) error { return v.SetReceiptArtifact(ctx, receiptID, ref) })
}

func (s *InMemory) CreateStudent(ctx context.Context, st *models.StudentProfile) error {
	return s.write(ctx, func(v *view) error { return v.CreateStudent(ctx, st) })
}

func (s *InMemory) FindStudentByEnrollment(ctx context.Context, enrollmentID id.EnrollmentID) (*models.StudentProfile, error) {
	return s.read().FindStudentByEnrollment(ctx, enrollmentID)
}

func (s *InMemory) UpdateStudentPassword(ctx context.Context, enrollmentID id.EnrollmentID, passwordHash string) error {
	return s.write(ctx, func(v *view) error { return v.UpdateStudentPassword(ctx, enrollmentID, passwordHash) })
}

func (s *InMemory) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var n int64
	err := s.write(ctx, func(v *view) error {
		var err error
		n, err = v.NextSequence(ctx, scope, year)
		return err
	})
	return n, err
}

// CountStudents reports how many student profiles exist for an enrollment.
func (s *InMemory) CountStudents(enrollmentID id.EnrollmentID) int {
	v := s.read()
	if _, ok := v.st.students[enrollmentID]; ok {
		return 1
	}
	return 0
}

// view is the lock-free store over one state snapshot. Inside RunInTx it is
// the transaction's private copy.
type view struct {
	st *state
}

func (v *view) CreateEnrollment(_ context.Context, e *models.Enrollment) error {
	for _, existing := range v.st.enrollments {
		if existing.ApplicationID == e.ApplicationID || existing.PublicToken == e.PublicToken {
			return sentinel.ErrConflict
		}
	}
	v.st.enrollments[e.ID] = *e
	return nil
}

func (v *view) FindEnrollment(_ context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	e, ok := v.st.enrollments[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &e, nil
}

func (v *view) FindEnrollmentForUpdate(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Enrollment, error) {
	return v.FindEnrollment(ctx, enrollmentID)
}

func (v *view) FindEnrollmentByApplication(_ context.Context, applicationID id.ApplicationID) (*models.Enrollment, error) {
	for _, e := range v.st.enrollments {
		if e.ApplicationID == applicationID {
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (v *view) FindEnrollmentByToken(_ context.Context, token string) (*models.Enrollment, error) {
	for _, e := range v.st.enrollments {
		if e.PublicToken == token {
			return &e, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (v *view) UpdateEnrollment(_ context.Context, e *models.Enrollment) error {
	existing, ok := v.st.enrollments[e.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if e.Matricule != "" {
		for eid, other := range v.st.enrollments {
			if eid != e.ID && other.Matricule == e.Matricule {
				return sentinel.ErrConflict
			}
		}
	}
	if existing.Matricule != "" && existing.Matricule != e.Matricule {
		return sentinel.ErrInvalidState
	}
	v.st.enrollments[e.ID] = *e
	return nil
}

func (v *view) CreateFees(_ context.Context, fees []*models.FeeInstance) (int, error) {
	inserted := 0
	for _, f := range fees {
		if v.hasFee(f.EnrollmentID, f.RuleID) {
			continue
		}
		v.st.fees[f.ID] = *f
		inserted++
	}
	return inserted, nil
}

func (v *view) hasFee(enrollmentID id.EnrollmentID, ruleID id.FeeRuleID) bool {
	for _, f := range v.st.fees {
		if f.EnrollmentID == enrollmentID && f.RuleID == ruleID {
			return true
		}
	}
	return false
}

func (v *view) FindFee(_ context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	f, ok := v.st.fees[feeID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &f, nil
}

func (v *view) FindFeeForUpdate(ctx context.Context, feeID id.FeeID) (*models.FeeInstance, error) {
	return v.FindFee(ctx, feeID)
}

func (v *view) ListFees(_ context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error) {
	var out []*models.FeeInstance
	for _, f := range v.st.fees {
		if f.EnrollmentID == enrollmentID {
			c := f
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (v *view) UpdateFee(_ context.Context, fee *models.FeeInstance) error {
	existing, ok := v.st.fees[fee.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	// amount_expected is frozen at creation
	c := *fee
	c.AmountExpected = existing.AmountExpected
	if existing.IsSettled {
		c.IsSettled = true
		c.SettledAt = existing.SettledAt
	}
	v.st.fees[fee.ID] = c
	return nil
}

func (v *view) CreatePayment(_ context.Context, p *models.Payment) error {
	if _, ok := v.st.fees[p.FeeID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := v.st.payments[p.ID]; ok {
		return sentinel.ErrConflict
	}
	v.st.payments[p.ID] = *p
	return nil
}

func (v *view) FindPayment(_ context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	p, ok := v.st.payments[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (v *view) FindPaymentForUpdate(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	return v.FindPayment(ctx, paymentID)
}

func (v *view) ListPaymentsByFee(_ context.Context, feeID id.FeeID) ([]*models.Payment, error) {
	return v.listPayments(func(p models.Payment) bool { return p.FeeID == feeID }), nil
}

func (v *view) ListPaymentsByEnrollment(_ context.Context, enrollmentID id.EnrollmentID) ([]*models.Payment, error) {
	return v.listPayments(func(p models.Payment) bool { return p.EnrollmentID == enrollmentID }), nil
}

func (v *view) listPayments(match func(models.Payment) bool) []*models.Payment {
	var out []*models.Payment
	for _, p := range v.st.payments {
		if match(p) {
			c := p
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (v *view) TransitionPayment(_ context.Context, p *models.Payment, from models.PaymentStatus) error {
	existing, ok := v.st.payments[p.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Status != from {
		return sentinel.ErrInvalidState
	}
	v.st.payments[p.ID] = *p
	return nil
}

func (v *view) CreateReceipt(_ context.Context, r *models.Receipt) error {
	if _, ok := v.st.receipts[r.PaymentID]; ok {
		return sentinel.ErrConflict
	}
	for _, existing := range v.st.receipts {
		if existing.Reference == r.Reference {
			return sentinel.ErrConflict
		}
	}
	v.st.receipts[r.PaymentID] = *r
	return nil
}

func (v *view) FindReceiptByPayment(_ context.Context, paymentID id.PaymentID) (*models.Receipt, error) {
	r, ok := v.st.receipts[paymentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (v *view) FindReceiptByReference(_ context.Context, reference string) (*models.Receipt, error) {
	for _, r := range v.st.receipts {
		if r.Reference == reference {
			return &r, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (v *view) SetReceiptArtifact(_ context.Context, receiptID id.ReceiptID, ref string) error {
	for pid, r := range v.st.receipts {
		if r.ID == receiptID {
			r.ArtifactRef = ref
			v.st.receipts[pid] = r
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (v *view) CreateStudent(_ context.Context, st *models.StudentProfile) error {
	if _, ok := v.st.students[st.EnrollmentID]; ok {
		return sentinel.ErrConflict
	}
	v.st.students[st.EnrollmentID] = *st
	return nil
}

func (v *view) FindStudentByEnrollment(_ context.Context, enrollmentID id.EnrollmentID) (*models.StudentProfile, error) {
	st, ok := v.st.students[enrollmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &st, nil
}

func (v *view) UpdateStudentPassword(_ context.Context, enrollmentID id.EnrollmentID, passwordHash string) error {
	st, ok := v.st.students[enrollmentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	st.PasswordHash = passwordHash
	v.st.students[enrollmentID] = st
	return nil
}

func (v *view) NextSequence(_ context.Context, scope string, year int) (int64, error) {
	key := counterKey{scope: scope, year: year}
	v.st.counters[key]++
	return v.st.counters[key], nil
}
