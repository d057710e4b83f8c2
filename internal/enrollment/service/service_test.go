package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Notifier,Renderer,ArtifactStore,CashVerifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	catalogmodels "esfe/internal/catalog/models"
	catalogservice "esfe/internal/catalog/service"
	catalogstore "esfe/internal/catalog/store"
	"esfe/internal/enrollment/cache"
	"esfe/internal/enrollment/metrics"
	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	"esfe/internal/enrollment/service/mocks"
	"esfe/internal/enrollment/store/memory"
	"esfe/internal/notify"
	"esfe/internal/receipt"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/audit"
	"esfe/pkg/platform/audit/publisher"
	auditmemory "esfe/pkg/platform/audit/store/memory"
	"esfe/pkg/requestcontext"
	"esfe/pkg/secrets"
)

type EnrollmentServiceSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	store    *memory.InMemory
	catalog  *catalogservice.Service
	audit    *auditmemory.InMemoryStore
	service  *service.Service

	programme   *catalogmodels.Programme
	inscription *catalogmodels.FeeRule
	tranche     *catalogmodels.FeeRule
	staff       id.StaffID
}

func TestEnrollmentServiceSuite(t *testing.T) {
	suite.Run(t, new(EnrollmentServiceSuite))
}

func (s *EnrollmentServiceSuite) SetupTest() {
	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.store = memory.New()
	s.audit = auditmemory.NewInMemoryStore()
	s.catalog = catalogservice.New(catalogstore.NewInMemory())
	s.staff = id.StaffID(uuid.New())

	programme, err := s.catalog.CreateProgramme(s.ctx, "bmed", "Biologie Médicale")
	s.Require().NoError(err)
	s.programme = programme
	s.inscription = s.createRule(programme.ID, "Inscription", catalogmodels.FeeTypeRegistration, 410000, 1, true)
	s.tranche = s.createRule(programme.ID, "Tranche1", catalogmodels.FeeTypeTuition, 200000, 2, true)

	year, err := s.catalog.CreateAcademicYear(s.ctx, 2025)
	s.Require().NoError(err)
	_, err = s.catalog.SetActiveYear(s.ctx, year.ID)
	s.Require().NoError(err)

	s.service = s.newService()
}

func (s *EnrollmentServiceSuite) newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithAuditPublisher(publisher.NewPublisher(s.audit)),
		service.WithMetrics(metrics.New(prometheus.NewRegistry())),
		service.WithNotifier(s.notifier),
		service.WithPublicBaseURL("https://esfe.example.org/"),
	}
	return service.New(s.store, s.store, s.catalog, append(base, opts...)...)
}

func (s *EnrollmentServiceSuite) createRule(programmeID id.ProgrammeID, label string, feeType catalogmodels.FeeType, amount int64, order int, mandatory bool) *catalogmodels.FeeRule {
	rule, err := s.catalog.CreateRule(s.ctx, catalogservice.CreateRuleRequest{
		ProgrammeID: programmeID,
		Label:       label,
		Type:        feeType,
		Amount:      decimal.NewFromInt(amount),
		Order:       order,
		Mandatory:   mandatory,
	})
	s.Require().NoError(err)
	return rule
}

func (s *EnrollmentServiceSuite) accept(programmeID id.ProgrammeID) *service.AcceptResult {
	res, err := s.service.Accept(s.ctx, service.AcceptRequest{
		ApplicationID:  id.ApplicationID(uuid.New()),
		ProgrammeID:    programmeID,
		CandidateName:  "Awa Diallo",
		CandidateEmail: "awa.diallo@example.org",
	})
	s.Require().NoError(err)
	s.Require().True(res.Created)
	return res
}

func (s *EnrollmentServiceSuite) feeByLabel(enrollmentID id.EnrollmentID, label string) *models.FeeInstance {
	fees, err := s.store.ListFees(s.ctx, enrollmentID)
	s.Require().NoError(err)
	for _, f := range fees {
		if f.Label == label {
			return f
		}
	}
	s.FailNow("fee not found", label)
	return nil
}

func (s *EnrollmentServiceSuite) pay(feeID id.FeeID, amount int64) *models.Payment {
	p, err := s.service.CreatePendingPayment(s.ctx, service.CreatePaymentRequest{
		FeeID:  feeID,
		Amount: decimal.NewFromInt(amount),
		Method: models.MethodMobileMoney,
	})
	s.Require().NoError(err)
	return p
}

// insertPending bypasses the creation-time balance check.
func (s *EnrollmentServiceSuite) insertPending(fee *models.FeeInstance, amount int64) *models.Payment {
	p := &models.Payment{
		ID:           id.PaymentID(uuid.New()),
		FeeID:        fee.ID,
		EnrollmentID: fee.EnrollmentID,
		Amount:       decimal.NewFromInt(amount),
		Method:       models.MethodCash,
		Status:       models.PaymentPending,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.Require().NoError(s.store.CreatePayment(s.ctx, p))
	return p
}

func (s *EnrollmentServiceSuite) settleAll(enrollmentID id.EnrollmentID) {
	fees, err := s.store.ListFees(s.ctx, enrollmentID)
	s.Require().NoError(err)
	now := time.Now()
	for _, f := range fees {
		f.IsSettled = true
		f.SettledAt = &now
		s.Require().NoError(s.store.UpdateFee(s.ctx, f))
	}
}

func (s *EnrollmentServiceSuite) expectCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *EnrollmentServiceSuite) TestAccept() {
	s.Run("creates enrollment with frozen fees", func() {
		res := s.accept(s.programme.ID)

		s.Equal(models.StatusPending, res.Enrollment.Status)
		s.False(res.Enrollment.IsActive)
		s.Empty(res.Enrollment.Matricule)
		s.Equal(2025, res.Enrollment.StartYear)
		s.Contains(res.Enrollment.PublicToken, "ESFE-INS-")
		s.Require().Len(res.Fees, 2)
		for _, f := range res.Fees {
			s.False(f.IsSettled)
		}
		s.Require().NotEmpty(res.AccessCode)
		s.NoError(secrets.Verify(res.AccessCode, res.Enrollment.AccessCodeHash))
		s.Equal(1, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventEnrollmentCreated))
	})

	s.Run("same application returns the existing enrollment", func() {
		req := service.AcceptRequest{
			ApplicationID:  id.ApplicationID(uuid.New()),
			ProgrammeID:    s.programme.ID,
			CandidateName:  "Moussa Keita",
			CandidateEmail: "moussa@example.org",
		}
		first, err := s.service.Accept(s.ctx, req)
		s.Require().NoError(err)
		second, err := s.service.Accept(s.ctx, req)
		s.Require().NoError(err)

		s.False(second.Created)
		s.Empty(second.AccessCode)
		s.Equal(first.Enrollment.ID, second.Enrollment.ID)
		s.Len(second.Fees, 2)
	})

	s.Run("programme without active rules is a configuration error", func() {
		empty, err := s.catalog.CreateProgramme(s.ctx, "void", "Programme vide")
		s.Require().NoError(err)
		_, err = s.service.Accept(s.ctx, service.AcceptRequest{
			ApplicationID:  id.ApplicationID(uuid.New()),
			ProgrammeID:    empty.ID,
			CandidateName:  "Awa Diallo",
			CandidateEmail: "awa@example.org",
		})
		s.expectCode(err, dErrors.CodeConfiguration)
	})

	s.Run("invalid email is a validation error", func() {
		_, err := s.service.Accept(s.ctx, service.AcceptRequest{
			ApplicationID:  id.ApplicationID(uuid.New()),
			ProgrammeID:    s.programme.ID,
			CandidateName:  "Awa Diallo",
			CandidateEmail: "not-an-address",
		})
		s.expectCode(err, dErrors.CodeValidation)
	})
}

func (s *EnrollmentServiceSuite) TestInstantiateFees() {
	s.Run("is idempotent", func() {
		res := s.accept(s.programme.ID)

		first, err := s.service.InstantiateFees(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)
		second, err := s.service.InstantiateFees(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)

		s.Len(first, 2)
		s.Len(second, 2)
		s.ElementsMatch(feeIDs(first), feeIDs(second))
	})

	s.Run("picks up rules added later", func() {
		res := s.accept(s.programme.ID)
		s.createRule(s.programme.ID, "Badge", catalogmodels.FeeTypeOther, 5000, 3, false)

		fees, err := s.service.InstantiateFees(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)
		s.Len(fees, 3)
	})
}

func (s *EnrollmentServiceSuite) TestFrozenAmount() {
	res := s.accept(s.programme.ID)

	_, err := s.catalog.UpdateRuleAmount(s.ctx, s.inscription.ID, decimal.NewFromInt(500000))
	s.Require().NoError(err)

	fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
	s.True(fee.AmountExpected.Equal(decimal.NewFromInt(410000)))
	s.True(fee.AmountToPay().Equal(decimal.NewFromInt(410000)))
}

// Inscription then Tranche1 settle; the second validation activates.
func (s *EnrollmentServiceSuite) TestFullSettlementActivates() {
	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
	tranche := s.feeByLabel(res.Enrollment.ID, "Tranche1")

	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.ConfirmationMessage) error {
			s.Equal("awa.diallo@example.org", msg.To)
			s.Equal("Inscription", msg.FeeLabel)
			s.Equal("ESFE-2025-000001", msg.ReceiptReference)
			return nil
		})
	var creds notify.CredentialsMessage
	s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.CredentialsMessage) error {
			creds = msg
			return nil
		})

	first, err := s.service.ValidatePayment(s.ctx, s.pay(inscription.ID, 410000).ID, s.staff)
	s.Require().NoError(err)
	s.True(first.FeeSettled)
	s.True(first.Remaining.IsZero())
	s.Require().NotNil(first.Activation)
	s.False(first.Activation.Activated)
	s.Require().NotNil(first.Receipt)

	eligible, err := s.service.IsEligibleForActivation(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.False(eligible)
	e, err := s.store.FindEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.False(e.IsActive)

	second, err := s.service.ValidatePayment(s.ctx, s.pay(tranche.ID, 200000).ID, s.staff)
	s.Require().NoError(err)
	s.True(second.FeeSettled)
	s.Require().NotNil(second.Activation)
	s.True(second.Activation.Activated)
	s.True(second.Activation.StudentCreated)
	s.Equal("ESFE-2025-000002", second.Receipt.Reference)

	e, err = s.store.FindEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.True(e.IsActive)
	s.Equal("ESFE-2025-000001", e.Matricule)
	s.NotNil(e.FinalizedAt)
	s.Equal(1, s.store.CountStudents(res.Enrollment.ID))

	student, err := s.store.FindStudentByEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.Equal("esfe-2025-000001", student.Username)
	s.Equal(student.Username, creds.Username)
	s.NoError(secrets.Verify(creds.Password, student.PasswordHash))
	s.Equal("https://esfe.example.org/public/enrollments/"+e.PublicToken, creds.PublicURL)
	s.Equal(1, s.audit.CountAction(e.ID.String(), audit.EventEnrollmentActivated))
}

func (s *EnrollmentServiceSuite) TestValidatePaymentOvershoot() {
	s.Run("amount above remaining fails and stays pending", func() {
		res := s.accept(s.programme.ID)
		tranche := s.feeByLabel(res.Enrollment.ID, "Tranche1")
		p := s.insertPending(tranche, 250000)

		_, err := s.service.ValidatePayment(s.ctx, p.ID, s.staff)
		s.expectCode(err, dErrors.CodeValidation)
		s.Contains(err.Error(), "amount exceeds remaining balance")

		stored, err := s.store.FindPayment(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.PaymentPending, stored.Status)
		payments, err := s.store.ListPaymentsByFee(s.ctx, tranche.ID)
		s.Require().NoError(err)
		s.True(models.TotalPaid(payments).IsZero())
	})

	s.Run("settled fee refuses further validation and stays settled", func() {
		res := s.accept(s.programme.ID)
		inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
		s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.ValidatePayment(s.ctx, s.pay(inscription.ID, 410000).ID, s.staff)
		s.Require().NoError(err)

		extra := s.insertPending(inscription, 410000)
		_, err = s.service.ValidatePayment(s.ctx, extra.ID, s.staff)
		s.expectCode(err, dErrors.CodeValidation)

		fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
		s.True(fee.IsSettled)
	})

	s.Run("creation also refuses amounts above remaining", func() {
		res := s.accept(s.programme.ID)
		tranche := s.feeByLabel(res.Enrollment.ID, "Tranche1")
		_, err := s.service.CreatePendingPayment(s.ctx, service.CreatePaymentRequest{
			FeeID:  tranche.ID,
			Amount: decimal.NewFromInt(200001),
			Method: models.MethodBank,
		})
		s.expectCode(err, dErrors.CodeValidation)
	})
}

func (s *EnrollmentServiceSuite) TestValidatePaymentIdempotent() {
	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	p := s.pay(inscription.ID, 100000)
	first, err := s.service.ValidatePayment(s.ctx, p.ID, s.staff)
	s.Require().NoError(err)
	s.False(first.AlreadyProcessed)

	again, err := s.service.ValidatePayment(s.ctx, p.ID, s.staff)
	s.Require().NoError(err)
	s.True(again.AlreadyProcessed)
	s.Nil(again.Receipt)

	payments, err := s.store.ListPaymentsByFee(s.ctx, inscription.ID)
	s.Require().NoError(err)
	s.True(models.TotalPaid(payments).Equal(decimal.NewFromInt(100000)))

	rec, err := s.service.IssueReceipt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(first.Receipt.Reference, rec.Reference)
	s.Equal(1, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventReceiptIssued))
}

func (s *EnrollmentServiceSuite) TestRejectPayment() {
	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")

	s.Run("pending payment is rejected once", func() {
		p := s.pay(inscription.ID, 1000)
		rejected, err := s.service.RejectPayment(s.ctx, p.ID, s.staff, "wrong reference")
		s.Require().NoError(err)
		s.Equal(models.PaymentRejected, rejected.Status)

		again, err := s.service.RejectPayment(s.ctx, p.ID, s.staff, "again")
		s.Require().NoError(err)
		s.Equal("wrong reference", again.RejectedReason)

		_, err = s.service.ValidatePayment(s.ctx, p.ID, s.staff)
		s.Require().NoError(err)
		stored, err := s.store.FindPayment(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.PaymentRejected, stored.Status)
	})

	s.Run("validated payment cannot be rejected", func() {
		s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil)
		p := s.pay(inscription.ID, 1000)
		_, err := s.service.ValidatePayment(s.ctx, p.ID, s.staff)
		s.Require().NoError(err)

		_, err = s.service.RejectPayment(s.ctx, p.ID, s.staff, "late")
		s.expectCode(err, dErrors.CodeInvalidState)
	})

	s.Run("rejected payment gets no receipt", func() {
		p := s.pay(inscription.ID, 1000)
		_, err := s.service.RejectPayment(s.ctx, p.ID, s.staff, "duplicate")
		s.Require().NoError(err)
		_, err = s.service.IssueReceipt(s.ctx, p.ID)
		s.expectCode(err, dErrors.CodeInvalidState)
	})
}

func (s *EnrollmentServiceSuite) TestNoMandatoryFees() {
	optional, err := s.catalog.CreateProgramme(s.ctx, "libre", "Auditeur libre")
	s.Require().NoError(err)
	s.createRule(optional.ID, "Badge", catalogmodels.FeeTypeOther, 5000, 1, false)
	res := s.accept(optional.ID)
	badge := s.feeByLabel(res.Enrollment.ID, "Badge")
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil)

	out, err := s.service.ValidatePayment(s.ctx, s.pay(badge.ID, 5000).ID, s.staff)
	s.Require().NoError(err)
	s.True(out.FeeSettled)
	s.Require().NotNil(out.Activation)
	s.False(out.Activation.Activated)

	eligible, err := s.service.IsEligibleForActivation(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.False(eligible)

	_, err = s.service.ForceActivate(s.ctx, res.Enrollment.ID, s.staff)
	s.expectCode(err, dErrors.CodeConfiguration)
}

func (s *EnrollmentServiceSuite) TestForceActivate() {
	s.Run("unsettled fees are refused", func() {
		res := s.accept(s.programme.ID)
		_, err := s.service.ForceActivate(s.ctx, res.Enrollment.ID, s.staff)
		s.expectCode(err, dErrors.CodeValidation)
	})

	s.Run("settled but inactive enrollment is activated", func() {
		res := s.accept(s.programme.ID)
		s.settleAll(res.Enrollment.ID)
		s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(nil)

		out, err := s.service.ForceActivate(s.ctx, res.Enrollment.ID, s.staff)
		s.Require().NoError(err)
		s.True(out.Activated)

		again, err := s.service.ForceActivate(s.ctx, res.Enrollment.ID, s.staff)
		s.Require().NoError(err)
		s.False(again.Activated)
	})
}

func (s *EnrollmentServiceSuite) TestSuspendAndCancel() {
	s.Run("suspension closes access and blocks payments", func() {
		res := s.accept(s.programme.ID)
		s.settleAll(res.Enrollment.ID)
		s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(nil)
		_, err := s.service.ActivateIfEligible(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)

		e, err := s.service.Suspend(s.ctx, res.Enrollment.ID, "dossier incomplet", s.staff)
		s.Require().NoError(err)
		s.False(e.IsActive)
		s.Equal(models.StatusSuspended, e.Status)

		fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
		_, err = s.service.CreatePendingPayment(s.ctx, service.CreatePaymentRequest{
			FeeID: fee.ID, Amount: decimal.NewFromInt(10), Method: models.MethodCash,
		})
		s.expectCode(err, dErrors.CodeValidation)

		out, err := s.service.ActivateIfEligible(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)
		s.False(out.Activated)

		reinstated, err := s.service.Reinstate(s.ctx, res.Enrollment.ID, s.staff)
		s.Require().NoError(err)
		s.True(reinstated.IsActive)
		s.Equal("ESFE-2025-000001", reinstated.Matricule)
		s.Equal(1, s.store.CountStudents(res.Enrollment.ID))
	})

	s.Run("pending payment of a cancelled enrollment cannot be validated", func() {
		res := s.accept(s.programme.ID)
		fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
		p := s.pay(fee.ID, 410000)

		_, err := s.service.Cancel(s.ctx, res.Enrollment.ID, "désistement", s.staff)
		s.Require().NoError(err)

		_, err = s.service.ValidatePayment(s.ctx, p.ID, s.staff)
		s.expectCode(err, dErrors.CodeValidation)
		e, err := s.store.FindEnrollment(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)
		s.False(e.IsActive)

		_, err = s.service.Reinstate(s.ctx, res.Enrollment.ID, s.staff)
		s.expectCode(err, dErrors.CodeInvalidState)
	})
}

func (s *EnrollmentServiceSuite) TestOverrideFeeAmount() {
	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil)
	_, err := s.service.ValidatePayment(s.ctx, s.pay(inscription.ID, 300000).ID, s.staff)
	s.Require().NoError(err)

	below := decimal.NewFromInt(200000)
	_, err = s.service.OverrideFeeAmount(s.ctx, inscription.ID, &below, s.staff)
	s.expectCode(err, dErrors.CodeValidation)

	exact := decimal.NewFromInt(300000)
	fee, err := s.service.OverrideFeeAmount(s.ctx, inscription.ID, &exact, s.staff)
	s.Require().NoError(err)
	s.True(fee.IsSettled)
	s.True(fee.AmountExpected.Equal(decimal.NewFromInt(410000)))

	fee, err = s.service.OverrideFeeAmount(s.ctx, inscription.ID, nil, s.staff)
	s.Require().NoError(err)
	s.True(fee.IsSettled)
}

func (s *EnrollmentServiceSuite) TestPublicStatus() {
	res := s.accept(s.programme.ID)

	summary, err := s.service.GetPublicStatus(s.ctx, res.Enrollment.PublicToken, "")
	s.Require().NoError(err)
	s.False(summary.Detailed)
	s.Empty(summary.Fees)
	s.True(summary.TotalDue.Equal(decimal.NewFromInt(610000)))
	s.Equal("Biologie Médicale", summary.Programme)
	s.Equal("2025-2026", summary.AcademicYear)

	detailed, err := s.service.GetPublicStatus(s.ctx, res.Enrollment.PublicToken, res.AccessCode)
	s.Require().NoError(err)
	s.True(detailed.Detailed)
	s.Len(detailed.Fees, 2)

	_, err = s.service.GetPublicStatus(s.ctx, res.Enrollment.PublicToken, "wrong-code")
	s.expectCode(err, dErrors.CodeUnauthorized)

	_, err = s.service.GetPublicStatus(s.ctx, "ESFE-INS-unknown", "")
	s.expectCode(err, dErrors.CodeNotFound)
}

func (s *EnrollmentServiceSuite) TestReceiptArtifact() {
	renderer := mocks.NewMockRenderer(s.ctrl)
	artifacts := mocks.NewMockArtifactStore(s.ctrl)
	svc := s.newService(service.WithReceiptRenderer(renderer, artifacts))

	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil)

	gomock.InOrder(
		renderer.EXPECT().Render(gomock.Any(), gomock.Any()).Return(nil, errors.New("template broken")),
		renderer.EXPECT().Render(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, doc receipt.Document) ([]byte, error) {
				s.Equal("ESFE-2025-000001", doc.Reference)
				s.Equal("Biologie Médicale", doc.Programme)
				s.Contains(doc.VerificationURL, res.Enrollment.PublicToken)
				return []byte("receipt"), nil
			}),
	)
	artifacts.EXPECT().Save(gomock.Any(), "ESFE-2025-000001", []byte("receipt")).Return("receipts/ESFE-2025-000001.txt", nil)

	p := s.pay(inscription.ID, 410000)
	out, err := svc.ValidatePayment(s.ctx, p.ID, s.staff)
	s.Require().NoError(err, "render failures never fail the validation")
	s.Require().NotNil(out.Receipt)
	s.Empty(out.Receipt.ArtifactRef)
	s.Equal(1, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventRenderFailed))

	rec, err := svc.IssueReceipt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("receipts/ESFE-2025-000001.txt", rec.ArtifactRef)

	view, err := svc.GetReceipt(s.ctx, rec.Reference)
	s.Require().NoError(err)
	s.Equal("Inscription", view.FeeLabel)
	s.Equal(rec.ArtifactRef, view.ArtifactRef)
}

func (s *EnrollmentServiceSuite) TestNotifierFailureKeepsState() {
	res := s.accept(s.programme.ID)
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(1)
	s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(1)

	for _, label := range []string{"Inscription", "Tranche1"} {
		fee := s.feeByLabel(res.Enrollment.ID, label)
		_, err := s.service.ValidatePayment(s.ctx, s.pay(fee.ID, fee.AmountToPay().IntPart()).ID, s.staff)
		s.Require().NoError(err)
	}

	e, err := s.store.FindEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.True(e.IsActive)
	s.Equal(2, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventNotificationFailed))
}

func (s *EnrollmentServiceSuite) TestReissueCredentials() {
	res := s.accept(s.programme.ID)

	s.Run("pending enrollment is refused", func() {
		_, err := s.service.ReissueCredentials(s.ctx, res.Enrollment.ID, s.staff)
		s.expectCode(err, dErrors.CodeInvalidState)
	})

	s.Run("staff is required", func() {
		_, err := s.service.ReissueCredentials(s.ctx, res.Enrollment.ID, id.StaffID{})
		s.expectCode(err, dErrors.CodeValidation)
	})

	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(1)
	for _, label := range []string{"Inscription", "Tranche1"} {
		fee := s.feeByLabel(res.Enrollment.ID, label)
		_, err := s.service.ValidatePayment(s.ctx, s.pay(fee.ID, fee.AmountToPay().IntPart()).ID, s.staff)
		s.Require().NoError(err)
	}
	s.Require().Equal(1, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventNotificationFailed))

	before, err := s.store.FindStudentByEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)

	s.Run("failed delivery is reported", func() {
		s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
		_, err := s.service.ReissueCredentials(s.ctx, res.Enrollment.ID, s.staff)
		s.expectCode(err, dErrors.CodeDependency)
		s.Equal(2, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventNotificationFailed))
	})

	s.Run("new password reaches the student", func() {
		var sent notify.CredentialsMessage
		s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, msg notify.CredentialsMessage) error {
				sent = msg
				return nil
			})

		out, err := s.service.ReissueCredentials(s.ctx, res.Enrollment.ID, s.staff)
		s.Require().NoError(err)
		s.False(out.StudentCreated)
		s.Equal(before.Username, sent.Username)
		s.Equal("awa.diallo@example.org", sent.To)
		s.Equal(out.Password, sent.Password)

		after, err := s.store.FindStudentByEnrollment(s.ctx, res.Enrollment.ID)
		s.Require().NoError(err)
		s.Equal(before.ID, after.ID)
		s.NotEqual(before.PasswordHash, after.PasswordHash)
		s.NoError(secrets.Verify(sent.Password, after.PasswordHash))
		s.Equal(1, s.store.CountStudents(res.Enrollment.ID))
		s.Equal(2, s.audit.CountAction(res.Enrollment.ID.String(), audit.EventCredentialsReissued))
	})
}

func (s *EnrollmentServiceSuite) TestStandaloneReceiptRefreshesPublicStatus() {
	svc := s.newService(service.WithStatusCache(cache.NewMemory(time.Hour)))
	res := s.accept(s.programme.ID)
	fee := s.feeByLabel(res.Enrollment.ID, "Inscription")

	// validated without going through ValidatePayment, so no receipt yet
	paidAt := time.Now()
	p := &models.Payment{
		ID:           id.PaymentID(uuid.New()),
		FeeID:        fee.ID,
		EnrollmentID: fee.EnrollmentID,
		Amount:       decimal.NewFromInt(100000),
		Method:       models.MethodBank,
		Status:       models.PaymentValidated,
		ValidatedBy:  &s.staff,
		PaidAt:       &paidAt,
		CreatedAt:    paidAt,
		UpdatedAt:    paidAt,
	}
	s.Require().NoError(s.store.CreatePayment(s.ctx, p))

	receiptRef := func() string {
		status, err := svc.GetPublicStatus(s.ctx, res.Enrollment.PublicToken, res.AccessCode)
		s.Require().NoError(err)
		for _, f := range status.Fees {
			if f.Label == "Inscription" {
				s.Require().Len(f.Payments, 1)
				return f.Payments[0].ReceiptReference
			}
		}
		s.FailNow("fee missing from public status")
		return ""
	}

	s.Empty(receiptRef())

	rec, err := svc.IssueReceipt(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(rec.Reference, receiptRef())
}

func (s *EnrollmentServiceSuite) TestCashPaymentRequiresCode() {
	cash := mocks.NewMockCashVerifier(s.ctrl)
	svc := s.newService(service.WithCashVerifier(cash))
	res := s.accept(s.programme.ID)
	fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
	cashReq := func(amount int64) service.CreatePaymentRequest {
		return service.CreatePaymentRequest{
			FeeID: fee.ID, Amount: decimal.NewFromInt(amount), Method: models.MethodCash, CashCode: "123456",
		}
	}

	s.Run("code is required", func() {
		_, err := svc.CreatePendingPayment(s.ctx, service.CreatePaymentRequest{
			FeeID: fee.ID, Amount: decimal.NewFromInt(1000), Method: models.MethodCash,
		})
		s.expectCode(err, dErrors.CodeValidation)
	})

	s.Run("payment records the issuing agent", func() {
		cash.EXPECT().Consume(gomock.Any(), res.Enrollment.ID, "123456").Return("A1B2C3", nil)
		p, err := svc.CreatePendingPayment(s.ctx, cashReq(1000))
		s.Require().NoError(err)
		s.Equal(models.PaymentPending, p.Status)
		s.Equal("A1B2C3", p.AgentCode)

		stored, err := s.store.FindPayment(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("A1B2C3", stored.AgentCode)
	})

	s.Run("spent code is refused", func() {
		cash.EXPECT().Consume(gomock.Any(), res.Enrollment.ID, "123456").
			Return("", dErrors.New(dErrors.CodeForbidden, "invalid or expired cash code"))
		_, err := svc.CreatePendingPayment(s.ctx, cashReq(1000))
		s.expectCode(err, dErrors.CodeForbidden)
	})

	// no Consume expectation: the mock fails the test if the code is spent
	s.Run("overshooting payment keeps the code", func() {
		_, err := svc.CreatePendingPayment(s.ctx, cashReq(410001))
		s.expectCode(err, dErrors.CodeValidation)
		s.Contains(err.Error(), "amount exceeds remaining balance")
	})

	s.Run("suspended enrollment keeps the code", func() {
		_, err := s.service.Suspend(s.ctx, res.Enrollment.ID, "dossier incomplet", s.staff)
		s.Require().NoError(err)
		_, err = svc.CreatePendingPayment(s.ctx, cashReq(1000))
		s.expectCode(err, dErrors.CodeValidation)
	})
}

func (s *EnrollmentServiceSuite) TestConcurrentFinalValidationActivatesOnce() {
	res := s.accept(s.programme.ID)
	inscription := s.feeByLabel(res.Enrollment.ID, "Inscription")
	tranche := s.feeByLabel(res.Enrollment.ID, "Tranche1")
	s.notifier.EXPECT().SendPaymentConfirmation(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	_, err := s.service.ValidatePayment(s.ctx, s.pay(inscription.ID, 410000).ID, s.staff)
	s.Require().NoError(err)

	const n = 10
	payments := make([]*models.Payment, n)
	for i := range payments {
		payments[i] = s.insertPending(tranche, 200000)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		activated int
	)
	for _, p := range payments {
		wg.Add(1)
		go func(paymentID id.PaymentID) {
			defer wg.Done()
			out, err := s.service.ValidatePayment(s.ctx, paymentID, s.staff)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			if out.Activation != nil && out.Activation.Activated {
				activated++
			}
		}(p.ID)
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(1, activated)
	s.Equal(1, s.store.CountStudents(res.Enrollment.ID))
	e, err := s.store.FindEnrollment(s.ctx, res.Enrollment.ID)
	s.Require().NoError(err)
	s.Equal("ESFE-2025-000001", e.Matricule)
}

func (s *EnrollmentServiceSuite) TestConcurrentActivationNumbering() {
	const n = 20
	s.notifier.EXPECT().SendCredentials(gomock.Any(), gomock.Any()).Return(nil).Times(n)

	enrollments := make([]id.EnrollmentID, n)
	for i := range enrollments {
		res := s.accept(s.programme.ID)
		s.settleAll(res.Enrollment.ID)
		enrollments[i] = res.Enrollment.ID
	}

	var wg sync.WaitGroup
	for _, enrollmentID := range enrollments {
		for range 3 {
			wg.Add(1)
			go func(enrollmentID id.EnrollmentID) {
				defer wg.Done()
				_, _ = s.service.ActivateIfEligible(s.ctx, enrollmentID)
			}(enrollmentID)
		}
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, enrollmentID := range enrollments {
		e, err := s.store.FindEnrollment(s.ctx, enrollmentID)
		s.Require().NoError(err)
		s.True(e.IsActive)
		s.False(seen[e.Matricule], "duplicate matricule %s", e.Matricule)
		seen[e.Matricule] = true
		s.Equal(1, s.store.CountStudents(enrollmentID))
	}
	for i := 1; i <= n; i++ {
		s.True(seen[fmt.Sprintf("ESFE-2025-%06d", i)])
	}
}

func feeIDs(fees []*models.FeeInstance) []id.FeeID {
	out := make([]id.FeeID, len(fees))
	for i, f := range fees {
		out[i] = f.ID
	}
	return out
}

func (s *EnrollmentServiceSuite) TestSubmitPayment() {
	res := s.accept(s.programme.ID)
	other := s.accept(s.programme.ID)
	fee := s.feeByLabel(res.Enrollment.ID, "Inscription")
	foreign := s.feeByLabel(other.Enrollment.ID, "Inscription")
	req := service.CreatePaymentRequest{FeeID: fee.ID, Amount: decimal.NewFromInt(1000), Method: models.MethodMobileMoney, Reference: "OM-778"}

	p, err := s.service.SubmitPayment(s.ctx, res.Enrollment.PublicToken, res.AccessCode, req)
	s.Require().NoError(err)
	s.Equal("OM-778", p.Reference)

	_, err = s.service.SubmitPayment(s.ctx, res.Enrollment.PublicToken, "bad", req)
	s.expectCode(err, dErrors.CodeUnauthorized)

	req.FeeID = foreign.ID
	_, err = s.service.SubmitPayment(s.ctx, res.Enrollment.PublicToken, res.AccessCode, req)
	s.expectCode(err, dErrors.CodeNotFound)
}
