package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"esfe/internal/enrollment/handler/mocks"
	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type EnrollmentHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	staff   id.StaffID
}

func TestEnrollmentHandlerSuite(t *testing.T) {
	suite.Run(t, new(EnrollmentHandlerSuite))
}

func (s *EnrollmentHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.staff = id.StaffID(uuid.New())

	staffAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithStaffID(r.Context(), s.staff)))
		})
	}
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router, staffAuth)
}

func (s *EnrollmentHandlerSuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *EnrollmentHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *EnrollmentHandlerSuite) TestAccept() {
	applicationID := uuid.New()
	programmeID := uuid.New()
	enrollment := &models.Enrollment{ID: id.EnrollmentID(uuid.New()), Status: models.StatusPending}

	s.service.EXPECT().Accept(gomock.Any(), service.AcceptRequest{
		ApplicationID:  id.ApplicationID(applicationID),
		ProgrammeID:    id.ProgrammeID(programmeID),
		CandidateName:  "Awa Diallo",
		CandidateEmail: "awa@example.org",
	}).Return(&service.AcceptResult{Enrollment: enrollment, AccessCode: "k3y-c0de", Created: true}, nil)

	rec := s.do(http.MethodPost, "/admin/enrollments", map[string]string{
		"application_id":  applicationID.String(),
		"programme_id":    programmeID.String(),
		"candidate_name":  "Awa Diallo",
		"candidate_email": "awa@example.org",
	})
	s.Equal(http.StatusCreated, rec.Code)
	body := s.decode(rec)
	s.Equal("k3y-c0de", body["access_code"])
	s.Equal(enrollment.ID.String(), body["enrollment"].(map[string]any)["id"])
}

func (s *EnrollmentHandlerSuite) TestAcceptRejectsInvalidBody() {
	rec := s.do(http.MethodPost, "/admin/enrollments", map[string]string{
		"application_id":  "nope",
		"programme_id":    uuid.NewString(),
		"candidate_name":  "Awa",
		"candidate_email": "awa@example.org",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *EnrollmentHandlerSuite) TestValidatePayment() {
	paymentID := id.PaymentID(uuid.New())

	s.Run("activation is reported", func() {
		s.service.EXPECT().ValidatePayment(gomock.Any(), paymentID, s.staff).Return(&service.ValidationResult{
			Payment:    &models.Payment{ID: paymentID, Status: models.PaymentValidated},
			FeeSettled: true,
			Remaining:  decimal.Zero,
			Activation: &service.ActivationResult{
				Activated:  true,
				Enrollment: &models.Enrollment{Matricule: "ESFE-2025-000001"},
			},
		}, nil)

		rec := s.do(http.MethodPost, "/admin/payments/"+paymentID.String()+"/validate", nil)
		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal(true, body["activated"])
		s.Equal("ESFE-2025-000001", body["matricule"])
	})

	s.Run("overshoot maps to 422", func() {
		s.service.EXPECT().ValidatePayment(gomock.Any(), paymentID, s.staff).
			Return(nil, dErrors.New(dErrors.CodeValidation, "amount exceeds remaining balance"))

		rec := s.do(http.MethodPost, "/admin/payments/"+paymentID.String()+"/validate", nil)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		s.Equal("amount exceeds remaining balance", s.decode(rec)["error_description"])
	})

	s.Run("malformed id", func() {
		rec := s.do(http.MethodPost, "/admin/payments/not-a-uuid/validate", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *EnrollmentHandlerSuite) TestForceActivateConfiguration() {
	enrollmentID := id.EnrollmentID(uuid.New())
	s.service.EXPECT().ForceActivate(gomock.Any(), enrollmentID, s.staff).
		Return(nil, dErrors.New(dErrors.CodeConfiguration, "no mandatory fee is configured for this enrollment"))

	rec := s.do(http.MethodPost, "/admin/enrollments/"+enrollmentID.String()+"/activate", nil)
	s.Equal(http.StatusPreconditionFailed, rec.Code)
}

func (s *EnrollmentHandlerSuite) TestReissueCredentials() {
	enrollmentID := id.EnrollmentID(uuid.New())

	s.Run("password is not echoed", func() {
		s.service.EXPECT().ReissueCredentials(gomock.Any(), enrollmentID, s.staff).Return(&service.ActivationResult{
			Enrollment: &models.Enrollment{ID: enrollmentID},
			Student:    &models.StudentProfile{Username: "esfe-2025-000001"},
			Password:   "s3cret-pass",
		}, nil)

		rec := s.do(http.MethodPost, "/admin/enrollments/"+enrollmentID.String()+"/credentials", nil)
		s.Equal(http.StatusOK, rec.Code)
		body := s.decode(rec)
		s.Equal("esfe-2025-000001", body["username"])
		s.Equal(true, body["sent"])
		s.NotContains(rec.Body.String(), "s3cret-pass")
	})

	s.Run("inactive enrollment maps to 409", func() {
		s.service.EXPECT().ReissueCredentials(gomock.Any(), enrollmentID, s.staff).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "enrollment is not active"))

		rec := s.do(http.MethodPost, "/admin/enrollments/"+enrollmentID.String()+"/credentials", nil)
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *EnrollmentHandlerSuite) TestSuspendRequiresReason() {
	enrollmentID := id.EnrollmentID(uuid.New())
	rec := s.do(http.MethodPost, "/admin/enrollments/"+enrollmentID.String()+"/suspend", map[string]string{})
	s.Equal(http.StatusBadRequest, rec.Code)

	s.service.EXPECT().Suspend(gomock.Any(), enrollmentID, "dossier incomplet", s.staff).
		Return(&models.Enrollment{ID: enrollmentID, Status: models.StatusSuspended}, nil)
	rec = s.do(http.MethodPost, "/admin/enrollments/"+enrollmentID.String()+"/suspend", map[string]string{"reason": "dossier incomplet"})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *EnrollmentHandlerSuite) TestOverrideClearsWithNull() {
	feeID := id.FeeID(uuid.New())
	s.service.EXPECT().OverrideFeeAmount(gomock.Any(), feeID, (*decimal.Decimal)(nil), s.staff).
		Return(&models.FeeInstance{ID: feeID}, nil)

	rec := s.do(http.MethodPatch, "/admin/fees/"+feeID.String(), map[string]any{"amount_override": nil})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *EnrollmentHandlerSuite) TestPublicStatusPassesAccessCode() {
	s.service.EXPECT().GetPublicStatus(gomock.Any(), "ESFE-INS-abc", "secret").
		Return(&models.PublicStatus{Token: "ESFE-INS-abc", Detailed: true}, nil)

	rec := s.do(http.MethodGet, "/public/enrollments/ESFE-INS-abc", nil, AccessCodeHeader, "secret")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(true, s.decode(rec)["detailed"])
}

func (s *EnrollmentHandlerSuite) TestSubmitPayment() {
	feeID := id.FeeID(uuid.New())
	s.service.EXPECT().SubmitPayment(gomock.Any(), "ESFE-INS-abc", "secret", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, req service.CreatePaymentRequest) (*models.Payment, error) {
			s.Equal(feeID, req.FeeID)
			s.True(req.Amount.Equal(decimal.NewFromInt(150000)))
			s.Equal(models.MethodMobileMoney, req.Method)
			return &models.Payment{ID: id.PaymentID(uuid.New()), Status: models.PaymentPending}, nil
		})

	rec := s.do(http.MethodPost, "/public/enrollments/ESFE-INS-abc/payments", map[string]string{
		"fee_id": feeID.String(),
		"amount": "150000",
		"method": "mobile_money",
	}, AccessCodeHeader, "secret")
	s.Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodPost, "/public/enrollments/ESFE-INS-abc/payments", map[string]string{
		"fee_id": feeID.String(),
		"amount": "150000",
		"method": "cheque",
	}, AccessCodeHeader, "secret")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *EnrollmentHandlerSuite) TestGetReceiptNotFound() {
	s.service.EXPECT().GetReceipt(gomock.Any(), "ESFE-2025-000404").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "receipt not found"))

	rec := s.do(http.MethodGet, "/public/receipts/ESFE-2025-000404", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}
