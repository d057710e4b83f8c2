package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"esfe/internal/enrollment/models"
	"esfe/internal/enrollment/service"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/platform/httputil"
	"esfe/pkg/requestcontext"
)

// AccessCodeHeader carries the enrollment access code on public routes.
const AccessCodeHeader = "X-Access-Code"

// Service is the enrollment pipeline as seen from HTTP.
type Service interface {
	Accept(ctx context.Context, req service.AcceptRequest) (*service.AcceptResult, error)
	InstantiateFees(ctx context.Context, enrollmentID id.EnrollmentID) ([]*models.FeeInstance, error)
	GetLedger(ctx context.Context, enrollmentID id.EnrollmentID) (*models.Ledger, error)
	IsEligibleForActivation(ctx context.Context, enrollmentID id.EnrollmentID) (bool, error)
	MarkValidated(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*models.Enrollment, error)
	Suspend(ctx context.Context, enrollmentID id.EnrollmentID, reason string, staff id.StaffID) (*models.Enrollment, error)
	Cancel(ctx context.Context, enrollmentID id.EnrollmentID, reason string, staff id.StaffID) (*models.Enrollment, error)
	Reinstate(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*models.Enrollment, error)
	ForceActivate(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*service.ActivationResult, error)
	ReissueCredentials(ctx context.Context, enrollmentID id.EnrollmentID, staff id.StaffID) (*service.ActivationResult, error)
	OverrideFeeAmount(ctx context.Context, feeID id.FeeID, amount *decimal.Decimal, staff id.StaffID) (*models.FeeInstance, error)
	RecalculateFeeStatus(ctx context.Context, feeID id.FeeID) (bool, error)
	CreatePendingPayment(ctx context.Context, req service.CreatePaymentRequest) (*models.Payment, error)
	ValidatePayment(ctx context.Context, paymentID id.PaymentID, validator id.StaffID) (*service.ValidationResult, error)
	RejectPayment(ctx context.Context, paymentID id.PaymentID, validator id.StaffID, reason string) (*models.Payment, error)
	IssueReceipt(ctx context.Context, paymentID id.PaymentID) (*models.Receipt, error)
	GetPublicStatus(ctx context.Context, token, accessCode string) (*models.PublicStatus, error)
	GetReceipt(ctx context.Context, reference string) (*models.ReceiptView, error)
	SubmitPayment(ctx context.Context, token, accessCode string, req service.CreatePaymentRequest) (*models.Payment, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
	public  []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithPublicMiddleware wraps the unauthenticated routes, typically with a
// rate limiter.
func WithPublicMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.public = append(h.public, mw...)
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the staff routes behind auth and the public routes
// without it.
func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth)
		r.Post("/enrollments", h.handleAccept)
		r.Route("/enrollments/{enrollmentID}", func(r chi.Router) {
			r.Get("/", h.handleLedger)
			r.Get("/eligibility", h.handleEligibility)
			r.Post("/fees", h.handleInstantiateFees)
			r.Post("/validate", h.handleMarkValidated)
			r.Post("/suspend", h.handleSuspend)
			r.Post("/cancel", h.handleCancel)
			r.Post("/reinstate", h.handleReinstate)
			r.Post("/activate", h.handleForceActivate)
			r.Post("/credentials", h.handleReissueCredentials)
		})
		r.Patch("/fees/{feeID}", h.handleOverride)
		r.Post("/fees/{feeID}/recalculate", h.handleRecalculate)
		r.Post("/payments", h.handleCreatePayment)
		r.Post("/payments/{paymentID}/validate", h.handleValidatePayment)
		r.Post("/payments/{paymentID}/reject", h.handleRejectPayment)
		r.Post("/payments/{paymentID}/receipt", h.handleIssueReceipt)
	})
	r.Route("/public", func(r chi.Router) {
		r.Use(h.public...)
		r.Get("/enrollments/{token}", h.handlePublicStatus)
		r.Post("/enrollments/{token}/payments", h.handleSubmitPayment)
		r.Get("/receipts/{reference}", h.handleGetReceipt)
	})
}

type acceptRequest struct {
	ApplicationID  string `json:"application_id" validate:"required,uuid"`
	ProgrammeID    string `json:"programme_id" validate:"required,uuid"`
	CandidateName  string `json:"candidate_name" validate:"required,max=200"`
	CandidateEmail string `json:"candidate_email" validate:"required,email"`
	Notes          string `json:"notes" validate:"max=2000"`
}

type acceptResponse struct {
	Enrollment *models.Enrollment    `json:"enrollment"`
	Fees       []*models.FeeInstance `json:"fees"`
	AccessCode string                `json:"access_code,omitempty"`
	Created    bool                  `json:"created"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type suspendRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type overrideRequest struct {
	// AmountOverride is null to clear the override.
	AmountOverride *string `json:"amount_override"`
}

type paymentRequest struct {
	FeeID     string `json:"fee_id" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required"`
	Method    string `json:"method" validate:"required,oneof=cash mobile_money bank online"`
	Reference string `json:"reference" validate:"max=128"`
	CashCode  string `json:"cash_code" validate:"omitempty,len=6,numeric"`
}

type validationResponse struct {
	Payment          *models.Payment `json:"payment"`
	AlreadyProcessed bool            `json:"already_processed"`
	FeeSettled       bool            `json:"fee_settled"`
	Remaining        decimal.Decimal `json:"remaining"`
	Activated        bool            `json:"activated"`
	Matricule        string          `json:"matricule,omitempty"`
	Receipt          *models.Receipt `json:"receipt,omitempty"`
}

type activationResponse struct {
	Activated  bool                   `json:"activated"`
	Enrollment *models.Enrollment     `json:"enrollment"`
	Student    *models.StudentProfile `json:"student,omitempty"`
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	applicationID, err := id.ParseApplicationID(req.ApplicationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	programmeID, err := id.ParseProgrammeID(req.ProgrammeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Accept(r.Context(), service.AcceptRequest{
		ApplicationID:  applicationID,
		ProgrammeID:    programmeID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Notes:          req.Notes,
	})
	if err != nil {
		h.fail(w, r, "accept application", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, acceptResponse{
		Enrollment: res.Enrollment,
		Fees:       res.Fees,
		AccessCode: res.AccessCode,
		Created:    res.Created,
	})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	ledger, err := h.service.GetLedger(r.Context(), enrollmentID)
	if err != nil {
		h.fail(w, r, "get ledger", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ledger)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	eligible, err := h.service.IsEligibleForActivation(r.Context(), enrollmentID)
	if err != nil {
		h.fail(w, r, "check eligibility", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"eligible": eligible})
}

func (h *Handler) handleInstantiateFees(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	fees, err := h.service.InstantiateFees(r.Context(), enrollmentID)
	if err != nil {
		h.fail(w, r, "instantiate fees", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"fees": fees})
}

func (h *Handler) handleMarkValidated(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	e, err := h.service.MarkValidated(r.Context(), enrollmentID, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "validate enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	var req suspendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.service.Suspend(r.Context(), enrollmentID, req.Reason, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "suspend enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	e, err := h.service.Cancel(r.Context(), enrollmentID, req.Reason, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "cancel enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleReinstate(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	e, err := h.service.Reinstate(r.Context(), enrollmentID, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "reinstate enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) handleForceActivate(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	res, err := h.service.ForceActivate(r.Context(), enrollmentID, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "activate enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, activationResponse{
		Activated:  res.Activated,
		Enrollment: res.Enrollment,
		Student:    res.Student,
	})
}

type credentialsResponse struct {
	EnrollmentID id.EnrollmentID `json:"enrollment_id"`
	Username     string          `json:"username"`
	Sent         bool            `json:"sent"`
}

// handleReissueCredentials never echoes the password; it only travels by
// email.
func (h *Handler) handleReissueCredentials(w http.ResponseWriter, r *http.Request) {
	enrollmentID, ok := h.enrollmentID(w, r)
	if !ok {
		return
	}
	res, err := h.service.ReissueCredentials(r.Context(), enrollmentID, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "reissue credentials", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, credentialsResponse{
		EnrollmentID: res.Enrollment.ID,
		Username:     res.Student.Username,
		Sent:         true,
	})
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	feeID, err := id.ParseFeeID(chi.URLParam(r, "feeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req overrideRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var amount *decimal.Decimal
	if req.AmountOverride != nil {
		parsed, err := money.Parse(*req.AmountOverride)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		amount = &parsed
	}
	fee, err := h.service.OverrideFeeAmount(r.Context(), feeID, amount, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "override fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fee)
}

func (h *Handler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	feeID, err := id.ParseFeeID(chi.URLParam(r, "feeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	settled, err := h.service.RecalculateFeeStatus(r.Context(), feeID)
	if err != nil {
		h.fail(w, r, "recalculate fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"is_settled": settled})
}

func (h *Handler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	p, err := h.service.CreatePendingPayment(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleValidatePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	res, err := h.service.ValidatePayment(r.Context(), paymentID, requestcontext.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, "validate payment", err)
		return
	}
	out := validationResponse{
		Payment:          res.Payment,
		AlreadyProcessed: res.AlreadyProcessed,
		FeeSettled:       res.FeeSettled,
		Remaining:        res.Remaining,
		Receipt:          res.Receipt,
	}
	if res.Activation != nil && res.Activation.Activated {
		out.Activated = true
		out.Matricule = res.Activation.Enrollment.Matricule
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRejectPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.RejectPayment(r.Context(), paymentID, requestcontext.StaffID(r.Context()), req.Reason)
	if err != nil {
		h.fail(w, r, "reject payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleIssueReceipt(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.IssueReceipt(r.Context(), paymentID)
	if err != nil && rec == nil {
		h.fail(w, r, "issue receipt", err)
		return
	}
	if err != nil {
		// receipt allocated, artifact still missing
		h.logger.WarnContext(r.Context(), "receipt artifact not stored", "reference", rec.Reference, "error", err)
		httputil.WriteJSON(w, http.StatusAccepted, rec)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handlePublicStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetPublicStatus(r.Context(), chi.URLParam(r, "token"), r.Header.Get(AccessCodeHeader))
	if err != nil {
		h.fail(w, r, "get public status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	p, err := h.service.SubmitPayment(r.Context(), chi.URLParam(r, "token"), r.Header.Get(AccessCodeHeader), req)
	if err != nil {
		h.fail(w, r, "submit payment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetReceipt(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		h.fail(w, r, "get receipt", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) decodePayment(w http.ResponseWriter, r *http.Request) (service.CreatePaymentRequest, bool) {
	var req paymentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return service.CreatePaymentRequest{}, false
	}
	feeID, err := id.ParseFeeID(req.FeeID)
	if err != nil {
		httputil.WriteError(w, err)
		return service.CreatePaymentRequest{}, false
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return service.CreatePaymentRequest{}, false
	}
	return service.CreatePaymentRequest{
		FeeID:     feeID,
		Amount:    amount,
		Method:    models.PaymentMethod(req.Method),
		Reference: req.Reference,
		CashCode:  req.CashCode,
	}, true
}

func (h *Handler) enrollmentID(w http.ResponseWriter, r *http.Request) (id.EnrollmentID, bool) {
	enrollmentID, err := id.ParseEnrollmentID(chi.URLParam(r, "enrollmentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EnrollmentID{}, false
	}
	return enrollmentID, true
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (id.PaymentID, bool) {
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PaymentID{}, false
	}
	return paymentID, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	}
	httputil.WriteError(w, err)
}
