package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"esfe/internal/catalog/models"
	"esfe/internal/catalog/service"
	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/money"
	"esfe/pkg/platform/httputil"
)

// Service defines the catalog operations exposed to staff.
type Service interface {
	CreateProgramme(ctx context.Context, code, name string) (*models.Programme, error)
	ListFeeRules(ctx context.Context, programmeID id.ProgrammeID) ([]*models.FeeRule, error)
	CreateRule(ctx context.Context, req service.CreateRuleRequest) (*models.FeeRule, error)
	UpdateRuleAmount(ctx context.Context, ruleID id.FeeRuleID, amount decimal.Decimal) (*models.FeeRule, error)
	DeactivateRule(ctx context.Context, ruleID id.FeeRuleID) (*models.FeeRule, error)
	SeedDefaultRules(ctx context.Context, programmeID id.ProgrammeID) ([]*models.FeeRule, error)
	CreateAcademicYear(ctx context.Context, startYear int) (*models.AcademicYear, error)
	SetActiveYear(ctx context.Context, yearID id.AcademicYearID) (*models.AcademicYear, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts staff catalog routes behind auth.
func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Route("/admin/catalog", func(r chi.Router) {
		r.Use(auth)
		r.Post("/programmes", h.handleCreateProgramme)
		r.Get("/programmes/{programmeID}/rules", h.handleListRules)
		r.Post("/programmes/{programmeID}/rules", h.handleCreateRule)
		r.Post("/programmes/{programmeID}/rules/seed", h.handleSeed)
		r.Patch("/rules/{ruleID}", h.handleUpdateAmount)
		r.Post("/rules/{ruleID}/deactivate", h.handleDeactivate)
		r.Post("/years", h.handleCreateYear)
		r.Post("/years/{yearID}/activate", h.handleActivateYear)
	})
}

type createProgrammeRequest struct {
	Code string `json:"code" validate:"required,max=16"`
	Name string `json:"name" validate:"required,max=200"`
}

type createRuleRequest struct {
	Label     string `json:"label" validate:"required,max=128"`
	Type      string `json:"type" validate:"required,oneof=registration tuition other"`
	Amount    string `json:"amount" validate:"required"`
	Order     int    `json:"order" validate:"gte=0"`
	Mandatory bool   `json:"mandatory"`
}

type updateAmountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

type createYearRequest struct {
	StartYear int `json:"start_year" validate:"required,gte=2000,lte=2200"`
}

func (h *Handler) handleCreateProgramme(w http.ResponseWriter, r *http.Request) {
	var req createProgrammeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.CreateProgramme(r.Context(), req.Code, req.Name)
	if err != nil {
		h.fail(w, r, "create programme", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	programmeID, err := id.ParseProgrammeID(chi.URLParam(r, "programmeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rules, err := h.service.ListFeeRules(r.Context(), programmeID)
	if err != nil {
		h.fail(w, r, "list fee rules", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	programmeID, err := id.ParseProgrammeID(chi.URLParam(r, "programmeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req createRuleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.service.CreateRule(r.Context(), service.CreateRuleRequest{
		ProgrammeID: programmeID,
		Label:       req.Label,
		Type:        models.FeeType(req.Type),
		Amount:      amount,
		Order:       req.Order,
		Mandatory:   req.Mandatory,
	})
	if err != nil {
		h.fail(w, r, "create fee rule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	programmeID, err := id.ParseProgrammeID(chi.URLParam(r, "programmeID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rules, err := h.service.SeedDefaultRules(r.Context(), programmeID)
	if err != nil {
		h.fail(w, r, "seed fee rules", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseFeeRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req updateAmountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.service.UpdateRuleAmount(r.Context(), ruleID, amount)
	if err != nil {
		h.fail(w, r, "update fee rule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseFeeRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rule, err := h.service.DeactivateRule(r.Context(), ruleID)
	if err != nil {
		h.fail(w, r, "deactivate fee rule", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleCreateYear(w http.ResponseWriter, r *http.Request) {
	var req createYearRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	year, err := h.service.CreateAcademicYear(r.Context(), req.StartYear)
	if err != nil {
		h.fail(w, r, "create academic year", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, year)
}

func (h *Handler) handleActivateYear(w http.ResponseWriter, r *http.Request) {
	yearID, err := id.ParseAcademicYearID(chi.URLParam(r, "yearID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	year, err := h.service.SetActiveYear(r.Context(), yearID)
	if err != nil {
		h.fail(w, r, "activate academic year", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, year)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), op+" failed", "error", err)
	}
	httputil.WriteError(w, err)
}
