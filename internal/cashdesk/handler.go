package cashdesk

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	id "esfe/pkg/domain"
	dErrors "esfe/pkg/domain-errors"
	"esfe/pkg/platform/httputil"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Post("/admin/cashdesk/sessions", h.handleOpen)
		r.Post("/admin/cashdesk/agents", h.handleRegisterAgent)
		r.Post("/admin/cashdesk/agents/{code}/activate", h.handleSetAgentActive(true))
		r.Post("/admin/cashdesk/agents/{code}/deactivate", h.handleSetAgentActive(false))
	})
}

type registerAgentRequest struct {
	StaffID string `json:"staff_id" validate:"required,uuid"`
	Name    string `json:"name" validate:"required,min=2,max=120"`
}

type openRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required,uuid"`
	AgentCode    string `json:"agent_code" validate:"required,len=6,hexadecimal"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	enrollmentID, err := id.ParseEnrollmentID(req.EnrollmentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.Open(r.Context(), enrollmentID, req.AgentCode)
	if err != nil {
		h.logFailure(r, "open cash session failed", err)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if session.Reused {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, session)
}

func (h *Handler) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req registerAgentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	staffID, err := id.ParseStaffID(req.StaffID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	agent, err := h.service.RegisterAgent(r.Context(), staffID, req.Name)
	if err != nil {
		h.logFailure(r, "register cash agent failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, agent)
}

func (h *Handler) handleSetAgentActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := h.service.SetAgentActive(r.Context(), chi.URLParam(r, "code"), active)
		if err != nil {
			h.logFailure(r, "update cash agent failed", err)
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, agent)
	}
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeDependency {
		h.logger.ErrorContext(r.Context(), msg, "error", err)
	}
}
