package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"pulse/internal/model"
	"pulse/internal/service"
	"pulse/internal/transport/rest/middleware"
)

// SurveyManager is the admin view of survey lifecycle
type SurveyManager interface {
	Create(ctx context.Context, caller *model.Caller, req *model.CreateSurveyRequest) (*model.MicroSurvey, error)
	GetForTenant(ctx context.Context, caller *model.Caller, id string) (*model.MicroSurvey, error)
	List(ctx context.Context, caller *model.Caller) ([]*model.MicroSurvey, error)
	Transition(ctx context.Context, caller *model.Caller, id string, to model.SurveyStatus) (*model.MicroSurvey, error)
}

// InvitationIssuer mints single-use invitation tokens
type InvitationIssuer interface {
	Issue(ctx context.Context, caller *model.Caller, surveyID string, count int) ([]string, error)
}

// SurveyHandler handles survey endpoints
type SurveyHandler struct {
	surveys     SurveyManager
	invitations InvitationIssuer
}

// NewSurveyHandler creates a new survey handler
func NewSurveyHandler(surveys SurveyManager, invitations InvitationIssuer) *SurveyHandler {
	return &SurveyHandler{
		surveys:     surveys,
		invitations: invitations,
	}
}

// Create handles POST /v1/microsurveys
func (h *SurveyHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	var req model.CreateSurveyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	survey, err := h.surveys.Create(r.Context(), caller, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, survey)
}

// Get handles GET /v1/microsurveys/{id}
func (h *SurveyHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	survey, err := h.surveys.GetForTenant(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, survey)
}

// List handles GET /v1/microsurveys
func (h *SurveyHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	surveys, err := h.surveys.List(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"surveys": surveys})
}

// Transition handles POST /v1/microsurveys/{id}/status
func (h *SurveyHandler) Transition(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	var req model.StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	survey, err := h.surveys.Transition(r.Context(), caller, mux.Vars(r)["id"], req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, survey)
}

// IssueInvitations handles POST /v1/microsurveys/{id}/invitations
func (h *SurveyHandler) IssueInvitations(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	var req model.InvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	surveyID := mux.Vars(r)["id"]
	tokens, err := h.invitations.Issue(r.Context(), caller, surveyID, req.Count)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.InvitationResponse{SurveyID: surveyID, Tokens: tokens})
}
