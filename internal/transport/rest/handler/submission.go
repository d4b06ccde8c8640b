package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"pulse/internal/model"
	"pulse/internal/service"
	"pulse/internal/transport/rest/middleware"
)

// Submitter accepts participant answer sets
type Submitter interface {
	Submit(ctx context.Context, caller *model.Caller, surveyID string, req *model.SubmitRequest) (*model.SubmitResult, error)
}

// SubmissionHandler handles participant endpoints
type SubmissionHandler struct {
	submissions Submitter
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(submissions Submitter) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

// Submit handles POST /v1/microsurveys/{id}/responses
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	var req model.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.submissions.Submit(r.Context(), caller, mux.Vars(r)["id"], &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
