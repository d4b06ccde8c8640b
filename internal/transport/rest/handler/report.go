package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"pulse/internal/model"
	"pulse/internal/service"
	"pulse/internal/transport/rest/middleware"
)

// ReportReader serves frozen final snapshots
type ReportReader interface {
	GetReport(ctx context.Context, caller *model.Caller, surveyID string) (*model.FinalSnapshot, error)
}

// ReportHandler handles report endpoints
type ReportHandler struct {
	reports ReportReader
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports ReportReader) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GetReport handles GET /v1/microsurveys/{id}/report
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	report, err := h.reports.GetReport(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}
