package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"pulse/internal/model"
	"pulse/internal/observability"
	"pulse/internal/service"
	"pulse/internal/transport/rest/middleware"
)

// LiveReader serves dashboard projections
type LiveReader interface {
	Live(ctx context.Context, caller *model.Caller, surveyID string, top int) (*model.LiveSnapshot, error)
}

// LiveHandler handles the live dashboard endpoint
type LiveHandler struct {
	live    LiveReader
	metrics *observability.Metrics
}

// NewLiveHandler creates a new live handler. metrics may be nil.
func NewLiveHandler(live LiveReader, metrics *observability.Metrics) *LiveHandler {
	return &LiveHandler{live: live, metrics: metrics}
}

// Live handles GET /v1/microsurveys/{id}/live?top=N
func (h *LiveHandler) Live(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", service.ReasonUnauthorized)
		return
	}

	top := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "top must be a non-negative integer", service.ReasonInvalidBody)
			return
		}
		top = n
	}

	snap, err := h.live.Live(r.Context(), caller, mux.Vars(r)["id"], top)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	etag := snapshotETag(snap)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		h.metrics.ObserveLiveRead(observability.LiveNotModified)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// snapshotETag is derived from the counters and status a merge or transition changes
func snapshotETag(snap *model.LiveSnapshot) string {
	return fmt.Sprintf(`W/"%s-%d-%d-%s-%d"`,
		snap.SurveyID, snap.ResponseCount, snap.LastUpdated.UnixMilli(), snap.Status, len(snap.TopWords))
}
