package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/audioprep/internal/audit"
)

// RunLister is implemented by audit.Service.
type RunLister interface {
	ListRuns(ctx context.Context, q audit.RunQuery) ([]audit.Run, error)
}

type AdminHandler struct {
	runs RunLister
}

func NewAdminHandler(runs RunLister) *AdminHandler {
	return &AdminHandler{runs: runs}
}

func (h *AdminHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run log requires a database"})
		return
	}

	q := audit.RunQuery{
		State: r.URL.Query().Get("state"),
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(w, "start_date must be RFC3339")
			return
		}
		q.StartDate = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(w, "end_date must be RFC3339")
			return
		}
		q.EndDate = &t
	}

	runs, err := h.runs.ListRuns(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
