package servicerequests

import (
	"errors"
	"net/http"
	"strings"

	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const genericError = "Something went wrong on the server"

// Handler serves the read-only 311 API.
type Handler struct {
	q Querier
}

func NewHandler(q Querier) *Handler {
	return &Handler{q: q}
}

// GetRequests handles GET /api/requests and returns a GeoJSON FeatureCollection.
func (h *Handler) GetRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := h.q.Features(r.Context(), filter)
	if err != nil {
		l := logging.Component("api")
		l.Error().Err(err).Msg("fetching requests")
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}

	fc := ToFeatureCollection(rows)
	metrics.FeaturesReturned.Observe(float64(len(fc.Features)))
	writeJSON(w, http.StatusOK, fc)
}

// GetRequestHistory handles GET /api/requests/{sourceID}/history.
func (h *Handler) GetRequestHistory(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimSpace(chi.URLParam(r, "sourceID"))
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, "source request id is required")
		return
	}

	hist, err := h.q.History(r.Context(), sourceID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}
	if err != nil {
		l := logging.Component("api")
		l.Error().Err(err).Str("source_request_id", sourceID).Msg("fetching history")
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}

	writeJSON(w, http.StatusOK, hist)
}

// GetStatuses handles GET /api/statuses.
func (h *Handler) GetStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.q.Statuses(r.Context())
	if err != nil {
		l := logging.Component("api")
		l.Error().Err(err).Msg("fetching statuses")
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Healthz reports whether the database is reachable.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.q.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logging.Component("api")
		l.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
