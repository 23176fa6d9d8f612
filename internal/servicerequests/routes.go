package servicerequests

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(q Querier) http.Handler {
	h := NewHandler(q)
	r := chi.NewRouter()

	r.Get("/requests", h.GetRequests)
	r.Get("/requests/{sourceID}/history", h.GetRequestHistory)
	r.Get("/statuses", h.GetStatuses)
	r.Get("/healthz", h.Healthz)

	return r
}
