/*
server.go - Router and middleware for the scan API

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique id per request for tracing
  4. CORS:       the scanner front-end is served from another origin

ROUTES:
  Unknown routes are a plain 404; they never reach the engine and leave
  no ledger row. Everything under /u/ is audited.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the scan API router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/", h.Index)
	r.Get("/u/{requestid}/{usertoken}", h.Action)
	r.Get("/u/{requestid}/{usertoken}/{vouchertoken}", h.Action)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	return r
}
