/*
handlers.go - HTTP handlers for the scan API

PURPOSE:
  The thin HTTP adapter over the engine. It parses the route, hands the
  raw tokens to the engine, and renders the classified response with the
  HTTP status the response code maps to.

ENDPOINTS:
  GET /u/{requestid}/{usertoken}                  user-only request
  GET /u/{requestid}/{usertoken}/{vouchertoken}   full scan/undo request
  GET /                                           scanner entry point

ERROR HANDLING:
  Domain rejections are regular responses carrying their response code
  (an unknown requestid comes back as error_bad_request/400 from the rule
  table itself). Only infrastructure failures return a bare 500.

SEE ALSO:
  - server.go: router and middleware
  - dto.go:    response shapes
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ldt/voucher-engine/engine"
)

// Handler holds the HTTP adapter's single dependency.
type Handler struct {
	Engine *engine.Engine
}

// NewHandler creates a handler around eng.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{Engine: eng}
}

// Action processes a scan/undo request submitted through the URL path.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	req := engine.Request{
		Origin:       engine.OriginHTTP,
		Kind:         chi.URLParam(r, "requestid"),
		UserToken:    chi.URLParam(r, "usertoken"),
		VoucherToken: chi.URLParam(r, "vouchertoken"),
	}

	resp, err := h.Engine.Process(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "request processing failed", err)
		return
	}

	writeJSON(w, resp.Code.HTTPStatus(), toActionResponseDTO(resp))
}

// Index is the scanner entry point: no tokens yet, prompt for the first
// scan.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"prompt": "Scan a user code",
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	log.Printf("%s: %v", message, err)
	writeJSON(w, status, map[string]string{"error": message})
}
