package directory

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Handler serves GET /api/companies.
type Handler struct {
	svc    *Service
	limits Limits
}

// NewHandler creates the companies HTTP handler.
func NewHandler(svc *Service, limits Limits) *Handler {
	return &Handler{svc: svc, limits: limits}
}

// ServeHTTP parses the query, runs it, and writes the page as JSON.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ParseRequest(r.URL.Query(), h.limits)
	// A malformed bbox is the only parse failure.
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrInvalidBBox.Error()})
		return
	}

	page, err := h.svc.Query(r.Context(), req)
	if err != nil {
		zap.L().Error("directory: query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load companies"})
		return
	}

	w.Header().Set("X-Data-Source", page.Source)
	writeJSON(w, http.StatusOK, page)
}

// StatsHandler returns cache statistics as JSON.
func (h *Handler) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

// PurgeHandler empties the source caches and reports which were purged.
func (h *Handler) PurgeHandler(w http.ResponseWriter, _ *http.Request) {
	purged := h.svc.PurgeCaches()
	if purged == nil {
		purged = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"purged": purged})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("directory: write response", zap.Error(err))
	}
}
