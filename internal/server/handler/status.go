package handler

import (
	"net/http"
)

// CacheStats is implemented by response caches that keep counters.
type CacheStats interface {
	Len() int
	Stats() (hits, misses int64)
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode         string
	CacheBackend string
	stats        CacheStats
}

// NewStatusHandler creates a StatusHandler. stats may be nil when the cache
// backend does not keep counters.
func NewStatusHandler(mode, cacheBackend string, stats CacheStats) *StatusHandler {
	return &StatusHandler{Mode: mode, CacheBackend: cacheBackend, stats: stats}
}

// GetStatus responds with the current mode and cache counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":          h.Mode,
		"cache_backend": h.CacheBackend,
	}
	if h.stats != nil {
		hits, misses := h.stats.Stats()
		body["cache_entries"] = h.stats.Len()
		body["cache_hits"] = hits
		body["cache_misses"] = misses
	}
	writeJSON(w, http.StatusOK, body)
}
