package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/polyview/internal/domain"
)

// UpstreamKeyHeader carries the caller's Dome API key.
const UpstreamKeyHeader = "X-Dome-Api-Key"

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps a failure from the market-data services onto an
// HTTP status.
func writeUpstreamError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, op string, err error) {
	var ue *domain.UpstreamError
	var te *domain.TransportError

	switch {
	case errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "upstream rate limit reached, retry later")
	case errors.As(err, &ue):
		writeError(w, http.StatusBadGateway, "upstream error: "+ue.StatusText)
	case errors.As(err, &te):
		writeError(w, http.StatusBadGateway, "upstream unreachable")
	default:
		writeError(w, http.StatusInternalServerError, op+" failed")
	}

	logger.WarnContext(r.Context(), "handler: "+op+" failed",
		slog.String("slug", pathParam(r, "slug")),
		slog.String("error", err.Error()),
	)
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// upstreamKey returns the Dome API key for this request: the header when
// present, otherwise the configured default.
func upstreamKey(r *http.Request, fallback string) string {
	if k := strings.TrimSpace(r.Header.Get(UpstreamKeyHeader)); k != "" {
		return k
	}
	return fallback
}
