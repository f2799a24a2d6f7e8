// Package relay exposes a same-origin proxy in front of the BCCR indicators service.
package relay

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/bccr-indicadores/internal/logger"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/bccr"
	"github.com/Adda-Baaj/bccr-indicadores/pkg/httpclient"
)

const (
	// ProxyPath is the route browsers call instead of the cross-origin service.
	ProxyPath  = "/api/indicadores"
	HealthPath = "/health"

	defaultContentType = "text/xml"
)

// Handler forwards indicator queries verbatim to a fixed upstream URL.
type Handler struct {
	upstream string
	client   httpclient.Client
	log      logger.Logger
	now      func() time.Time
}

// NewHandler builds the proxy handler.
func NewHandler(upstream string, client httpclient.Client, log logger.Logger) *Handler {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Handler{
		upstream: strings.TrimSpace(upstream),
		client:   client,
		log:      log,
		now:      time.Now,
	}
}

// Proxy relays the request query to upstream and mirrors status, content type and body.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch from BCCR",
			"message": bccr.ErrTransportUnavailable.Error(),
		})
		return
	}

	target := h.upstream
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	h.log.InfoObj("relay forwarding request", "relay_request", map[string]any{
		"upstream": h.upstream,
		"query":    bccr.QueryFromValues(r.URL.Query()).Redacted().Encode(),
	})

	resp, err := h.client.Get(r.Context(), target, forwardHeaders(r))
	if err != nil {
		h.log.ErrorObj("relay upstream fetch failed", "relay_error", map[string]any{
			"upstream": h.upstream,
			"error":    err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to fetch from BCCR",
			"message": err.Error(),
		})
		return
	}

	body := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	h.log.InfoObj("relay response received", "relay_response", map[string]any{
		"status": resp.StatusCode(),
		"bytes":  len(body),
	})

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode())
	_, _ = w.Write(body)
}

// Health reports liveness with the current timestamp.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

func forwardHeaders(r *http.Request) map[string]string {
	headers := map[string]string{"Accept": "application/xml, text/xml, */*"}
	if accept := r.Header.Get("Accept"); accept != "" {
		headers["Accept"] = accept
	}
	return headers
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
