package server

import (
	"net/http"
	"time"

	"github.com/yuqi-zhai/passagerank/pkg/health"
	"github.com/yuqi-zhai/passagerank/pkg/metrics"
	"github.com/yuqi-zhai/passagerank/pkg/middleware"
)

// Routes wires the handler into a mux with the metrics and timeout
// middleware applied to every route, health probes included.
func Routes(h *Handler, checker *health.Checker, m *metrics.Metrics, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", h.Search)
	mux.HandleFunc("/document/", h.Document)
	mux.HandleFunc("/stats", h.Stats)
	mux.HandleFunc("/healthz", checker.LiveHandler())
	mux.HandleFunc("/readyz", checker.ReadyHandler())

	var handler http.Handler = mux
	if requestTimeout > 0 {
		handler = middleware.Timeout(requestTimeout)(handler)
	}
	if m != nil {
		handler = middleware.Metrics(m)(handler)
	}
	return handler
}
