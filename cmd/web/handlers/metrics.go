package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payrecon/cmd/web/response"
)

type Metrics struct {
	svc      SnapshotContract
	exporter http.Handler
}

func NewMetrics(svc SnapshotContract, registry *prometheus.Registry) *Metrics {
	return &Metrics{svc: svc, exporter: promhttp.HandlerFor(registry, promhttp.HandlerOpts{})}
}

// Handler serves the Prometheus exposition format.
func (h *Metrics) Handler(w http.ResponseWriter, r *http.Request) {
	h.exporter.ServeHTTP(w, r)
}

// Snapshot serves the payrecon counters as JSON.
func (h *Metrics) Snapshot(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, "metrics snapshot", map[string]any{"metrics": h.svc.Snapshot()})
}
