package handlers

import (
	"net/http"

	"payrecon/cmd/web/response"
)

type Health struct {
	svc HealthContract
}

func NewHealth(svc HealthContract) *Health { return &Health{svc: svc} }

func (h *Health) Handler(w http.ResponseWriter, r *http.Request) {
	res := h.svc.Check(r.Context())
	fields := map[string]any{"checks": res.Checks, "at": res.At}
	if !res.OK {
		response.Envelope(w, http.StatusServiceUnavailable, false, "degraded", fields)
		return
	}
	response.JSON(w, http.StatusOK, "ok", fields)
}
