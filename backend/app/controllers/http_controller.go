package controllers

import (
	"net/http"

	"job-relay/backend/app/services"
)

type HTTPController struct{ Relay *services.RelayService }

func NewHTTPController(relay *services.RelayService) *HTTPController {
	return &HTTPController{Relay: relay}
}

func (c *HTTPController) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func (c *HTTPController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(c.Relay.Devices()),
	})
}
