package controllers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"job-relay/backend/app/dto"
	"job-relay/backend/app/services"
	"job-relay/backend/global"
)

const maxReportBody = 8 << 20

// AgentController serves the poll transport.
type AgentController struct{ Relay *services.RelayService }

func NewAgentController(relay *services.RelayService) *AgentController {
	return &AgentController{Relay: relay}
}

// Data handles POST /agent/data. The response never carries engine output.
func (c *AgentController) Data(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReportBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	req, err := dto.DecodeAgentData(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := req.ToEvent(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.Relay.Apply(r.Context(), ev); err != nil {
		if errors.Is(err, services.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		global.Logger.Error().Err(err).Str("device", ev.DeviceID).Msg("apply event")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Poll handles GET /agent/poll?deviceId=.
func (c *AgentController) Poll(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	cmds, err := c.Relay.Poll(r.Context(), deviceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}
