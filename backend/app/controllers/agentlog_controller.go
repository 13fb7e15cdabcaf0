package controllers

import (
	"net/http"
	"strconv"

	"job-relay/backend/app/dto"
	"job-relay/backend/app/services"
	"job-relay/backend/global"
)

type AgentLogController struct{ Relay *services.RelayService }

func NewAgentLogController(relay *services.RelayService) *AgentLogController {
	return &AgentLogController{Relay: relay}
}

// GetLatest returns journaled reports, newest first.
// GET /admin/logs?deviceid=&limit=
func (c *AgentLogController) GetLatest(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceid")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	logs, err := c.Relay.Logs(deviceID, limit)
	if err != nil {
		global.Logger.Error().Err(err).Str("device", deviceID).Msg("agent logs")
		writeError(w, http.StatusInternalServerError, "logs unavailable")
		return
	}
	out := make([]dto.AgentLogEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, dto.AgentLogEntry{DeviceID: l.DeviceID, Kind: l.Kind, Payload: l.Payload, EventTime: l.EventTime})
	}
	writeJSON(w, http.StatusOK, out)
}
