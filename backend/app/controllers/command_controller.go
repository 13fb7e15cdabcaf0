package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"job-relay/backend/app/dto"
	"job-relay/backend/app/services"
	"job-relay/backend/app/session"
	"job-relay/backend/global"
)

type CommandController struct {
	Relay *services.RelayService
}

func NewCommandController(relay *services.RelayService) *CommandController {
	return &CommandController{Relay: relay}
}

// Post submits an operator command through the gate.
// POST /admin/command {deviceId, action, value}
func (c *CommandController) Post(w http.ResponseWriter, r *http.Request) {
	var req dto.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "deviceId and action are required")
		return
	}
	cmd, err := session.NewCommand(req.Action, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcome, err := c.Relay.SubmitFrom(r.Context(), req.DeviceID, cmd, services.SourceAdmin)
	if err != nil {
		if errors.Is(err, session.ErrEmptyDeviceID) || errors.Is(err, session.ErrEmptyAction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}
	writeJSON(w, http.StatusAccepted, dto.CommandResponse{Outcome: outcome, Command: cmd})
}

func (c *CommandController) Online(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceid")
	list := c.Relay.OnlineDevices(r.Context())
	if id != "" {
		online := false
		for _, d := range list {
			if d == id {
				online = true
				break
			}
		}
		writeJSON(w, http.StatusOK, map[string]bool{"online": online})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online_devices": list,
		"count":          len(list),
	})
}

// Queue lists what a device has not received yet.
// GET /admin/command/queue?deviceid=...&include_sent=true|false
func (c *CommandController) Queue(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("deviceid")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deviceid is required")
		return
	}
	queued, pending := c.Relay.Queue(id)
	resp := dto.QueueResponse{DeviceID: id, Queued: queued, Pending: pending}
	if queued == nil {
		resp.Queued = []session.Command{}
	}

	if r.URL.Query().Get("include_sent") == "true" {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		hist, err := c.Relay.History(id, true, limit)
		if err != nil {
			global.Logger.Error().Err(err).Str("device", id).Msg("command history")
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		resp.History = make([]dto.CommandRecord, 0, len(hist))
		for _, h := range hist {
			resp.History = append(resp.History, dto.CommandRecord{
				CommandID: h.CommandID,
				Action:    h.Action,
				Value:     h.Value,
				Status:    h.Status,
				Transport: h.Transport,
				UpdatedAt: h.UpdatedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
