package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"job-relay/backend/app/dto"
	"job-relay/backend/app/services"
)

type DeviceController struct{ Relay *services.RelayService }

func NewDeviceController(relay *services.RelayService) *DeviceController {
	return &DeviceController{Relay: relay}
}

func (c *DeviceController) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	infos := c.Relay.Devices()
	out := make([]dto.DeviceSummary, 0, len(infos))
	for _, info := range infos {
		out = append(out, dto.SummarizeDevice(info, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get never creates the device.
func (c *DeviceController) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	info, ok := c.Relay.Device(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	writeJSON(w, http.StatusOK, dto.SummarizeDevice(info, time.Now()))
}

func (c *DeviceController) ClearConfirmation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceId")
	if _, ok := c.Relay.Device(id); !ok {
		writeError(w, http.StatusNotFound, "unknown device")
		return
	}
	resp := dto.ClearConfirmationResponse{}
	if conf, ok := c.Relay.ClearConfirmation(r.Context(), id); ok {
		resp.Cleared = true
		resp.Command = &conf.Command
	}
	writeJSON(w, http.StatusOK, resp)
}
