package controllers

import (
	"net/http"

	"job-relay/backend/app/socket"
)

type SocketController struct{ Hub *socket.Hub }

func NewSocketController(h *socket.Hub) *SocketController { return &SocketController{Hub: h} }

// Connect handles GET /agent/ws?deviceId=.
func (c *SocketController) Connect(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	c.Hub.Serve(w, r, deviceID)
}
