package dto

import (
	"encoding/json"
	"time"

	"job-relay/backend/app/session"
)

// CommandRequest is the admin body for POST /admin/command.
type CommandRequest struct {
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
	Value    string `json:"value"`
}

type CommandResponse struct {
	Outcome session.Outcome `json:"outcome"`
	Command session.Command `json:"command"`
}

// QueueResponse lists what a device still has to receive and, optionally, the
// journal of what was already sent.
type QueueResponse struct {
	DeviceID string                `json:"deviceId"`
	Queued   []session.Command     `json:"queued"`
	Pending  *session.Confirmation `json:"pending,omitempty"`
	History  []CommandRecord       `json:"history,omitempty"`
}

type CommandRecord struct {
	CommandID string    `json:"commandId"`
	Action    string    `json:"action"`
	Value     string    `json:"value"`
	Status    string    `json:"status"`
	Transport string    `json:"transport,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Push frame types.
const (
	FrameAgentData = "agent_data"
	FrameCommand   = "command"
	FrameError     = "error"
)

// Frame is one message on the push channel.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CommandFrame encodes cmd as an outbound frame.
func CommandFrame(cmd session.Command) ([]byte, error) {
	p, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: FrameCommand, Payload: p})
}

// ErrorFrame encodes an error frame.
func ErrorFrame(msg string) []byte {
	b, _ := json.Marshal(Frame{Type: FrameError, Error: msg})
	return b
}
