package dto

import (
	"time"

	"job-relay/backend/app/session"
)

type DeviceSummary struct {
	DeviceID    string            `json:"deviceId"`
	FirstSeen   time.Time         `json:"firstSeen"`
	LastSeen    time.Time         `json:"lastSeen"`
	LastEvent   session.EventKind `json:"lastEvent,omitempty"`
	EventCount  int64             `json:"eventCount"`
	QueueLength int               `json:"queueLength"`
	PendingURL  string            `json:"pendingUrl,omitempty"`
	PendingFor  string            `json:"pendingFor,omitempty"`
	Online      bool              `json:"online"`
}

// SummarizeDevice flattens a registry snapshot entry for the admin API.
func SummarizeDevice(info session.DeviceInfo, now time.Time) DeviceSummary {
	s := DeviceSummary{
		DeviceID:    info.ID,
		FirstSeen:   info.FirstSeen,
		LastSeen:    info.LastSeen,
		LastEvent:   info.LastEvent,
		EventCount:  info.EventCount,
		QueueLength: info.QueueLength,
		Online:      info.Subscribed,
	}
	if info.Pending != nil {
		s.PendingURL = info.Pending.Command.Value
		s.PendingFor = now.Sub(info.Pending.CreatedAt).Truncate(time.Second).String()
	}
	return s
}

type ClearConfirmationResponse struct {
	Cleared bool             `json:"cleared"`
	Command *session.Command `json:"command,omitempty"`
}

type AgentLogEntry struct {
	DeviceID  string    `json:"deviceId"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	EventTime time.Time `json:"eventTime"`
}
