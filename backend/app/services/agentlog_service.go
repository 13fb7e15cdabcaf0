package services

import (
	"job-relay/backend/app/models"
	"job-relay/backend/app/repo"
	"job-relay/backend/app/session"
)

// maxLoggedPayload caps what is kept of a single report; snapshots can be
// whole pages.
const maxLoggedPayload = 64 << 10

type AgentLogService struct{ repo *repo.AgentLogRepository }

func NewAgentLogService(r *repo.AgentLogRepository) *AgentLogService {
	return &AgentLogService{repo: r}
}

func (s *AgentLogService) Create(ev session.Event) error {
	payload := ev.Payload
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload]
	}
	l := models.AgentLog{
		DeviceID:  ev.DeviceID,
		Kind:      string(ev.Kind),
		Payload:   payload,
		EventTime: ev.Timestamp,
	}
	return s.repo.Create(&l)
}

func (s *AgentLogService) Latest(deviceID string, limit int) ([]models.AgentLog, error) {
	return s.repo.LatestByDevice(deviceID, limit)
}
