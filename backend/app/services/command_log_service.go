package services

import (
	"job-relay/backend/app/models"
	"job-relay/backend/app/repo"
	"job-relay/backend/app/session"
)

type CommandLogService struct{ repo *repo.AgentCommandRepository }

func NewCommandLogService(r *repo.AgentCommandRepository) *CommandLogService {
	return &CommandLogService{repo: r}
}

// Record stores a newly submitted command with its gate outcome.
func (s *CommandLogService) Record(deviceID string, cmd session.Command, status string) error {
	return s.repo.Create(&models.AgentCommand{
		CommandID: cmd.ID,
		DeviceID:  deviceID,
		Action:    cmd.Action,
		Value:     cmd.Value,
		Status:    status,
	})
}

func (s *CommandLogService) Mark(commandID, status, transport string) error {
	return s.repo.UpdateStatus(commandID, status, transport)
}

func (s *CommandLogService) History(deviceID string, includeSent bool, limit int) ([]models.AgentCommand, error) {
	return s.repo.ListByDevice(deviceID, includeSent, limit)
}
