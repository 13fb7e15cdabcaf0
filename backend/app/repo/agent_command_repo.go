package repo

import (
	"time"

	"job-relay/backend/app/models"

	"gorm.io/gorm"
)

type AgentCommandRepository struct {
	db *gorm.DB
}

func NewAgentCommandRepository(db *gorm.DB) *AgentCommandRepository {
	return &AgentCommandRepository{db: db}
}

func (r *AgentCommandRepository) Create(cmd *models.AgentCommand) error {
	return r.db.Create(cmd).Error
}

// UpdateStatus moves a journaled command to a new status. Marking it sent
// also stamps sent_at.
func (r *AgentCommandRepository) UpdateStatus(commandID, status, transport string) error {
	fields := map[string]any{"status": status}
	if transport != "" {
		fields["transport"] = transport
	}
	if status == models.CommandSent {
		fields["sent_at"] = time.Now()
	}
	return r.db.Model(&models.AgentCommand{}).
		Where("command_id = ?", commandID).
		Updates(fields).Error
}

// ListByDevice returns the device's journal, oldest first. Without
// includeSent only commands still waiting for delivery are returned.
func (r *AgentCommandRepository) ListByDevice(deviceID string, includeSent bool, limit int) ([]models.AgentCommand, error) {
	q := r.db.Where("device_id = ?", deviceID)
	if !includeSent {
		q = q.Where("status IN ?", []string{models.CommandQueued, models.CommandRequeued})
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var cmds []models.AgentCommand
	if err := q.Order("id ASC").Find(&cmds).Error; err != nil {
		return nil, err
	}
	return cmds, nil
}
