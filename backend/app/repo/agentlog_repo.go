package repo

import (
	"job-relay/backend/app/models"

	"gorm.io/gorm"
)

type AgentLogRepository struct{ db *gorm.DB }

func NewAgentLogRepository(db *gorm.DB) *AgentLogRepository { return &AgentLogRepository{db: db} }

func (r *AgentLogRepository) Create(l *models.AgentLog) error { return r.db.Create(l).Error }

func (r *AgentLogRepository) LatestByDevice(deviceID string, limit int) ([]models.AgentLog, error) {
	if limit <= 0 {
		limit = 1
	}
	var logs []models.AgentLog
	q := r.db.Order("id DESC").Limit(limit)
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	err := q.Find(&logs).Error
	return logs, err
}
