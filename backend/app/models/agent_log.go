package models

import "time"

type AgentLog struct {
	ID        uint   `gorm:"primaryKey"`
	DeviceID  string `gorm:"index;size:191"`
	Kind      string `gorm:"size:32;index"`
	Payload   string `gorm:"type:text"`
	EventTime time.Time
	CreatedAt time.Time
}
