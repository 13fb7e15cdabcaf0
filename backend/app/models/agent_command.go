package models

import "time"

// Command journal statuses.
const (
	CommandQueued    = "queued"
	CommandDropped   = "dropped"
	CommandSent      = "sent"
	CommandRequeued  = "requeued"
	CommandConfirmed = "confirmed"
	CommandExpired   = "expired"
)

// AgentCommand journals every command the relay accepted or rejected for a
// device and what became of it.
type AgentCommand struct {
	ID        uint      `gorm:"primaryKey"`
	CommandID string    `gorm:"uniqueIndex;size:64;not null"`
	DeviceID  string    `gorm:"size:191;index"`
	Action    string    `gorm:"size:64"`
	Value     string    `gorm:"type:text"`
	Status    string    `gorm:"size:32;index"`
	Transport string    `gorm:"size:16"` // poll, push
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
	SentAt    *time.Time
}
