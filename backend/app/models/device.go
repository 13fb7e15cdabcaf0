package models

import "time"

// Device is the persisted roster entry for an agent. The live queue and
// confirmation state never touch the database.
type Device struct {
	ID         uint   `gorm:"primaryKey"`
	DeviceID   string `gorm:"uniqueIndex;size:191;not null"`
	FirstSeen  time.Time
	LastSeen   time.Time `gorm:"index"`
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
