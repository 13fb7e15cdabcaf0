package models

import "time"

// Operator is an account allowed to log in to the admin API.
type Operator struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:32;not null;default:viewer"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
