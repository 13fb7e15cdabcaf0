package repo

import (
	"time"

	"job-relay/backend/app/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) *DeviceRepository { return &DeviceRepository{db: db} }

func (r *DeviceRepository) FindByDeviceID(deviceID string) (*models.Device, error) {
	var d models.Device
	if err := r.db.Where("device_id = ?", deviceID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// Seen inserts the device on first contact, otherwise bumps last_seen and the
// event counter in the same statement.
func (r *DeviceRepository) Seen(deviceID string, at time.Time) error {
	d := models.Device{DeviceID: deviceID, FirstSeen: at, LastSeen: at, EventCount: 1}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen":   at,
			"event_count": gorm.Expr("event_count + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(&d).Error
}

func (r *DeviceRepository) ListAll() ([]models.Device, error) {
	var out []models.Device
	err := r.db.Order("last_seen DESC").Find(&out).Error
	return out, err
}
