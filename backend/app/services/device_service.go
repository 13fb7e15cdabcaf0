package services

import (
	"time"

	"job-relay/backend/app/models"
	"job-relay/backend/app/repo"
)

type DeviceService struct{ devices *repo.DeviceRepository }

func NewDeviceService(devices *repo.DeviceRepository) *DeviceService {
	return &DeviceService{devices: devices}
}

func (s *DeviceService) Seen(deviceID string, at time.Time) error {
	return s.devices.Seen(deviceID, at)
}

func (s *DeviceService) FindByDeviceID(deviceID string) (*models.Device, error) {
	return s.devices.FindByDeviceID(deviceID)
}

func (s *DeviceService) ListAll() ([]models.Device, error) {
	return s.devices.ListAll()
}
