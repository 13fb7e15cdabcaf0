package repo

import (
	"job-relay/backend/app/models"

	"gorm.io/gorm"
)

type OperatorRepository struct{ db *gorm.DB }

func NewOperatorRepository(db *gorm.DB) *OperatorRepository { return &OperatorRepository{db: db} }

func (r *OperatorRepository) CountByUsername(username string) (int64, error) {
	var count int64
	return count, r.db.Model(&models.Operator{}).Where("username = ?", username).Count(&count).Error
}

func (r *OperatorRepository) Create(o *models.Operator) error { return r.db.Create(o).Error }

func (r *OperatorRepository) FindByUsername(username string) (*models.Operator, error) {
	var o models.Operator
	if err := r.db.Where("username = ?", username).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OperatorRepository) List() ([]models.Operator, error) {
	var out []models.Operator
	return out, r.db.Order("username").Find(&out).Error
}
