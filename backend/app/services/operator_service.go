package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/models"
	"job-relay/backend/app/repo"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrOperatorExists     = errors.New("operator already exists")
)

const RoleViewer = "viewer"

type OperatorService struct{ operators *repo.OperatorRepository }

func NewOperatorService(operators *repo.OperatorRepository) *OperatorService {
	return &OperatorService{operators: operators}
}

// EnsureAdmin creates the bootstrap admin unless the username is taken.
func (s *OperatorService) EnsureAdmin(username, password string) error {
	count, err := s.operators.CountByUsername(username)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.Create(username, password, jwtutil.RoleAdmin)
}

func (s *OperatorService) Create(username, password, role string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	if role == "" {
		role = RoleViewer
	}
	count, err := s.operators.CountByUsername(username)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrOperatorExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.operators.Create(&models.Operator{Username: username, PasswordHash: string(hash), Role: role})
}

func (s *OperatorService) Authenticate(username, password string) (*models.Operator, error) {
	o, err := s.operators.FindByUsername(username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return o, nil
}

func (s *OperatorService) List() ([]models.Operator, error) { return s.operators.List() }
