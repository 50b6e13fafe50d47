package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNameRequired    = errors.New("project name is required")
)

const apiKeyPrefix = "pk_"

// Service handles the projects an organization embeds the feedback widget in
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

type CreateInput struct {
	Name        string
	Description string
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, err
	}

	p := &models.Project{
		OrganizationID: orgID,
		Name:           name,
		Description:    strings.TrimSpace(input.Description),
		APIKey:         key,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("saving project: %w", err)
	}

	s.logger.Info("created project", "id", p.ID, "org_id", orgID, "name", name)
	return p, nil
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return &p, nil
}

// RotateAPIKey replaces the project's widget key. The old key stops working
// immediately.
func (s *Service) RotateAPIKey(ctx context.Context, orgID, id uuid.UUID) (*models.Project, error) {
	p, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	key, err := newAPIKey()
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(p).Update("api_key", key).Error; err != nil {
		return nil, fmt.Errorf("rotating api key: %w", err)
	}
	s.logger.Info("rotated project api key", "id", p.ID, "org_id", orgID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&models.Project{})
	if result.Error != nil {
		return fmt.Errorf("deleting project: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func newAPIKey() (string, error) {
	token, err := crypto.GenerateToken(24)
	if err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return apiKeyPrefix + token, nil
}
