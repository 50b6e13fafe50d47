package integrations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrInvalidType         = errors.New("unsupported integration type")
	ErrNameRequired        = errors.New("integration name is required")
	ErrTestUnsupported     = errors.New("test delivery is not supported for this integration type")
)

// ConfigError lists the config fields that are missing or malformed.
type ConfigError struct {
	Fields map[string]string
}

func (e *ConfigError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid integration config: " + strings.Join(keys, ", ")
}

var requiredFields = map[models.IntegrationType][]string{
	models.IntegrationSlack:   {"webhook_url"},
	models.IntegrationJira:    {"base_url", "email", "api_token", "project_key"},
	models.IntegrationGitHub:  {"token", "repository"},
	models.IntegrationLinear:  {"api_key", "team_id"},
	models.IntegrationWebhook: {"url"},
}

var urlFields = map[string]bool{"webhook_url": true, "base_url": true, "url": true}

// ValidateConfig checks config against the fields the integration type needs.
func ValidateConfig(t models.IntegrationType, config map[string]any) error {
	required, ok := requiredFields[t]
	if !ok {
		return ErrInvalidType
	}

	fields := make(map[string]string)
	for _, f := range required {
		v, _ := config[f].(string)
		if strings.TrimSpace(v) == "" {
			fields[f] = f + " is required"
			continue
		}
		if urlFields[f] {
			u, err := url.Parse(v)
			if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				fields[f] = f + " must be an http(s) URL"
			}
		}
	}
	if len(fields) > 0 {
		return &ConfigError{Fields: fields}
	}
	return nil
}

// Service manages an organization's outbound integrations. Config blobs hold
// credentials and are only ever stored age-encrypted.
type Service struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	logger    *slog.Logger
	deliverer *Deliverer
	now       func() time.Time
}

type Option func(*Service)

// WithDeliverer replaces the default outbound HTTP deliverer.
func WithDeliverer(d *Deliverer) Option {
	return func(s *Service) { s.deliverer = d }
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{db: db, encryptor: encryptor, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.deliverer == nil {
		s.deliverer = NewDeliverer(logger, nil)
	}
	return s
}

type CreateInput struct {
	Type   string
	Name   string
	Config map[string]any
}

func (s *Service) Create(ctx context.Context, orgID uuid.UUID, input CreateInput) (*models.Integration, error) {
	if !models.IsValidIntegrationType(input.Type) {
		return nil, ErrInvalidType
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	typ := models.IntegrationType(input.Type)
	if err := ValidateConfig(typ, input.Config); err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.EncryptJSON(input.Config)
	if err != nil {
		return nil, fmt.Errorf("encrypting config: %w", err)
	}

	in := &models.Integration{
		OrganizationID:  orgID,
		Type:            typ,
		Name:            name,
		EncryptedConfig: encrypted,
		Enabled:         true,
	}
	if err := s.db.WithContext(ctx).Create(in).Error; err != nil {
		return nil, fmt.Errorf("saving integration: %w", err)
	}

	s.logger.Info("created integration",
		"id", in.ID,
		"org_id", orgID,
		"type", typ,
	)
	return in, nil
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.Integration, error) {
	var list []models.Integration
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("listing integrations: %w", err)
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Integration, error) {
	var in models.Integration
	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		First(&in).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, fmt.Errorf("loading integration: %w", err)
	}
	return &in, nil
}

// Config decrypts the integration's stored config.
func (s *Service) Config(in *models.Integration) (map[string]any, error) {
	var cfg map[string]any
	if err := s.encryptor.DecryptJSON(in.EncryptedConfig, &cfg); err != nil {
		return nil, fmt.Errorf("decrypting config: %w", err)
	}
	return cfg, nil
}

// ConfigKeys returns the sorted names of the configured fields, for display
// without revealing values.
func (s *Service) ConfigKeys(in *models.Integration) ([]string, error) {
	cfg, err := s.Config(in)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Service) SetEnabled(ctx context.Context, orgID, id uuid.UUID, enabled bool) (*models.Integration, error) {
	in, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(in).Update("enabled", enabled).Error; err != nil {
		return nil, fmt.Errorf("updating integration: %w", err)
	}
	return in, nil
}

// SendTest delivers a test message through the integration so an admin can
// check the configured endpoint. Only webhook and Slack integrations support
// it.
func (s *Service) SendTest(ctx context.Context, orgID, id uuid.UUID) (*DeliveryResult, error) {
	in, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.Config(in)
	if err != nil {
		return nil, err
	}

	url, payload, secret, err := testPayload(in, cfg, s.now())
	if err != nil {
		return nil, err
	}

	result, err := s.deliverer.Post(ctx, url, payload, secret)
	if err != nil {
		return nil, err
	}
	s.logger.Info("integration test delivery",
		"id", in.ID,
		"org_id", orgID,
		"delivered", result.Delivered,
		"status", result.StatusCode,
	)
	return result, nil
}

func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).
		Delete(&models.Integration{})
	if result.Error != nil {
		return fmt.Errorf("deleting integration: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}
