package dto

import (
	"time"

	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/database/models"
)

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r CreateProjectRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if ok, msg := validation.IsValidName(r.Name); !ok {
		errors["name"] = msg
	}
	if len(r.Description) > 1000 {
		errors["description"] = "Description must be at most 1000 characters"
	}
	return errors
}

type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIKey      string    `json:"api_key"`
	CreatedAt   time.Time `json:"created_at"`
}

func ProjectFromModel(p *models.Project) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		APIKey:      p.APIKey,
		CreatedAt:   p.CreatedAt,
	}
}

type CreateIntegrationRequest struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

func (r CreateIntegrationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !models.IsValidIntegrationType(r.Type) {
		errors["type"] = "Type must be one of slack, jira, github, linear, webhook"
	}
	if ok, msg := validation.IsValidName(r.Name); !ok {
		errors["name"] = msg
	}
	if len(r.Config) == 0 {
		errors["config"] = "Config is required"
	}
	return errors
}

type UpdateIntegrationRequest struct {
	Enabled *bool `json:"enabled"`
}

func (r UpdateIntegrationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Enabled == nil {
		errors["enabled"] = "Enabled is required"
	}
	return errors
}

// IntegrationDTO never carries config values, only the names of the
// configured fields.
type IntegrationDTO struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Enabled    bool      `json:"enabled"`
	ConfigKeys []string  `json:"config_keys,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func IntegrationFromModel(in *models.Integration, keys []string) IntegrationDTO {
	return IntegrationDTO{
		ID:         in.ID.String(),
		Type:       string(in.Type),
		Name:       in.Name,
		Enabled:    in.Enabled,
		ConfigKeys: keys,
		CreatedAt:  in.CreatedAt,
	}
}
