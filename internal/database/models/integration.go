package models

import "github.com/google/uuid"

type IntegrationType string

const (
	IntegrationSlack   IntegrationType = "slack"
	IntegrationJira    IntegrationType = "jira"
	IntegrationGitHub  IntegrationType = "github"
	IntegrationLinear  IntegrationType = "linear"
	IntegrationWebhook IntegrationType = "webhook"
)

// Integration forwards collected feedback to an external tracker. Its config
// holds credentials and is stored age-encrypted.
type Integration struct {
	Base
	OrganizationID  uuid.UUID       `gorm:"type:uuid;index;not null" json:"organization_id"`
	Type            IntegrationType `gorm:"not null" json:"type"`
	Name            string          `gorm:"not null" json:"name"`
	EncryptedConfig string          `gorm:"type:text;not null" json:"-"`
	Enabled         bool            `gorm:"default:true" json:"enabled"`
}

func (Integration) TableName() string {
	return "integrations"
}

func IsValidIntegrationType(t string) bool {
	switch IntegrationType(t) {
	case IntegrationSlack, IntegrationJira, IntegrationGitHub, IntegrationLinear, IntegrationWebhook:
		return true
	}
	return false
}
