package models

import "github.com/google/uuid"

// Project is the unit a feedback widget is embedded for. Its APIKey is what
// the browser SDK sends along with submitted feedback.
type Project struct {
	Base
	OrganizationID uuid.UUID `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string    `gorm:"not null" json:"name"`
	Description    string    `json:"description"`
	APIKey         string    `gorm:"uniqueIndex;not null" json:"api_key"`
}

func (Project) TableName() string {
	return "projects"
}
