package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Organization struct {
	Base
	Name     string            `gorm:"not null" json:"name"`
	Slug     string            `gorm:"uniqueIndex;not null" json:"slug"`
	Plan     string            `gorm:"not null;default:'free'" json:"plan"`
	Settings datatypes.JSONMap `json:"settings"`

	Memberships  []Membership  `gorm:"foreignKey:OrganizationID" json:"-"`
	Projects     []Project     `gorm:"foreignKey:OrganizationID" json:"-"`
	Integrations []Integration `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Membership relates a user to an organization. Every organization keeps at
// least one admin membership.
type Membership struct {
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	Role           string    `gorm:"not null;default:'member'" json:"role"`
	JoinedAt       time.Time `json:"joined_at"`

	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}
