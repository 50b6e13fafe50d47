package dto

import (
	"strings"
	"time"

	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
)

type CreateOrganizationRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Plan     string         `json:"plan,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

func (r CreateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if ok, msg := validation.IsValidName(r.Name); !ok {
		errors["name"] = msg
	}
	if r.Slug == "" {
		errors["slug"] = "Slug is required"
	} else {
		switch tenant.ValidateNewSlug(strings.TrimSpace(r.Slug)) {
		case tenant.ErrInvalidSlug:
			errors["slug"] = "Slug may only contain lowercase letters, numbers and dashes (max 64)"
		case tenant.ErrReservedSlug:
			errors["slug"] = "Slug is reserved"
		}
	}
	if r.Plan != "" && !tenant.IsValidPlan(r.Plan) {
		errors["plan"] = "Unknown plan"
	}

	return errors
}

type UpdateOrganizationRequest struct {
	Name     *string        `json:"name,omitempty"`
	Plan     *string        `json:"plan,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

func (r UpdateOrganizationRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		if ok, msg := validation.IsValidName(*r.Name); !ok {
			errors["name"] = msg
		}
	}
	if r.Plan != nil && !tenant.IsValidPlan(*r.Plan) {
		errors["plan"] = "Unknown plan"
	}
	return errors
}

type OrganizationDTO struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Slug      string             `json:"slug"`
	Plan      string             `json:"plan"`
	Settings  map[string]any     `json:"settings,omitempty"`
	Role      string             `json:"role,omitempty"`
	Limits    *tenant.PlanLimits `json:"limits,omitempty"`
	Usage     *tenant.UsageStats `json:"usage,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

func OrganizationFromModel(o *models.Organization) OrganizationDTO {
	return OrganizationDTO{
		ID:        o.ID.String(),
		Name:      o.Name,
		Slug:      o.Slug,
		Plan:      o.Plan,
		Settings:  o.Settings,
		CreatedAt: o.CreatedAt,
	}
}

type AddMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (r AddMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Invalid email format"
	}
	if r.Role != "" && !validation.IsValidRole(r.Role) {
		errors["role"] = "Role must be admin or member"
	}
	return errors
}

type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

func (r UpdateMemberRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !validation.IsValidRole(r.Role) {
		errors["role"] = "Role must be admin or member"
	}
	return errors
}
