package handlers

import (
	"net/http"
	"strings"

	"github.com/hugh/issueflow/internal/api/dto"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/api/validation"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
)

type OrganizationHandler struct {
	tenants *tenant.Service
	quota   *tenant.QuotaEnforcer
}

func NewOrganizationHandler(tenants *tenant.Service, quota *tenant.QuotaEnforcer) *OrganizationHandler {
	return &OrganizationHandler{tenants: tenants, quota: quota}
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req dto.CreateOrganizationRequest
	if !decode(w, r, &req) {
		return
	}

	org, err := h.tenants.CreateOrganization(r.Context(), user.ID, tenant.CreateOrganizationInput{
		Name:     validation.CleanName(req.Name),
		Slug:     strings.TrimSpace(req.Slug),
		Plan:     req.Plan,
		Settings: req.Settings,
	})
	if err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	out := dto.OrganizationFromModel(org)
	out.Role = models.RoleAdmin
	response.Created(w, out, "Organization created")
}

func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	orgs, err := h.tenants.ListForUser(r.Context(), user.ID)
	if err != nil {
		response.Error(w, r, apperr.Internal(err))
		return
	}

	out := make([]dto.OrganizationDTO, len(orgs))
	for i := range orgs {
		out[i] = dto.OrganizationFromModel(&orgs[i])
	}
	response.OK(w, out)
}

// Get returns the resolved tenant with the caller's role, plan limits and
// current usage. It serves both /organizations/{orgSlug} and
// /organizations/current.
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	usage, err := h.quota.Usage(r.Context(), tc.Organization.ID)
	if err != nil {
		response.Error(w, r, apperr.Internal(err))
		return
	}

	out := dto.OrganizationFromModel(tc.Organization)
	out.Role = tc.Role
	limits := tc.Limits
	out.Limits = &limits
	out.Usage = usage
	response.OK(w, out)
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var req dto.UpdateOrganizationRequest
	if !decode(w, r, &req) {
		return
	}

	org, err := h.tenants.UpdateOrganization(r.Context(), tc.Organization.ID, tenant.UpdateOrganizationInput{
		Name:     validation.CleanNamePtr(req.Name),
		Plan:     req.Plan,
		Settings: req.Settings,
	})
	if err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	out := dto.OrganizationFromModel(org)
	out.Role = tc.Role
	response.OK(w, out)
}

func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	if err := h.tenants.DeleteOrganization(r.Context(), tc.Organization.ID); err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	response.Message(w, "Organization deleted")
}

func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	members, err := h.tenants.ListMembers(r.Context(), tc.Organization.ID)
	if err != nil {
		response.Error(w, r, tenantError(err))
		return
	}
	response.OK(w, members)
}

func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if !decode(w, r, &req) {
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleMember
	}

	member, err := h.tenants.AddMember(r.Context(), tc.Organization.ID, req.Email, role)
	if err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	response.Created(w, member, "Member added")
}

func (h *OrganizationHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	var req dto.UpdateMemberRoleRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.tenants.UpdateMemberRole(r.Context(), tc.Organization.ID, user.ID, target, req.Role)
	if err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	response.OK(w, m)
}

func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	tc, ok := currentTenant(w, r)
	if !ok {
		return
	}
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	if err := h.tenants.RemoveMember(r.Context(), tc.Organization.ID, user.ID, target); err != nil {
		response.Error(w, r, tenantError(err))
		return
	}

	response.Message(w, "Member removed")
}
