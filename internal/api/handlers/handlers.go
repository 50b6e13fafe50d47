// Package handlers holds the HTTP handlers behind the /api/v1 routes. They
// decode and validate input, call a service, and map the service's sentinel
// errors onto the apperr taxonomy.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/api/middleware"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
)

const maxBodyBytes = 1 << 20

type validator interface {
	Validate() map[string]string
}

// decode reads a JSON body into v and runs its validation. On failure the
// error response has already been written.
func decode(w http.ResponseWriter, r *http.Request, v validator) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, r, apperr.Validation("Invalid request body"))
		return false
	}
	if errs := v.Validate(); len(errs) > 0 {
		response.Error(w, r, apperr.Validation("Validation failed").WithDetails(errs))
		return false
	}
	return true
}

// pathID parses a UUID URL parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, r, apperr.Validation("Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated user. The auth middleware guarantees
// one on every route that calls this.
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, r, apperr.Unauthorized("Authentication required"))
		return nil, false
	}
	return user, true
}

func currentTenant(w http.ResponseWriter, r *http.Request) (*tenant.Context, bool) {
	tc, ok := middleware.GetTenant(r.Context())
	if !ok {
		response.Error(w, r, apperr.Validation("Organization identifier is required"))
		return nil, false
	}
	return tc, true
}

// tenantError maps tenant service errors onto the API taxonomy.
func tenantError(err error) error {
	switch {
	case errors.Is(err, tenant.ErrOrganizationNotFound):
		return apperr.NotFound("Organization not found")
	case errors.Is(err, tenant.ErrAccessDenied):
		return apperr.Forbidden("You are not a member of this organization")
	case errors.Is(err, tenant.ErrInvalidSlug):
		return apperr.Validation("Invalid organization slug")
	case errors.Is(err, tenant.ErrReservedSlug):
		return apperr.Validation("Organization slug is reserved")
	case errors.Is(err, tenant.ErrSlugTaken):
		return apperr.Conflict("Organization slug is already taken")
	case errors.Is(err, tenant.ErrInvalidPlan):
		return apperr.Validation("Unknown plan")
	case errors.Is(err, tenant.ErrInvalidRole):
		return apperr.Validation("Role must be admin or member")
	case errors.Is(err, tenant.ErrUserNotFound):
		return apperr.NotFound("No user with that email")
	case errors.Is(err, tenant.ErrAlreadyMember):
		return apperr.Conflict("User is already a member")
	case errors.Is(err, tenant.ErrMemberNotFound):
		return apperr.NotFound("Member not found")
	case errors.Is(err, tenant.ErrSelfModification):
		return apperr.Validation("You cannot change your own membership")
	case errors.Is(err, tenant.ErrLastAdmin):
		return apperr.Validation("An organization needs at least one admin")
	}
	return apperr.Internal(err)
}
