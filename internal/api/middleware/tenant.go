package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/tenant"
)

const (
	OrgSlugParam  = "orgSlug"
	OrgHeader     = "X-Organization"
	OrgQueryParam = "org"
)

// TenantResolver builds the tenant context for a slug. A nil userID asks for
// an anonymous context.
type TenantResolver interface {
	BuildContext(ctx context.Context, slug string, userID *uuid.UUID) (*tenant.Context, error)
}

type TenantOptions struct {
	Required bool
}

// ExtractOrgSlug returns the organization slug named by the request. The
// path parameter wins over the X-Organization header, which wins over the
// org query parameter.
func ExtractOrgSlug(r *http.Request) string {
	if slug := chi.URLParam(r, OrgSlugParam); slug != "" {
		return slug
	}
	if slug := strings.TrimSpace(r.Header.Get(OrgHeader)); slug != "" {
		return slug
	}
	return strings.TrimSpace(r.URL.Query().Get(OrgQueryParam))
}

// ResolveTenant attaches the tenant context for the request's organization.
// A malformed slug is rejected even when the tenant is optional.
func ResolveTenant(resolver TenantResolver, opts TenantOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := ExtractOrgSlug(r)
			if slug == "" {
				if opts.Required {
					response.Error(w, r, apperr.Validation("Organization identifier is required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !tenant.IsValidSlug(slug) {
				response.Error(w, r, apperr.Validation("Invalid organization identifier format"))
				return
			}

			var userID *uuid.UUID
			if id, ok := GetUserID(r.Context()); ok {
				userID = &id
			}

			tc, err := resolver.BuildContext(r.Context(), slug, userID)
			if err != nil {
				switch {
				case errors.Is(err, tenant.ErrOrganizationNotFound):
					response.Error(w, r, apperr.NotFound("Organization not found"))
				case errors.Is(err, tenant.ErrAccessDenied):
					response.Error(w, r, apperr.Forbidden("Access denied to organization"))
				default:
					response.Error(w, r, apperr.Internal(err))
				}
				return
			}

			rc := FromContext(r.Context()).WithTenant(tc)
			next.ServeHTTP(w, withRequestContext(r, rc))
		})
	}
}

func RequireTenant(resolver TenantResolver) func(http.Handler) http.Handler {
	return ResolveTenant(resolver, TenantOptions{Required: true})
}

func OptionalTenant(resolver TenantResolver) func(http.Handler) http.Handler {
	return ResolveTenant(resolver, TenantOptions{})
}

// RequireOrgRole ensures the caller holds one of roles in the resolved
// organization.
func RequireOrgRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenant(r.Context())
			if !ok {
				response.Error(w, r, apperr.Validation("Organization context is required"))
				return
			}
			if !tc.HasRole(roles...) {
				response.Error(w, r, apperr.Forbidden("Insufficient organization role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
