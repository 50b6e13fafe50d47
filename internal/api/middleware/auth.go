package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/pkg/util"
)

// AuthOptions configures Authenticate. Roles and Permissions are checked
// only when an identity was resolved.
type AuthOptions struct {
	Required    bool
	Roles       []string
	Permissions []string
}

// Authenticate resolves the bearer token into a user and claims. When
// Required is false a missing or unverifiable token lets the request through
// anonymously, but an inactive account is always rejected.
func Authenticate(verifier auth.TokenVerifier, users auth.UserLookup, opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(err *apperr.Error) {
				response.Error(w, r, err)
			}
			anonymous := func() {
				next.ServeHTTP(w, r)
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				if opts.Required {
					reject(apperr.Unauthorized("Authorization header is required"))
					return
				}
				anonymous()
				return
			}

			claims, err := verifier.ValidateToken(token)
			if err != nil {
				if opts.Required {
					msg := "Invalid token"
					if errors.Is(err, auth.ErrExpiredToken) {
						msg = "Token has expired"
					}
					reject(apperr.Unauthorized(msg))
					return
				}
				anonymous()
				return
			}

			user, err := users.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrUserNotFound):
					if opts.Required {
						reject(apperr.Unauthorized("User not found"))
						return
					}
				case opts.Required:
					reject(apperr.Internal(err))
					return
				default:
					util.LoggerFrom(r.Context()).Warn("optional auth lookup failed", "error", err)
				}
				anonymous()
				return
			}

			if !user.IsActive() {
				reject(apperr.Unauthorized("Account is not active"))
				return
			}

			if len(opts.Roles) > 0 && !containsString(opts.Roles, user.Role) {
				reject(apperr.Forbidden("Insufficient role"))
				return
			}
			if len(opts.Permissions) > 0 && !claims.HasAnyPermission(opts.Permissions...) {
				reject(apperr.Forbidden("Insufficient permissions"))
				return
			}

			rc := FromContext(r.Context()).WithIdentity(user, claims)
			next.ServeHTTP(w, withRequestContext(r, rc))
		})
	}
}

func RequireAuth(verifier auth.TokenVerifier, users auth.UserLookup) func(http.Handler) http.Handler {
	return Authenticate(verifier, users, AuthOptions{Required: true})
}

func OptionalAuth(verifier auth.TokenVerifier, users auth.UserLookup) func(http.Handler) http.Handler {
	return Authenticate(verifier, users, AuthOptions{})
}

// RequireRole ensures the authenticated user has one of the system roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				response.Error(w, r, apperr.Unauthorized("Authentication required"))
				return
			}
			if !containsString(roles, user.Role) {
				response.Error(w, r, apperr.Forbidden("Insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission ensures the token grants at least one of perms.
func RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				response.Error(w, r, apperr.Unauthorized("Authentication required"))
				return
			}
			if !claims.HasAnyPermission(perms...) {
				response.Error(w, r, apperr.Forbidden("Insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole for the system admin role.
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(models.RoleAdmin)
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
