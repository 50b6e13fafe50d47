package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
)

// RateLimitInfo describes the limiter state after the current request was
// counted.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// RequestContext is what the pipeline has learned about a request. It is
// immutable: every With method returns a modified copy, and absent fields
// are reported through the ok result of their getter.
type RequestContext struct {
	user      *models.User
	claims    *auth.Claims
	tenant    *tenant.Context
	rateLimit *RateLimitInfo
}

func (rc RequestContext) WithIdentity(user *models.User, claims *auth.Claims) RequestContext {
	rc.user = user
	rc.claims = claims
	return rc
}

func (rc RequestContext) WithTenant(t *tenant.Context) RequestContext {
	rc.tenant = t
	return rc
}

func (rc RequestContext) WithRateLimit(info RateLimitInfo) RequestContext {
	rc.rateLimit = &info
	return rc
}

func (rc RequestContext) User() (*models.User, bool) {
	return rc.user, rc.user != nil
}

func (rc RequestContext) Claims() (*auth.Claims, bool) {
	return rc.claims, rc.claims != nil
}

func (rc RequestContext) Tenant() (*tenant.Context, bool) {
	return rc.tenant, rc.tenant != nil
}

func (rc RequestContext) RateLimit() (RateLimitInfo, bool) {
	if rc.rateLimit == nil {
		return RateLimitInfo{}, false
	}
	return *rc.rateLimit, true
}

func (rc RequestContext) IsAuthenticated() bool {
	return rc.user != nil
}

type requestContextKey struct{}

// FromContext returns the pipeline state attached to ctx, or an empty one.
func FromContext(ctx context.Context) RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(RequestContext); ok {
		return rc
	}
	return RequestContext{}
}

func withRequestContext(r *http.Request, rc RequestContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestContextKey{}, rc))
}

// Helper functions to extract values from context
func GetUser(ctx context.Context) (*models.User, bool) {
	return FromContext(ctx).User()
}

func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	return FromContext(ctx).Claims()
}

func GetTenant(ctx context.Context) (*tenant.Context, bool) {
	return FromContext(ctx).Tenant()
}

func GetRateLimit(ctx context.Context) (RateLimitInfo, bool) {
	return FromContext(ctx).RateLimit()
}

func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	if u, ok := GetUser(ctx); ok {
		return u.ID, true
	}
	return uuid.Nil, false
}
