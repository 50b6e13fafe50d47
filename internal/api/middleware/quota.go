package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/metrics"
	"github.com/hugh/issueflow/internal/tenant"
)

// QuotaChecker compares an organization's live usage with its plan.
type QuotaChecker interface {
	Check(ctx context.Context, org *models.Organization, action tenant.Action) (*tenant.Decision, error)
}

// EnforceQuota refuses the request with 402 when the resolved organization
// has reached its plan ceiling for action. It must run after ResolveTenant.
func EnforceQuota(checker QuotaChecker, action tenant.Action, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenant(r.Context())
			if !ok {
				response.Error(w, r, apperr.Validation("Organization context is required"))
				return
			}

			d, err := checker.Check(r.Context(), tc.Organization, action)
			if err != nil {
				response.Error(w, r, apperr.Internal(err))
				return
			}

			if !d.Allowed {
				m.QuotaDenied(string(action))
				response.Error(w, r, apperr.PaymentRequired(
					fmt.Sprintf("Your %s plan allows %d %s. Upgrade to add more.", d.Plan, d.Limit, d.Resource),
				).WithDetails(map[string]any{
					"currentPlan": d.Plan,
					"resource":    d.Resource,
					"limit":       d.Limit,
					"current":     d.Current,
				}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
