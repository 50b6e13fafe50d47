package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/database/models"
	"gorm.io/gorm"
)

// UsageStats holds live resource counts for one organization.
type UsageStats struct {
	Members      int64 `json:"members"`
	Projects     int64 `json:"projects"`
	Integrations int64 `json:"integrations"`
}

func (u UsageStats) CountFor(a Action) int64 {
	switch a {
	case ActionAddMember:
		return u.Members
	case ActionCreateProject:
		return u.Projects
	case ActionCreateIntegration:
		return u.Integrations
	}
	return 0
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed  bool
	Plan     Plan
	Resource string
	Limit    int
	Current  int64
}

// QuotaEnforcer decides whether an organization's plan admits one more of a
// resource. Counts are queried fresh on every check and nothing is reserved,
// so concurrent creators can overshoot a ceiling by a small margin.
type QuotaEnforcer struct {
	db *gorm.DB
}

func NewQuotaEnforcer(db *gorm.DB) *QuotaEnforcer {
	return &QuotaEnforcer{db: db}
}

// CanPerformAction reports whether current is below the ceiling for action
// under the plan of the organization identified by slug. Every quota decision
// goes through here.
func (q *QuotaEnforcer) CanPerformAction(ctx context.Context, slug string, action Action, current int64) (bool, error) {
	var org models.Organization
	if err := q.db.WithContext(ctx).Where("slug = ?", slug).First(&org).Error; err != nil {
		return false, fmt.Errorf("loading organization %q for quota check: %w", slug, err)
	}
	ceiling, ok := LimitsFor(Plan(org.Plan)).Ceiling(action)
	if !ok {
		return false, fmt.Errorf("unknown quota action %q", action)
	}
	return Allows(ceiling, current), nil
}

// Check counts the organization's current usage for action and asks
// CanPerformAction whether one more is admitted.
func (q *QuotaEnforcer) Check(ctx context.Context, org *models.Organization, action Action) (*Decision, error) {
	ceiling, ok := LimitsFor(Plan(org.Plan)).Ceiling(action)
	if !ok {
		return nil, fmt.Errorf("unknown quota action %q", action)
	}
	current, err := q.CountFor(ctx, org.ID, action)
	if err != nil {
		return nil, err
	}
	allowed, err := q.CanPerformAction(ctx, org.Slug, action, current)
	if err != nil {
		return nil, err
	}
	return &Decision{
		Allowed:  allowed,
		Plan:     Plan(org.Plan),
		Resource: action.Resource(),
		Limit:    ceiling,
		Current:  current,
	}, nil
}

// CountFor returns the live count of the resource action creates.
func (q *QuotaEnforcer) CountFor(ctx context.Context, orgID uuid.UUID, action Action) (int64, error) {
	var model any
	switch action {
	case ActionAddMember:
		model = &models.Membership{}
	case ActionCreateProject:
		model = &models.Project{}
	case ActionCreateIntegration:
		model = &models.Integration{}
	default:
		return 0, fmt.Errorf("unknown quota action %q", action)
	}

	var n int64
	if err := q.db.WithContext(ctx).Model(model).Where("organization_id = ?", orgID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting %s: %w", action.Resource(), err)
	}
	return n, nil
}

// Usage returns fresh counts for every quota-bounded resource.
func (q *QuotaEnforcer) Usage(ctx context.Context, orgID uuid.UUID) (*UsageStats, error) {
	var stats UsageStats
	for _, a := range []Action{ActionAddMember, ActionCreateProject, ActionCreateIntegration} {
		n, err := q.CountFor(ctx, orgID, a)
		if err != nil {
			return nil, err
		}
		switch a {
		case ActionAddMember:
			stats.Members = n
		case ActionCreateProject:
			stats.Projects = n
		case ActionCreateIntegration:
			stats.Integrations = n
		}
	}
	return &stats, nil
}
