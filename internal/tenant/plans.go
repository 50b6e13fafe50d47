package tenant

// Plan is an organization's pricing tier. Tiers are ordered
// free < starter < professional < enterprise.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Plans in tier order.
var Plans = []Plan{PlanFree, PlanStarter, PlanProfessional, PlanEnterprise}

// Unlimited as a ceiling admits any count.
const Unlimited = -1

type PlanLimits struct {
	Members      int `json:"members"`
	Projects     int `json:"projects"`
	Integrations int `json:"integrations"`
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:         {Members: 5, Projects: 3, Integrations: 2},
	PlanStarter:      {Members: 15, Projects: 10, Integrations: 5},
	PlanProfessional: {Members: 50, Projects: 50, Integrations: 20},
	PlanEnterprise:   {Members: Unlimited, Projects: Unlimited, Integrations: Unlimited},
}

func IsValidPlan(p string) bool {
	_, ok := planLimits[Plan(p)]
	return ok
}

// LimitsFor returns the ceilings of a tier. Unknown tiers get free limits.
func LimitsFor(p Plan) PlanLimits {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// Action is a quota-bounded mutation.
type Action string

const (
	ActionAddMember         Action = "add_member"
	ActionCreateProject     Action = "create_project"
	ActionCreateIntegration Action = "create_integration"
)

// Resource names the class of thing an action creates.
func (a Action) Resource() string {
	switch a {
	case ActionAddMember:
		return "members"
	case ActionCreateProject:
		return "projects"
	case ActionCreateIntegration:
		return "integrations"
	}
	return ""
}

// Ceiling returns the limit for the resource class of action, ok=false for
// an unknown action.
func (l PlanLimits) Ceiling(a Action) (int, bool) {
	switch a {
	case ActionAddMember:
		return l.Members, true
	case ActionCreateProject:
		return l.Projects, true
	case ActionCreateIntegration:
		return l.Integrations, true
	}
	return 0, false
}

// Allows reports whether current usage is below ceiling.
func Allows(ceiling int, current int64) bool {
	if ceiling == Unlimited {
		return true
	}
	return current < int64(ceiling)
}
