package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hugh/issueflow/internal/api"
	"github.com/hugh/issueflow/internal/auth"
	"github.com/hugh/issueflow/internal/cache"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/integrations"
	"github.com/hugh/issueflow/internal/metrics"
	"github.com/hugh/issueflow/internal/projects"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/hugh/issueflow/internal/testutil"
	"github.com/hugh/issueflow/pkg/crypto"
	"github.com/hugh/issueflow/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	router http.Handler
	tc     *testutil.TestSetup
	mr     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)
	mr, client := testutil.SetupTestRedis(t)

	logger := util.NopLogger()
	enc, err := crypto.NewEncryptor("")
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		DB:             tc.DB,
		Redis:          client,
		Counters:       cache.NewRedisCounterStore(client),
		Logger:         logger,
		Metrics:        metrics.New(),
		JWTService:     tc.JWTService,
		AuthService:    auth.NewService(tc.DB, tc.JWTService, auth.WithLogger(logger)),
		Tenants:        tenant.NewService(tc.DB, logger),
		Quota:          tenant.NewQuotaEnforcer(tc.DB),
		Projects:       projects.NewService(tc.DB, logger),
		Integrations:   integrations.NewService(tc.DB, enc, logger),
		APIRateLimit:   100,
		APIRateWindow:  15 * time.Minute,
		AuthRateLimit:  5,
		AuthRateWindow: 15 * time.Minute,
	})

	return &testServer{router: router, tc: tc, mr: mr}
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		testutil.ParseJSONResponse(t, rr, &env)
	}
	return rr, env
}

func (s *testServer) orgPath(suffix string) string {
	return "/api/v1/organizations/" + s.tc.Org.Slug + suffix
}

func TestCreateOrganization_SlugConflict(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"name": "Acme", "slug": "acme-co"}

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations", body, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	assert.True(t, env.Success)

	var org struct {
		Slug string `json:"slug"`
		Role string `json:"role"`
		Plan string `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &org))
	assert.Equal(t, "acme-co", org.Slug)
	assert.Equal(t, models.RoleAdmin, org.Role)
	assert.Equal(t, "free", org.Plan)

	rr, env = s.do(t, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations", body, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusConflict)
	assert.False(t, env.Success)
	assert.Equal(t, "Conflict", env.Error)
}

func TestCreateOrganization_ReservedSlug(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", "/api/v1/organizations",
		map[string]string{"name": "Current", "slug": "current"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, string(env.Details), "slug")

	// The path still means "resolve from header or query".
	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/current", nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestGetOrganization_LongSlugIsLookedUp(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/"+strings.Repeat("a", 65), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, "Not Found", env.Error)
}

func TestLogin_LockedOutAfterFiveFailures(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"email": s.tc.User.Email, "password": "WrongPassword1!"}

	for i := 0; i < 5; i++ {
		rr, _ := s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	}

	rr, env := s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	assert.Equal(t, "900", rr.Header().Get("Retry-After"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "Too Many Requests", env.Error)

	t.Run("other emails are counted separately", func(t *testing.T) {
		other := map[string]string{"email": "someone-else@example.com", "password": "WrongPassword1!"}
		rr, _ := s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", other))
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})
}

func TestLogin_SuccessIsRefunded(t *testing.T) {
	s := newTestServer(t)
	good := map[string]string{"email": s.tc.User.Email, "password": testutil.TestPassword}

	for i := 0; i < 8; i++ {
		rr, env := s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", good))
		testutil.AssertStatus(t, rr, http.StatusOK)
		require.True(t, env.Success)

		assert.Eventually(t, func() bool {
			return s.authCounter(t) == "0"
		}, time.Second, 5*time.Millisecond)
	}
}

// authCounter returns the auth limiter's counter for the current window.
func (s *testServer) authCounter(t *testing.T) string {
	t.Helper()
	for _, k := range s.mr.Keys() {
		if strings.HasPrefix(k, "rl:auth:") {
			v, err := s.mr.Get(k)
			require.NoError(t, err)
			return v
		}
	}
	return ""
}

func TestAddMember_PlanLimitReached(t *testing.T) {
	s := newTestServer(t)

	// Free plan allows five members; the admin is the first
	for i := 0; i < 4; i++ {
		testutil.AddMember(t, s.tc.DB, s.tc.Org, testutil.CreateTestUser(t, s.tc.DB), models.RoleMember)
	}
	newcomer := testutil.CreateTestUser(t, s.tc.DB)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/members"),
		map[string]string{"email": newcomer.Email}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusPaymentRequired)

	var details struct {
		CurrentPlan string `json:"currentPlan"`
		Resource    string `json:"resource"`
		Limit       int    `json:"limit"`
		Current     int64  `json:"current"`
	}
	require.NoError(t, json.Unmarshal(env.Details, &details))
	assert.Equal(t, "free", details.CurrentPlan)
	assert.Equal(t, "members", details.Resource)
	assert.Equal(t, 5, details.Limit)
	assert.Equal(t, int64(5), details.Current)
}

func TestAddMember_BelowLimit(t *testing.T) {
	s := newTestServer(t)
	newcomer := testutil.CreateTestUser(t, s.tc.DB)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/members"),
		map[string]string{"email": newcomer.Email}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	assert.True(t, env.Success)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/members"),
		map[string]string{"email": newcomer.Email}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusConflict)
}

func TestCurrentOrganization_ResolvedFromHeader(t *testing.T) {
	s := newTestServer(t)

	req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/current", nil, s.tc.Token)
	req.Header.Set("X-Organization", s.tc.Org.Slug)
	rr, env := s.do(t, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	var org struct {
		Slug   string             `json:"slug"`
		Role   string             `json:"role"`
		Limits *tenant.PlanLimits `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &org))
	assert.Equal(t, s.tc.Org.Slug, org.Slug)
	assert.Equal(t, models.RoleAdmin, org.Role)
	require.NotNil(t, org.Limits)
	assert.Equal(t, 5, org.Limits.Members)

	t.Run("query parameter", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/current?org="+s.tc.Org.Slug, nil, s.tc.Token)
		rr, _ := s.do(t, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	t.Run("no identifier", func(t *testing.T) {
		req := testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations/current", nil, s.tc.Token)
		rr, _ := s.do(t, req)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}

func TestMembers_CannotModifySelf(t *testing.T) {
	s := newTestServer(t)
	path := s.orgPath("/members/" + s.tc.User.ID.String())

	rr, _ := s.do(t, testutil.AuthenticatedRequest(t, "PUT", path, map[string]string{"role": "member"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "DELETE", path, nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}

func TestMembers_AdminManagesOthers(t *testing.T) {
	s := newTestServer(t)
	other := testutil.CreateTestUser(t, s.tc.DB)
	testutil.AddMember(t, s.tc.DB, s.tc.Org, other, models.RoleMember)
	path := s.orgPath("/members/" + other.ID.String())

	rr, _ := s.do(t, testutil.AuthenticatedRequest(t, "PUT", path, map[string]string{"role": "admin"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "DELETE", path, nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "GET", s.orgPath("/members"), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var members []tenant.MemberInfo
	require.NoError(t, json.Unmarshal(env.Data, &members))
	assert.Len(t, members, 1)
}

func TestOrganizationGuards(t *testing.T) {
	s := newTestServer(t)

	member := testutil.CreateTestUser(t, s.tc.DB)
	testutil.AddMember(t, s.tc.DB, s.tc.Org, member, models.RoleMember)
	memberToken := testutil.GenerateTestToken(t, s.tc.JWTService, member)

	outsider := testutil.CreateTestUser(t, s.tc.DB)
	outsiderToken := testutil.GenerateTestToken(t, s.tc.JWTService, outsider)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"no token", "GET", "/api/v1/organizations", "", nil, http.StatusUnauthorized},
		{"garbage token", "GET", "/api/v1/organizations", "not-a-jwt", nil, http.StatusUnauthorized},
		{"member reads", "GET", s.orgPath(""), memberToken, nil, http.StatusOK},
		{"member cannot update", "PUT", s.orgPath(""), memberToken, map[string]string{"name": "X"}, http.StatusForbidden},
		{"member cannot delete", "DELETE", s.orgPath(""), memberToken, nil, http.StatusForbidden},
		{"member cannot add members", "POST", s.orgPath("/members"), memberToken, map[string]string{"email": "x@example.com"}, http.StatusForbidden},
		{"outsider", "GET", s.orgPath(""), outsiderToken, nil, http.StatusForbidden},
		{"missing organization", "GET", "/api/v1/organizations/no-such-org", s.tc.Token, nil, http.StatusNotFound},
		{"malformed slug", "GET", "/api/v1/organizations/Bad_Slug", s.tc.Token, nil, http.StatusBadRequest},
		{"bad member id", "DELETE", s.orgPath("/members/not-a-uuid"), s.tc.Token, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := s.do(t, testutil.AuthenticatedRequest(t, tt.method, tt.path, tt.body, tt.token))
			testutil.AssertStatus(t, rr, tt.status)
			assert.Equal(t, tt.status < 400, env.Success)
		})
	}
}

func TestOrganization_UpdateAndDelete(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "PUT", s.orgPath(""),
		map[string]any{"name": "Renamed", "plan": "starter"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	var org struct {
		Name string `json:"name"`
		Plan string `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &org))
	assert.Equal(t, "Renamed", org.Name)
	assert.Equal(t, "starter", org.Plan)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "DELETE", s.orgPath(""), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "GET", s.orgPath(""), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestNamesAreStoredClean(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/projects"),
		map[string]string{"name": "  Road\x00map\n "}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var p struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "Roadmap", p.Name)

	t.Run("control characters alone are not a name", func(t *testing.T) {
		rr, env := s.do(t, testutil.AuthenticatedRequest(t, "PUT", s.orgPath(""),
			map[string]string{"name": "\x01\x02"}, s.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.Contains(t, string(env.Details), "name")
	})
}

func TestProjects_QuotaAndLifecycle(t *testing.T) {
	s := newTestServer(t)

	var firstID string
	for i := 0; i < 3; i++ {
		rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/projects"),
			map[string]string{"name": "Site"}, s.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		if firstID == "" {
			var p struct {
				ID     string `json:"id"`
				APIKey string `json:"api_key"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &p))
			assert.True(t, strings.HasPrefix(p.APIKey, "pk_"))
			firstID = p.ID
		}
	}

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/projects"),
		map[string]string{"name": "One too many"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusPaymentRequired)
	assert.Equal(t, "Payment Required", env.Error)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "DELETE", s.orgPath("/projects/"+firstID), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/projects"),
		map[string]string{"name": "Fits again"}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
}

func TestIntegrations_ConfigNeverReturned(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/integrations"), map[string]any{
		"type":   "slack",
		"name":   "Alerts",
		"config": map[string]string{"webhook_url": "https://hooks.slack.com/services/T/B/secret"},
	}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	assert.NotContains(t, rr.Body.String(), "hooks.slack.com")

	var in struct {
		ConfigKeys []string `json:"config_keys"`
		Enabled    bool     `json:"enabled"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &in))
	assert.Equal(t, []string{"webhook_url"}, in.ConfigKeys)
	assert.True(t, in.Enabled)

	t.Run("missing config fields", func(t *testing.T) {
		rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/integrations"), map[string]any{
			"type":   "jira",
			"name":   "Tracker",
			"config": map[string]string{"base_url": "https://acme.atlassian.net"},
		}, s.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		assert.Contains(t, string(env.Details), "api_token")
	})

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "GET", s.orgPath("/integrations"), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.NotContains(t, rr.Body.String(), "secret")
}

func TestIntegrations_TestDelivery(t *testing.T) {
	s := newTestServer(t)

	hits := 0
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(endpoint.Close)

	rr, env := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/integrations"), map[string]any{
		"type":   "webhook",
		"name":   "Ops",
		"config": map[string]string{"url": endpoint.URL},
	}, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rr, env = s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/integrations/"+created.ID+"/test"), nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, string(env.Data), `"delivered":true`)
	assert.Equal(t, 1, hits)

	t.Run("members cannot trigger deliveries", func(t *testing.T) {
		member := testutil.CreateTestUser(t, s.tc.DB)
		testutil.AddMember(t, s.tc.DB, s.tc.Org, member, models.RoleMember)
		token := testutil.GenerateTestToken(t, s.tc.JWTService, member)

		rr, _ := s.do(t, testutil.AuthenticatedRequest(t, "POST", s.orgPath("/integrations/"+created.ID+"/test"), nil, token))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
		assert.Equal(t, 1, hits)
	})
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
		"email":    "flow@example.com",
		"password": "Flowpass123!",
		"name":     "Flow User",
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)

	rr, _ = s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
		"email":    "flow@example.com",
		"password": "Flowpass123!",
		"name":     "Flow User",
	}))
	testutil.AssertStatus(t, rr, http.StatusConflict)

	rr, env = s.do(t, testutil.AuthenticatedRequest(t, "GET", "/api/v1/auth/profile", nil, tokens.AccessToken))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, string(env.Data), "flow@example.com")

	rr, _ = s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/refresh-token",
		map[string]string{"refresh_token": tokens.RefreshToken}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/request-password-reset",
		map[string]string{"email": "nobody@example.com"}))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, env = s.do(t, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/register", map[string]string{
		"email": "weak@example.com", "password": "short", "name": "Weak",
	}))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Contains(t, string(env.Details), "password")
}

func TestOperationalEndpoints(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, httptest.NewRequest("GET", "/health", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr, _ = s.do(t, httptest.NewRequest("GET", "/ready", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), `"redis":"healthy"`)

	rr, _ = s.do(t, testutil.AuthenticatedRequest(t, "GET", "/api/v1/organizations", nil, s.tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "100", rr.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, rr.Header().Get("Retry-After"))

	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "issueflow_http_requests_total")
	assert.Contains(t, rr.Body.String(), `status="200"`)

	rr, env := s.do(t, httptest.NewRequest("GET", "/nope", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	assert.False(t, env.Success)
}
