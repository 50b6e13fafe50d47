package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/issueflow/internal/api/dto"
	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
)

// BenchmarkJSONSerialization benchmarks JSON encoding of common response types
func BenchmarkJSONSerialization(b *testing.B) {
	b.Run("Failure", func(b *testing.B) {
		resp := response.Failure{
			Error:   "Payment Required",
			Message: "Plan limit reached for members",
			Details: map[string]any{"currentPlan": "free", "limit": 5, "current": 5},
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(resp)
		}
	})

	b.Run("OrganizationWithUsage", func(b *testing.B) {
		limits := tenant.LimitsFor(tenant.PlanStarter)
		resp := dto.OrganizationDTO{
			ID:        uuid.New().String(),
			Name:      "Acme",
			Slug:      "acme",
			Plan:      "starter",
			Role:      models.RoleAdmin,
			Limits:    &limits,
			Usage:     &tenant.UsageStats{Members: 4, Projects: 2, Integrations: 1},
			CreatedAt: time.Now(),
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(resp)
		}
	})

	b.Run("ProjectList", func(b *testing.B) {
		orgID := uuid.New()
		list := make([]dto.ProjectDTO, 50)
		for i := range list {
			list[i] = dto.ProjectFromModel(&models.Project{
				Base:           models.Base{ID: uuid.New(), CreatedAt: time.Now()},
				OrganizationID: orgID,
				Name:           "Project",
				APIKey:         "pk_" + uuid.New().String(),
			})
		}
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = json.Marshal(list)
		}
	})
}

// BenchmarkDecode benchmarks body decoding plus validation
func BenchmarkDecode(b *testing.B) {
	b.Run("LoginValid", func(b *testing.B) {
		body := `{"email":"user@example.com","password":"Securepassword123!"}`
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var req dto.LoginRequest
			_ = decode(w, r, &req)
		}
	})

	b.Run("CreateOrganizationInvalid", func(b *testing.B) {
		body := `{"name":"","slug":"Not A Slug","plan":"platinum"}`
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var req dto.CreateOrganizationRequest
			_ = decode(w, r, &req)
		}
	})
}

// BenchmarkErrorMapping benchmarks service error translation
func BenchmarkErrorMapping(b *testing.B) {
	errs := []error{
		tenant.ErrSlugTaken,
		tenant.ErrLastAdmin,
		tenant.ErrMemberNotFound,
		apperr.Forbidden("Admin role required"),
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = apperr.As(tenantError(errs[i%len(errs)]))
	}
}

// BenchmarkParallelErrorResponse benchmarks concurrent failure envelopes
func BenchmarkParallelErrorResponse(b *testing.B) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	err := apperr.RateLimited("Too many requests").WithDetails(map[string]int{"retryAfter": 60})
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			response.Error(httptest.NewRecorder(), r, err)
		}
	})
}
