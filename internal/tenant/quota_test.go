package tenant_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hugh/issueflow/internal/database/models"
	"github.com/hugh/issueflow/internal/tenant"
	"github.com/hugh/issueflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestQuotaEnforcer_CanPerformAction(t *testing.T) {
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)
	ctx := testutil.TestContext(t)
	q := tenant.NewQuotaEnforcer(tc.DB)
	enterprise := testutil.CreateTestOrg(t, tc.DB, "enterprise")

	tests := []struct {
		name    string
		slug    string
		action  tenant.Action
		current int64
		allowed bool
	}{
		{"free members below", tc.Org.Slug, tenant.ActionAddMember, 4, true},
		{"free members at ceiling", tc.Org.Slug, tenant.ActionAddMember, 5, false},
		{"free projects at ceiling", tc.Org.Slug, tenant.ActionCreateProject, 3, false},
		{"free integrations below", tc.Org.Slug, tenant.ActionCreateIntegration, 1, true},
		{"enterprise unlimited", enterprise.Slug, tenant.ActionCreateProject, 10_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := q.CanPerformAction(ctx, tt.slug, tt.action, tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, ok)
		})
	}

	t.Run("missing organization is an error", func(t *testing.T) {
		_, err := q.CanPerformAction(ctx, "missing", tenant.ActionAddMember, 0)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("unknown action is an error", func(t *testing.T) {
		_, err := q.CanPerformAction(ctx, tc.Org.Slug, tenant.Action("launch"), 0)
		assert.Error(t, err)
	})
}

func TestQuotaEnforcer_Check(t *testing.T) {
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)
	ctx := testutil.TestContext(t)
	q := tenant.NewQuotaEnforcer(tc.DB)

	for i := 0; i < 4; i++ {
		testutil.AddMember(t, tc.DB, tc.Org, testutil.CreateTestUser(t, tc.DB), models.RoleMember)
	}

	d, err := q.Check(ctx, tc.Org, tenant.ActionAddMember)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, tenant.PlanFree, d.Plan)
	assert.Equal(t, "members", d.Resource)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, int64(5), d.Current)

	stats, err := q.Usage(ctx, tc.Org.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Members)
	assert.Equal(t, int64(0), stats.Projects)
	assert.Equal(t, int64(5), stats.CountFor(tenant.ActionAddMember))

	t.Run("decision reloads the organization", func(t *testing.T) {
		gone := testutil.CreateTestOrg(t, tc.DB, "starter")
		require.NoError(t, tc.DB.Delete(gone).Error)

		_, err := q.Check(ctx, gone, tenant.ActionCreateProject)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestQuotaEnforcer_ConcurrentCreators(t *testing.T) {
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)
	ctx := testutil.TestContext(t)
	q := tenant.NewQuotaEnforcer(tc.DB)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := q.Check(ctx, tc.Org, tenant.ActionCreateProject)
			if err != nil || !d.Allowed {
				return
			}
			p := &models.Project{OrganizationID: tc.Org.ID, Name: fmt.Sprintf("p%d", i), APIKey: fmt.Sprintf("pk_%d", i)}
			if err := tc.DB.Create(p).Error; err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	n, err := q.CountFor(ctx, tc.Org.ID, tenant.ActionCreateProject)
	require.NoError(t, err)

	// Check-then-act may overshoot, but every successful create is stored
	// and the ceiling is reached.
	assert.Equal(t, int64(created), n)
	assert.GreaterOrEqual(t, n, int64(3))
	assert.LessOrEqual(t, n, int64(workers))
}
