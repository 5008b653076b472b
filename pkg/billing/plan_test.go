package billing_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courseforge/courseforge/pkg/billing"
)

func TestNewCatalog_Validation(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewCatalog(nil)
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})

	t.Run("duplicate type", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewCatalog([]billing.Plan{
			{Type: billing.PlanBasic, Name: "Basic", Price: billing.Money{Amount: 3700, Currency: "usd"}},
			{Type: billing.PlanBasic, Name: "Basic again", Price: billing.Money{Amount: 3800, Currency: "usd"}},
		})
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})

	t.Run("non-positive price", func(t *testing.T) {
		t.Parallel()
		_, err := billing.NewCatalog([]billing.Plan{
			{Type: billing.PlanBasic, Name: "Basic", Price: billing.Money{Amount: 0, Currency: "usd"}},
		})
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})
}

func TestCatalog_All_SortedByPrice(t *testing.T) {
	t.Parallel()

	catalog := testCatalog(t)
	all := catalog.All()
	require.Len(t, all, 4)

	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Price.Amount, all[i].Price.Amount)
	}
	assert.Equal(t, billing.PlanBasic, all[0].Type)
	assert.Equal(t, billing.PlanAllAccess, all[3].Type)
}

func TestCatalog_MatchAmount(t *testing.T) {
	t.Parallel()

	catalog := testCatalog(t)

	t.Run("exact", func(t *testing.T) {
		t.Parallel()
		plan, ok := catalog.MatchAmount(8700, billing.PriceTolerance)
		require.True(t, ok)
		assert.Equal(t, billing.PlanPro, plan.Type)
	})

	t.Run("within tolerance", func(t *testing.T) {
		t.Parallel()
		plan, ok := catalog.MatchAmount(3700+billing.PriceTolerance, billing.PriceTolerance)
		require.True(t, ok)
		assert.Equal(t, billing.PlanBasic, plan.Type)
	})

	t.Run("outside tolerance", func(t *testing.T) {
		t.Parallel()
		_, ok := catalog.MatchAmount(3700+billing.PriceTolerance+1, billing.PriceTolerance)
		assert.False(t, ok)
	})

	t.Run("closest wins", func(t *testing.T) {
		t.Parallel()
		plan, ok := catalog.MatchAmount(6200, billing.PriceTolerance)
		require.True(t, ok)
		assert.Equal(t, billing.PlanStandard, plan.Type)
	})
}

func TestPlan_LookupKey(t *testing.T) {
	t.Parallel()

	plan := billing.Plan{Type: billing.PlanAllAccess}
	assert.Equal(t, "plan_all_access_monthly", plan.LookupKey())
}

func TestYAMLSource_Load(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - type: basic
    name: Basic
    price: {amount: 3700, currency: usd}
  - type: all_access
    name: All Access
    all_access: true
    price: {amount: 12700, currency: usd}
`), 0o600))

	catalog, err := billing.LoadCatalog(context.Background(), billing.NewYAMLSource(path))
	require.NoError(t, err)

	basic, ok := catalog.Get(billing.PlanBasic)
	require.True(t, ok)
	assert.Equal(t, int64(3700), basic.Price.Amount)

	allAccess, ok := catalog.Get(billing.PlanAllAccess)
	require.True(t, ok)
	assert.True(t, allAccess.AllAccess)
}

func TestYAMLSource_EmptyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plans: []\n"), 0o600))

	_, err := billing.LoadCatalog(context.Background(), billing.NewYAMLSource(path))
	assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
}

func TestSubscriptionStatus_IsLive(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.StatusActive.IsLive())
	assert.True(t, billing.StatusTrialing.IsLive())
	assert.False(t, billing.StatusPastDue.IsLive())
	assert.False(t, billing.StatusCanceled.IsLive())
}
